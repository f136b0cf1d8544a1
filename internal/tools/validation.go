package tools

import (
	"fmt"
	"regexp"
	"time"
)

// DD-MM-YYYY and 24-hour HH:MM.
var (
	dateRe = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
	timeRe = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

const (
	dateLayout     = "02-01-2006"
	dateTimeLayout = "02-01-2006 15:04"

	invalidDateMessage = "Invalid date format. Please use DD-MM-YYYY (e.g. 25-12-2025)"
	invalidTimeMessage = "Invalid time format. Please use HH:MM in 24-hour format (e.g. 14:30)"
)

// ValidateDate checks the DD-MM-YYYY shape and that the day exists.
func ValidateDate(date string) error {
	if !dateRe.MatchString(date) {
		return fmt.Errorf("date %q does not match DD-MM-YYYY", date)
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("date %q is not a calendar day", date)
	}
	return nil
}

// ValidateTime checks the HH:MM shape and the 24-hour range.
func ValidateTime(clock string) error {
	if !timeRe.MatchString(clock) {
		return fmt.Errorf("time %q does not match HH:MM", clock)
	}
	if _, err := time.Parse("15:04", clock); err != nil {
		return fmt.Errorf("time %q is out of range", clock)
	}
	return nil
}

// ParseDateTime validates date and clock and combines them in loc.
func ParseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	if err := ValidateDate(date); err != nil {
		return time.Time{}, err
	}
	if err := ValidateTime(clock); err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(dateTimeLayout, date+" "+clock, loc)
}

// DayBounds returns the first and last second of date in loc.
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	if err := ValidateDate(date); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if loc == nil {
		loc = time.Local
	}
	start, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := time.Date(start.Year(), start.Month(), start.Day(), 23, 59, 59, 0, loc)
	return start, end, nil
}

// validateSchedule is the shared check for handlers taking date and time.
func validateSchedule(date, clock string) (Result, bool) {
	if err := ValidateDate(date); err != nil {
		return Fail(invalidDateMessage, err), false
	}
	if err := ValidateTime(clock); err != nil {
		return Fail(invalidTimeMessage, err), false
	}
	return Result{}, true
}
