package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"todo-assistant/internal/calendar"
	"todo-assistant/internal/storage"
)

const (
	defaultEventDuration = 60 * time.Minute
	upcomingWindow       = 1 // months

	notConnectedMessage = "Google Calendar is not connected. Please authenticate first."
)

// GoogleCalendar is the remote calendar capability used by the Google tools.
type GoogleCalendar interface {
	Configure(ctx context.Context, credentialsJSON string) (authURL string, err error)
	Authenticate(ctx context.Context, code string) error
	IsAuthenticated() bool
	AddEvent(ctx context.Context, in calendar.EventInput) (calendar.Event, error)
	ListEvents(ctx context.Context, from, to time.Time) ([]calendar.Event, error)
	Location() *time.Location
}

type googleHandlers struct {
	store storage.Store
	cal   GoogleCalendar
	now   func() time.Time
}

type googleEventArgs struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

type credentialsArgs struct {
	Credentials string `json:"credentials"`
}

type codeArgs struct {
	Code string `json:"code"`
}

func (h *googleHandlers) location() *time.Location {
	if h.cal == nil {
		return time.Local
	}
	return h.cal.Location()
}

func (h *googleHandlers) connected() bool {
	return h.cal != nil && h.cal.IsAuthenticated()
}

func (h *googleHandlers) addTodo(ctx context.Context, raw json.RawMessage) Result {
	var args scheduleArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Fail("Failed to add todo item to Google Calendar", err)
	}
	if res, ok := validateSchedule(args.Date, args.Time); !ok {
		return res
	}
	if !h.connected() {
		return Fail(notConnectedMessage, nil)
	}
	start, err := ParseDateTime(args.Date, args.Time, h.location())
	if err != nil {
		return Fail(invalidDateMessage, err)
	}

	todo, err := h.store.GetTodo(ctx, args.TodoID)
	if errors.Is(err, storage.ErrNotFound) {
		return Fail(fmt.Sprintf("Error: No To Do item found with ID %d", args.TodoID), nil)
	}
	if err != nil {
		log.Printf("❌ Error loading todo %d for Google Calendar: %v", args.TodoID, err)
		return Fail("Failed to add todo item to Google Calendar", err)
	}

	duration := defaultEventDuration
	if args.DurationMinutes > 0 {
		duration = time.Duration(args.DurationMinutes) * time.Minute
	}
	event, err := h.cal.AddEvent(ctx, calendar.EventInput{
		Summary:     todo.Text,
		Description: fmt.Sprintf("To Do item #%d", todo.ID),
		Start:       start,
		Duration:    duration,
	})
	if err != nil {
		log.Printf("❌ Google Calendar insert failed for todo %d: %v", todo.ID, err)
		return Fail("Failed to add the event to Google Calendar", err)
	}
	return OK(fmt.Sprintf("To Do item %q (ID: %d) was added to Google Calendar on %s at %s",
		todo.Text, todo.ID, args.Date, args.Time), map[string]any{"event": event})
}

func (h *googleHandlers) addEvent(ctx context.Context, raw json.RawMessage) Result {
	var args googleEventArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Fail("Failed to add the event to Google Calendar", err)
	}
	if res, ok := validateSchedule(args.Date, args.Time); !ok {
		return res
	}
	if !h.connected() {
		return Fail(notConnectedMessage, nil)
	}
	start, err := ParseDateTime(args.Date, args.Time, h.location())
	if err != nil {
		return Fail(invalidDateMessage, err)
	}

	event, err := h.cal.AddEvent(ctx, calendar.EventInput{
		Summary:     args.Title,
		Description: args.Description,
		Start:       start,
		Duration:    defaultEventDuration,
	})
	if err != nil {
		log.Printf("❌ Google Calendar insert failed for %q: %v", args.Title, err)
		return Fail("Failed to add the event to Google Calendar", err)
	}
	return OK(fmt.Sprintf("Event %q was added to Google Calendar on %s at %s", args.Title, args.Date, args.Time),
		map[string]any{"event": event})
}

func (h *googleHandlers) list(ctx context.Context, raw json.RawMessage) Result {
	var args dateFilterArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Fail("Failed to retrieve Google Calendar events", err)
	}

	var from, to time.Time
	if args.Date != "" {
		var err error
		from, to, err = DayBounds(args.Date, h.location())
		if err != nil {
			return Fail(invalidDateMessage, err)
		}
	} else {
		from = h.now().In(h.location())
		to = from.AddDate(0, upcomingWindow, 0)
	}
	if !h.connected() {
		return Fail(notConnectedMessage, nil)
	}

	events, err := h.cal.ListEvents(ctx, from, to)
	if err != nil {
		log.Printf("❌ Google Calendar list failed: %v", err)
		return Fail("Failed to retrieve Google Calendar events", err)
	}
	fields := map[string]any{"events": events}
	switch {
	case len(events) == 0 && args.Date != "":
		return OK(fmt.Sprintf("No events found for date: %s", args.Date), fields)
	case len(events) == 0:
		return OK("No upcoming events found.", fields)
	default:
		return OK(fmt.Sprintf("Found %d event(s).", len(events)), fields)
	}
}

func (h *googleHandlers) setup(ctx context.Context, raw json.RawMessage) Result {
	var args credentialsArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Fail("Failed to set up Google Calendar", err)
	}
	if h.cal == nil {
		return Fail("Google Calendar integration is not available on this server", nil)
	}
	authURL, err := h.cal.Configure(ctx, args.Credentials)
	if err != nil {
		log.Printf("❌ Google Calendar setup failed: %v", err)
		return Fail("Failed to set up Google Calendar", err)
	}
	if authURL == "" {
		return OK("Google Calendar is already authenticated", map[string]any{"authenticated": true})
	}
	return OK("Google Calendar credentials saved. Open the authorization URL, then call authenticate_google_calendar with the code you receive.",
		map[string]any{"authenticated": false, "authUrl": authURL})
}

func (h *googleHandlers) authenticate(ctx context.Context, raw json.RawMessage) Result {
	var args codeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Fail("Failed to authenticate Google Calendar", err)
	}
	if h.cal == nil {
		return Fail("Google Calendar integration is not available on this server", nil)
	}
	if err := h.cal.Authenticate(ctx, args.Code); err != nil {
		log.Printf("❌ Google Calendar authentication failed: %v", err)
		return Fail("Failed to authenticate Google Calendar", err)
	}
	return OK("Google Calendar authentication completed successfully", map[string]any{"authenticated": true})
}

func (h *googleHandlers) checkAuth(_ context.Context, _ json.RawMessage) Result {
	if h.connected() {
		return OK("Google Calendar is authenticated", map[string]any{"authenticated": true})
	}
	return OK("Google Calendar is not authenticated. Use setup_google_calendar to connect it.",
		map[string]any{"authenticated": false})
}
