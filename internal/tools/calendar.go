package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"todo-assistant/internal/storage"
)

type scheduleArgs struct {
	TodoID          int64  `json:"todoId"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"durationMinutes"`
}

type dateFilterArgs struct {
	Date string `json:"date"`
}

// local calendar, persisted next to the todos
type calendarHandlers struct {
	store storage.Store
}

func (h *calendarHandlers) addTodo(ctx context.Context, raw json.RawMessage) Result {
	var args scheduleArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Fail("Failed to add todo item to calendar", err)
	}
	if res, ok := validateSchedule(args.Date, args.Time); !ok {
		return res
	}

	todo, err := h.store.GetTodo(ctx, args.TodoID)
	if errors.Is(err, storage.ErrNotFound) {
		return Fail(fmt.Sprintf("Error: No To Do item found with ID %d", args.TodoID), nil)
	}
	if err != nil {
		log.Printf("❌ Error loading todo %d for calendar: %v", args.TodoID, err)
		return Fail("Failed to add todo item to calendar", err)
	}

	event, err := h.store.AddCalendarEvent(ctx, todo.ID, todo.Text, args.Date, args.Time)
	if err != nil {
		log.Printf("❌ Error adding calendar event for todo %d: %v", todo.ID, err)
		return Fail("Failed to add todo item to calendar", err)
	}
	return OK(fmt.Sprintf("To Do item %q (ID: %d) was added to your calendar on %s at %s",
		todo.Text, todo.ID, args.Date, args.Time), map[string]any{"event": event})
}

func (h *calendarHandlers) list(ctx context.Context, raw json.RawMessage) Result {
	var args dateFilterArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Fail("Failed to retrieve calendar events", err)
	}
	if args.Date != "" {
		if err := ValidateDate(args.Date); err != nil {
			return Fail(invalidDateMessage, err)
		}
	}

	events, err := h.store.ListCalendarEvents(ctx, args.Date)
	if err != nil {
		log.Printf("❌ Error listing calendar events: %v", err)
		return Fail("Failed to retrieve calendar events", err)
	}
	fields := map[string]any{"events": events}
	switch {
	case len(events) == 0 && args.Date != "":
		return OK(fmt.Sprintf("No calendar events found for %s", args.Date), fields)
	case len(events) == 0:
		return OK("You have no calendar events yet. Use add_todo_to_calendar to schedule one!", fields)
	case args.Date != "":
		return OK(fmt.Sprintf("You have %d calendar event(s) on %s", len(events), args.Date), fields)
	default:
		return OK(fmt.Sprintf("You have %d calendar event(s)", len(events)), fields)
	}
}
