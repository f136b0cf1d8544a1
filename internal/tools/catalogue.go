package tools

import (
	"fmt"
	"time"

	"todo-assistant/internal/storage"
)

func object(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

const (
	dateDescription = "The date for the calendar event in DD-MM-YYYY format"
	timeDescription = "The time for the calendar event in HH:MM format (24-hour)"
)

// NewDefaultRegistry registers the todo, local calendar and Google Calendar
// tools. cal may be nil, in which case the Google tools report that the
// integration is unavailable.
func NewDefaultRegistry(store storage.Store, cal GoogleCalendar) (*Registry, error) {
	todos := &todoHandlers{store: store}
	local := &calendarHandlers{store: store}
	google := &googleHandlers{store: store, cal: cal, now: time.Now}

	entries := []struct {
		def     Definition
		handler Handler
	}{
		{Definition{
			Name:        "add_todo",
			Description: "Add a new item to your todo list",
			Parameters:  object(map[string]any{"text": prop("string", "The text of the todo item")}, "text"),
		}, todos.add},
		{Definition{
			Name:        "get_todos",
			Description: "Get all items from your todo list",
			Parameters:  object(map[string]any{}),
		}, todos.list},
		{Definition{
			Name:        "remove_todo",
			Description: "Remove an item from your todo list by ID",
			Parameters:  object(map[string]any{"id": prop("integer", "The ID of the todo item to remove")}, "id"),
		}, todos.remove},
		{Definition{
			Name:        "remove_all_todos",
			Description: "Remove all items from your todo list",
			Parameters:  object(map[string]any{}),
		}, todos.removeAll},
		{Definition{
			Name:        "toggle_todo",
			Description: "Toggle the completion status of a todo item",
			Parameters:  object(map[string]any{"id": prop("integer", "The ID of the todo item to toggle")}, "id"),
		}, todos.toggle},
		{Definition{
			Name:        "add_todo_to_calendar",
			Description: "Add a todo item to your calendar with a specific date and time",
			Parameters: object(map[string]any{
				"todoId": prop("integer", "The ID of the todo item to add to calendar"),
				"date":   prop("string", dateDescription),
				"time":   prop("string", timeDescription),
			}, "todoId", "date", "time"),
		}, local.addTodo},
		{Definition{
			Name:        "get_calendar_events",
			Description: "Get all calendar events or events for a specific date",
			Parameters: object(map[string]any{
				"date": prop("string", "Optional: The date to filter events by in DD-MM-YYYY format"),
			}),
		}, local.list},
		{Definition{
			Name:        "add_todo_to_google_calendar",
			Description: "Add a todo item to Google Calendar with a specific date and time",
			Parameters: object(map[string]any{
				"todoId":          prop("integer", "The ID of the todo item to add to Google Calendar"),
				"date":            prop("string", dateDescription),
				"time":            prop("string", timeDescription),
				"durationMinutes": prop("integer", "Optional: The duration of the event in minutes (default: 60)"),
			}, "todoId", "date", "time"),
		}, google.addTodo},
		{Definition{
			Name:        "get_google_calendar_events",
			Description: "Get events from Google Calendar for a specific date or upcoming events",
			Parameters: object(map[string]any{
				"date": prop("string", "Optional: The date to filter events by in DD-MM-YYYY format"),
			}),
		}, google.list},
		{Definition{
			Name:        "setup_google_calendar",
			Description: "Setup Google Calendar integration by providing OAuth credentials",
			Parameters: object(map[string]any{
				"credentials": prop("string", "The JSON credentials string from Google Cloud Console"),
			}, "credentials"),
		}, google.setup},
		{Definition{
			Name:        "authenticate_google_calendar",
			Description: "Complete Google Calendar authentication with the provided code",
			Parameters: object(map[string]any{
				"code": prop("string", "The authentication code received from Google OAuth flow"),
			}, "code"),
		}, google.authenticate},
		{Definition{
			Name:        "check_google_calendar_auth",
			Description: "Check if Google Calendar is authenticated",
			Parameters:  object(map[string]any{}),
		}, google.checkAuth},
		{Definition{
			Name:        "add_event_to_google_calendar",
			Description: "Add an event directly to Google Calendar without creating a todo first",
			Parameters: object(map[string]any{
				"title":       prop("string", "The title of the event"),
				"description": prop("string", "The description of the event"),
				"date":        prop("string", dateDescription),
				"time":        prop("string", timeDescription),
			}, "title", "date", "time"),
		}, google.addEvent},
	}

	reg := NewRegistry()
	for _, e := range entries {
		if err := reg.Register(e.def, e.handler); err != nil {
			return nil, fmt.Errorf("register %s: %w", e.def.Name, err)
		}
	}
	return reg, nil
}
