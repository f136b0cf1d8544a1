package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a todo or event id does not exist.
var ErrNotFound = errors.New("not found")

type Todo struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"createdAt"`
}

// CalendarEvent is a todo scheduled on the local calendar. Date is DD-MM-YYYY, Time is HH:MM.
type CalendarEvent struct {
	ID        int64  `json:"id"`
	TodoID    int64  `json:"todoId"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	CreatedAt string `json:"createdAt"`
}

// Store is the CRUD surface the tool handlers depend on.
// Implementations must serialize their own writes.
type Store interface {
	AddTodo(ctx context.Context, text string) (Todo, error)
	ListTodos(ctx context.Context) ([]Todo, error)
	GetTodo(ctx context.Context, id int64) (Todo, error)
	RemoveTodo(ctx context.Context, id int64) error
	RemoveAllTodos(ctx context.Context) (int64, error)
	ToggleTodo(ctx context.Context, id int64) (Todo, error)
	AddCalendarEvent(ctx context.Context, todoID int64, title, date, clock string) (CalendarEvent, error)
	ListCalendarEvents(ctx context.Context, date string) ([]CalendarEvent, error)
}

// Event represents a single chat exchange handled by the bridge.
// Events are expected to be appended in chronological order.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	UserID            string    `json:"user_id"`
	ThreadID          string    `json:"thread_id,omitempty"`
	UserMessage       string    `json:"user_message,omitempty"`
	AssistantResponse string    `json:"assistant_response,omitempty"`
	ToolCalls         []string  `json:"tool_calls,omitempty"`
	Approved          *bool     `json:"approved,omitempty"`
}

// Recorder abstracts persistence of interaction events.
// LoadInteractions should return events in chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
