package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"todo-assistant/internal/calendar"
	"todo-assistant/internal/storage"
)

// memStore is an in-memory storage.Store that counts mutations.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	todos     []storage.Todo
	events    []storage.CalendarEvent
	mutations int
	failWith  error
}

func newMemStore() *memStore { return &memStore{nextID: 1} }

func (m *memStore) AddTodo(_ context.Context, text string) (storage.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return storage.Todo{}, m.failWith
	}
	m.mutations++
	t := storage.Todo{ID: m.nextID, Text: text, CreatedAt: "2025-01-01T00:00:00Z"}
	m.nextID++
	m.todos = append(m.todos, t)
	return t, nil
}

func (m *memStore) ListTodos(context.Context) ([]storage.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]storage.Todo, len(m.todos))
	copy(out, m.todos)
	return out, nil
}

func (m *memStore) GetTodo(_ context.Context, id int64) (storage.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.todos {
		if t.ID == id {
			return t, nil
		}
	}
	return storage.Todo{}, fmt.Errorf("todo %d: %w", id, storage.ErrNotFound)
}

func (m *memStore) RemoveTodo(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.todos {
		if t.ID == id {
			m.mutations++
			m.todos = append(m.todos[:i], m.todos[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("todo %d: %w", id, storage.ErrNotFound)
}

func (m *memStore) RemoveAllTodos(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations++
	n := int64(len(m.todos))
	m.todos = nil
	return n, nil
}

func (m *memStore) ToggleTodo(_ context.Context, id int64) (storage.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.todos {
		if m.todos[i].ID == id {
			m.mutations++
			m.todos[i].Completed = !m.todos[i].Completed
			return m.todos[i], nil
		}
	}
	return storage.Todo{}, fmt.Errorf("todo %d: %w", id, storage.ErrNotFound)
}

func (m *memStore) AddCalendarEvent(_ context.Context, todoID int64, title, date, clock string) (storage.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations++
	e := storage.CalendarEvent{ID: int64(len(m.events) + 1), TodoID: todoID, Title: title, Date: date, Time: clock}
	m.events = append(m.events, e)
	return e, nil
}

func (m *memStore) ListCalendarEvents(_ context.Context, date string) ([]storage.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []storage.CalendarEvent{}
	for _, e := range m.events {
		if date == "" || e.Date == date {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeCalendar struct {
	authenticated bool
	added         []calendar.EventInput
	listFrom      time.Time
	listTo        time.Time
	listCalls     int
	authURL       string
	codes         []string
}

func (f *fakeCalendar) Configure(context.Context, string) (string, error) { return f.authURL, nil }

func (f *fakeCalendar) Authenticate(_ context.Context, code string) error {
	f.codes = append(f.codes, code)
	f.authenticated = true
	return nil
}

func (f *fakeCalendar) IsAuthenticated() bool { return f.authenticated }

func (f *fakeCalendar) AddEvent(_ context.Context, in calendar.EventInput) (calendar.Event, error) {
	f.added = append(f.added, in)
	return calendar.Event{ID: fmt.Sprintf("evt%d", len(f.added)), Summary: in.Summary}, nil
}

func (f *fakeCalendar) ListEvents(_ context.Context, from, to time.Time) ([]calendar.Event, error) {
	f.listCalls++
	f.listFrom, f.listTo = from, to
	return nil, nil
}

func (f *fakeCalendar) Location() *time.Location { return time.UTC }

func call(id, name, args string) Invocation {
	return Invocation{ID: id, Type: "function", Function: FunctionCall{Name: name, Arguments: args}}
}

func decode(t *testing.T, out Output) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(out.Output), &m); err != nil {
		t.Fatalf("output %s is not JSON: %v", out.ToolCallID, err)
	}
	return m
}

func newTestRegistry(t *testing.T, store storage.Store, cal GoogleCalendar) *Registry {
	t.Helper()
	reg, err := NewDefaultRegistry(store, cal)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}
