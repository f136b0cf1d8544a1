package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS todos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	completed BOOLEAN NOT NULL DEFAULT 0,
	createdAt TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS calendar_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	todoId INTEGER NOT NULL,
	title TEXT NOT NULL,
	date TEXT NOT NULL,
	time TEXT NOT NULL,
	createdAt TEXT NOT NULL,
	FOREIGN KEY (todoId) REFERENCES todos(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_calendar_events_date ON calendar_events(date);
`

// SQLStore implements Store on database/sql. Open wires it to SQLite.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the SQLite database at path (and its directory) and applies the schema.
func Open(ctx context.Context, path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database. The schema is not applied.
func New(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLStore) AddTodo(ctx context.Context, text string) (Todo, error) {
	createdAt := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO todos (text, completed, createdAt) VALUES (?, 0, ?)", text, createdAt)
	if err != nil {
		return Todo{}, fmt.Errorf("insert todo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Todo{}, fmt.Errorf("insert todo id: %w", err)
	}
	return Todo{ID: id, Text: text, Completed: false, CreatedAt: createdAt}, nil
}

func (s *SQLStore) ListTodos(ctx context.Context) ([]Todo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, text, completed, createdAt FROM todos ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	todos := []Todo{}
	for rows.Next() {
		var t Todo
		if err := rows.Scan(&t.ID, &t.Text, &t.Completed, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return todos, nil
}

func (s *SQLStore) GetTodo(ctx context.Context, id int64) (Todo, error) {
	var t Todo
	err := s.db.QueryRowContext(ctx,
		"SELECT id, text, completed, createdAt FROM todos WHERE id = ?", id).
		Scan(&t.ID, &t.Text, &t.Completed, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Todo{}, fmt.Errorf("todo %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Todo{}, fmt.Errorf("get todo %d: %w", id, err)
	}
	return t, nil
}

func (s *SQLStore) RemoveTodo(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM todos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete todo %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete todo %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("todo %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) RemoveAllTodos(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM todos")
	if err != nil {
		return 0, fmt.Errorf("delete all todos: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete all todos: %w", err)
	}
	return n, nil
}

func (s *SQLStore) ToggleTodo(ctx context.Context, id int64) (Todo, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE todos SET completed = CASE completed WHEN 0 THEN 1 ELSE 0 END WHERE id = ?", id)
	if err != nil {
		return Todo{}, fmt.Errorf("toggle todo %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Todo{}, fmt.Errorf("toggle todo %d: %w", id, err)
	}
	if n == 0 {
		return Todo{}, fmt.Errorf("todo %d: %w", id, ErrNotFound)
	}
	return s.GetTodo(ctx, id)
}

func (s *SQLStore) AddCalendarEvent(ctx context.Context, todoID int64, title, date, clock string) (CalendarEvent, error) {
	createdAt := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO calendar_events (todoId, title, date, time, createdAt) VALUES (?, ?, ?, ?, ?)",
		todoID, title, date, clock, createdAt)
	if err != nil {
		return CalendarEvent{}, fmt.Errorf("insert calendar event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return CalendarEvent{}, fmt.Errorf("insert calendar event id: %w", err)
	}
	return CalendarEvent{ID: id, TodoID: todoID, Title: title, Date: date, Time: clock, CreatedAt: createdAt}, nil
}

// ListCalendarEvents returns all events, or only those on date when it is non-empty.
func (s *SQLStore) ListCalendarEvents(ctx context.Context, date string) ([]CalendarEvent, error) {
	query := "SELECT id, todoId, title, date, time, createdAt FROM calendar_events"
	var args []any
	if date != "" {
		query += " WHERE date = ?"
		args = append(args, date)
	}
	// dates are DD-MM-YYYY, so sort on year, month, day
	query += " ORDER BY substr(date, 7, 4), substr(date, 4, 2), substr(date, 1, 2), time, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	defer rows.Close()

	events := []CalendarEvent{}
	for rows.Next() {
		var e CalendarEvent
		if err := rows.Scan(&e.ID, &e.TodoID, &e.Title, &e.Date, &e.Time, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return events, nil
}
