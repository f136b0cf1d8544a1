package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileRecorder_AppendAndLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "logs", "interactions.jsonl")
	rec, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init recorder: %v", err)
	}
	defer rec.Close()

	approved := true
	ev1 := Event{Timestamp: time.Unix(1, 0).UTC(), UserID: "u1", ThreadID: "thread_1", UserMessage: "add milk", AssistantResponse: "done"}
	ev2 := Event{Timestamp: time.Unix(2, 0).UTC(), UserID: "u2", ToolCalls: []string{"add_todo"}, Approved: &approved}
	for _, ev := range []Event{ev1, ev2} {
		if err := rec.AppendInteraction(ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := rec.LoadInteractions()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(events) != 2 || events[0].UserID != "u1" || events[1].UserID != "u2" {
		t.Fatalf("order mismatch: %+v", events)
	}
	if events[1].Approved == nil || !*events[1].Approved || len(events[1].ToolCalls) != 1 {
		t.Fatalf("approval fields lost: %+v", events[1])
	}
}

func TestFileRecorder_ReopenAppends(t *testing.T) {
	p := filepath.Join(t.TempDir(), "log.jsonl")
	first, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := first.AppendInteraction(Event{UserID: "before"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := first.AppendInteraction(Event{UserID: "late"}); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("append after close: %v", err)
	}

	second, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if err := second.AppendInteraction(Event{UserID: "after"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	events, err := second.LoadInteractions()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(events) != 2 || events[0].UserID != "before" || events[1].UserID != "after" {
		t.Fatalf("reopen should keep earlier events: %+v", events)
	}
}

func TestDecodeEvents_SkipsMalformedAndLongLines(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	src := "{broken\n\n{\"user_id\":\"u9\"}\n{\"user_id\":\"u10\",\"user_message\":\"" + long + "\"}"
	events, skipped, err := decodeEvents(strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("want 1 skipped line, got %d", skipped)
	}
	if len(events) != 2 || events[0].UserID != "u9" || len(events[1].UserMessage) != len(long) {
		t.Fatalf("unexpected events: %d", len(events))
	}
}
