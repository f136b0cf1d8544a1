package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"todo-assistant/internal/assistant"
)

type scripted struct {
	mu       sync.Mutex
	statuses []assistant.RunStatus
	calls    int
	err      error
	errAt    int
}

func (s *scripted) RetrieveRun(ctx context.Context, threadID, runID string) (assistant.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil && s.calls == s.errAt {
		return assistant.Run{}, s.err
	}
	i := s.calls - 1
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return assistant.Run{ID: runID, ThreadID: threadID, Status: s.statuses[i]}, nil
}

type countingObserver struct {
	outcome  string
	attempts int
}

func (o *countingObserver) ObservePoll(outcome string, attempts int, _ time.Duration) {
	o.outcome, o.attempts = outcome, attempts
}

func TestWait_StopsOnTerminalStatus(t *testing.T) {
	f := &scripted{statuses: []assistant.RunStatus{assistant.StatusQueued, assistant.StatusInProgress, assistant.StatusCompleted}}
	p := New(f, time.Millisecond, 0)
	obs := &countingObserver{}
	p.SetObserver(obs)

	run, err := p.Wait(context.Background(), "thread_1", "run_1")
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if run.Status != assistant.StatusCompleted || f.calls != 3 {
		t.Fatalf("want completed after 3 fetches, got %s after %d", run.Status, f.calls)
	}
	if obs.outcome != "completed" || obs.attempts != 3 {
		t.Fatalf("unexpected observation: %+v", obs)
	}
}

func TestWait_RequiresActionIsSettled(t *testing.T) {
	f := &scripted{statuses: []assistant.RunStatus{assistant.StatusInProgress, assistant.StatusRequiresAction}}
	run, err := New(f, time.Millisecond, time.Second).Wait(context.Background(), "t", "r")
	if err != nil || run.Status != assistant.StatusRequiresAction {
		t.Fatalf("want requires_action, got %s %v", run.Status, err)
	}
}

func TestWait_CustomTerminalSet(t *testing.T) {
	f := &scripted{statuses: []assistant.RunStatus{assistant.StatusRequiresAction, assistant.StatusInProgress, assistant.StatusCompleted}}
	run, err := New(f, time.Millisecond, time.Second).Wait(context.Background(), "t", "r", assistant.StatusCompleted)
	if err != nil || run.Status != assistant.StatusCompleted || f.calls != 3 {
		t.Fatalf("custom terminal set ignored: %s after %d (%v)", run.Status, f.calls, err)
	}
}

func TestWait_FetchErrorPropagates(t *testing.T) {
	boom := errors.New("502 bad gateway")
	f := &scripted{statuses: []assistant.RunStatus{assistant.StatusInProgress}, err: boom, errAt: 2}
	obs := &countingObserver{}
	p := New(f, time.Millisecond, time.Second)
	p.SetObserver(obs)

	run, err := p.Wait(context.Background(), "t", "r")
	if !errors.Is(err, boom) {
		t.Fatalf("want fetch error, got %v", err)
	}
	if run.Status != assistant.StatusInProgress {
		t.Fatalf("last observed run should be returned, got %+v", run)
	}
	if obs.outcome != "error" {
		t.Fatalf("unexpected outcome %s", obs.outcome)
	}
}

func TestWait_TimesOut(t *testing.T) {
	f := &scripted{statuses: []assistant.RunStatus{assistant.StatusInProgress}}
	start := time.Now()
	_, err := New(f, 5*time.Millisecond, 30*time.Millisecond).Wait(context.Background(), "t", "r")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not honoured")
	}
}

func TestWait_CallerCancellation(t *testing.T) {
	f := &scripted{statuses: []assistant.RunStatus{assistant.StatusQueued}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := New(f, 5*time.Millisecond, 0).Wait(ctx, "t", "r")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("caller cancellation is not a timeout")
	}
}
