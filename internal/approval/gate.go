// Package approval holds tool calls requested by a run until a person
// approves or denies them.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"todo-assistant/internal/assistant"
	"todo-assistant/internal/state"
	"todo-assistant/internal/tools"
)

var (
	ErrNoPending = errors.New("no tool calls are awaiting approval")
	ErrStaleRun  = errors.New("run is not the one awaiting approval")
)

type State string

const (
	StateAwaiting State = "awaiting_approval"
	StateResolved State = "resolved"
)

// Pending is the batch a run is blocked on.
type Pending struct {
	UserID    string
	ThreadID  string
	RunID     string
	ToolCalls []tools.Invocation
	CreatedAt time.Time
}

type Dispatcher interface {
	Dispatch(ctx context.Context, calls []tools.Invocation) []tools.Output
}

type Runs interface {
	RetrieveRun(ctx context.Context, threadID, runID string) (assistant.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []tools.Output) (assistant.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
}

type Waiter interface {
	Wait(ctx context.Context, threadID, runID string, terminal ...assistant.RunStatus) (assistant.Run, error)
}

// Observer counts gate transitions.
type Observer interface {
	ObserveDecision(decision string)
}

// Gate tracks at most one pending batch per thread.
type Gate struct {
	pending  state.Store[string, Pending]
	runs     Runs
	dispatch Dispatcher
	wait     Waiter
	ttl      time.Duration
	now      func() time.Time
	observer Observer
}

// New builds a gate. A zero ttl keeps pending batches until resolved.
func New(pending state.Store[string, Pending], runs Runs, dispatch Dispatcher, wait Waiter, ttl time.Duration) *Gate {
	return &Gate{pending: pending, runs: runs, dispatch: dispatch, wait: wait, ttl: ttl, now: time.Now}
}

func (g *Gate) SetObserver(o Observer) {
	g.observer = o
}

// Open records the tool calls of a run in requires_action. An unresolved
// batch for the same thread is replaced.
func (g *Gate) Open(userID string, run assistant.Run) Pending {
	if prev, ok := g.pending.Get(run.ThreadID); ok && prev.RunID != run.ID {
		log.Printf("⚠️ Superseding unresolved tool calls of run %s on thread %s", prev.RunID, run.ThreadID)
		g.observe("superseded")
	}
	p := Pending{
		UserID:    userID,
		ThreadID:  run.ThreadID,
		RunID:     run.ID,
		ToolCalls: run.ToolCalls,
		CreatedAt: g.now(),
	}
	g.pending.Set(run.ThreadID, p)
	g.observe("opened")
	log.Printf("⏸️ Run %s awaiting approval for %d tool call(s)", run.ID, len(run.ToolCalls))
	return p
}

// Pending returns the batch awaiting a decision on threadID, if any.
func (g *Gate) Pending(threadID string) (Pending, bool) {
	p, ok := g.pending.Get(threadID)
	if !ok {
		return Pending{}, false
	}
	if g.ttl > 0 && g.now().Sub(p.CreatedAt) > g.ttl {
		log.Printf("⌛ Approval for run %s expired", p.RunID)
		g.pending.Delete(threadID)
		g.observe("expired")
		return Pending{}, false
	}
	return p, true
}

func (g *Gate) State(threadID string) State {
	if _, ok := g.Pending(threadID); ok {
		return StateAwaiting
	}
	return StateResolved
}

// Approve executes the pending calls, submits their outputs and waits for
// the run to settle again. fallback is used only when nothing is recorded
// for the thread, and only for calls the run itself still requests.
func (g *Gate) Approve(ctx context.Context, threadID, runID string, fallback []tools.Invocation) (assistant.Run, error) {
	calls, err := g.take(ctx, threadID, runID, fallback)
	if err != nil {
		return assistant.Run{}, err
	}
	g.observe("approved")

	outputs := g.dispatch.Dispatch(ctx, calls)
	log.Printf("✅ Approved %d tool call(s) for run %s", len(outputs), runID)
	if _, err := g.runs.SubmitToolOutputs(ctx, threadID, runID, outputs); err != nil {
		return assistant.Run{}, fmt.Errorf("submit tool outputs: %w", err)
	}
	run, err := g.wait.Wait(ctx, threadID, runID)
	if err != nil {
		return run, fmt.Errorf("wait after approval: %w", err)
	}
	return run, nil
}

// Deny cancels the run without executing anything.
func (g *Gate) Deny(ctx context.Context, threadID, runID string) error {
	if p, ok := g.Pending(threadID); ok {
		if p.RunID != runID {
			return ErrStaleRun
		}
		g.pending.Delete(threadID)
	}
	g.observe("denied")
	log.Printf("🚫 Tool calls for run %s denied, cancelling", runID)
	if err := g.runs.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancel denied run: %w", err)
	}
	return nil
}

// take resolves the pending batch before execution so a repeated approval
// cannot run the same calls twice.
func (g *Gate) take(ctx context.Context, threadID, runID string, fallback []tools.Invocation) ([]tools.Invocation, error) {
	p, ok := g.Pending(threadID)
	if !ok {
		return g.requested(ctx, threadID, runID, fallback)
	}
	if p.RunID != runID {
		g.observe("stale")
		return nil, ErrStaleRun
	}
	g.pending.Delete(threadID)
	return p.ToolCalls, nil
}

// requested narrows fallback to the calls the provider reports for a run
// in requires_action. The provider's arguments win over the client's.
func (g *Gate) requested(ctx context.Context, threadID, runID string, fallback []tools.Invocation) ([]tools.Invocation, error) {
	if len(fallback) == 0 {
		return nil, ErrNoPending
	}
	run, err := g.runs.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve run %s: %v", ErrNoPending, runID, err)
	}
	if run.Status != assistant.StatusRequiresAction {
		return nil, ErrNoPending
	}
	offered := make(map[string]bool, len(fallback))
	for _, c := range fallback {
		offered[c.ID] = true
	}
	var calls []tools.Invocation
	for _, c := range run.ToolCalls {
		if offered[c.ID] {
			calls = append(calls, c)
		}
	}
	if len(calls) == 0 {
		return nil, ErrNoPending
	}
	if len(calls) < len(fallback) {
		log.Printf("⚠️ Dropped %d tool call(s) not requested by run %s", len(fallback)-len(calls), runID)
	}
	return calls, nil
}

func (g *Gate) observe(decision string) {
	if g.observer != nil {
		g.observer.ObserveDecision(decision)
	}
}
