package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"todo-assistant/internal/assistant"
	"todo-assistant/internal/state"
	"todo-assistant/internal/tools"
)

type countingDispatcher struct {
	calls [][]tools.Invocation
}

func (d *countingDispatcher) Dispatch(_ context.Context, calls []tools.Invocation) []tools.Output {
	d.calls = append(d.calls, calls)
	out := make([]tools.Output, len(calls))
	for i, c := range calls {
		out[i] = tools.Output{ToolCallID: c.ID, Output: `{"success":true}`}
	}
	return out
}

type fakeRuns struct {
	runs      map[string]assistant.Run
	submitted [][]tools.Output
	cancelled []string
	submitErr error
	cancelErr error
}

func (r *fakeRuns) RetrieveRun(_ context.Context, _, runID string) (assistant.Run, error) {
	run, ok := r.runs[runID]
	if !ok {
		return assistant.Run{}, errors.New("no such run")
	}
	return run, nil
}

func (r *fakeRuns) SubmitToolOutputs(_ context.Context, threadID, runID string, outputs []tools.Output) (assistant.Run, error) {
	if r.submitErr != nil {
		return assistant.Run{}, r.submitErr
	}
	r.submitted = append(r.submitted, outputs)
	return assistant.Run{ID: runID, ThreadID: threadID, Status: assistant.StatusQueued}, nil
}

func (r *fakeRuns) CancelRun(_ context.Context, _, runID string) error {
	r.cancelled = append(r.cancelled, runID)
	return r.cancelErr
}

type settled struct{ status assistant.RunStatus }

func (s settled) Wait(_ context.Context, threadID, runID string, _ ...assistant.RunStatus) (assistant.Run, error) {
	return assistant.Run{ID: runID, ThreadID: threadID, Status: s.status}, nil
}

type decisions []string

func (d *decisions) ObserveDecision(decision string) { *d = append(*d, decision) }

func pendingRun() assistant.Run {
	return assistant.Run{
		ID:       "run_1",
		ThreadID: "thread_1",
		Status:   assistant.StatusRequiresAction,
		ToolCalls: []tools.Invocation{
			{ID: "call_1", Type: "function", Function: tools.FunctionCall{Name: "add_todo", Arguments: `{"text":"milk"}`}},
			{ID: "call_2", Type: "function", Function: tools.FunctionCall{Name: "get_todos", Arguments: `{}`}},
		},
	}
}

func newGate(d Dispatcher, r Runs) *Gate {
	return New(state.NewMemory[string, Pending](), r, d, settled{status: assistant.StatusCompleted}, time.Minute)
}

func TestGate_NothingExecutesBeforeApproval(t *testing.T) {
	d := &countingDispatcher{}
	runs := &fakeRuns{}
	g := newGate(d, runs)

	g.Open("user_1", pendingRun())
	if len(d.calls) != 0 || len(runs.submitted) != 0 {
		t.Fatalf("opening the gate must not execute tools")
	}
	if g.State("thread_1") != StateAwaiting {
		t.Fatalf("want awaiting_approval")
	}

	run, err := g.Approve(context.Background(), "thread_1", "run_1", nil)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if run.Status != assistant.StatusCompleted {
		t.Fatalf("unexpected run after approval: %+v", run)
	}
	if len(d.calls) != 1 || len(d.calls[0]) != 2 {
		t.Fatalf("want one dispatch of 2 calls, got %v", d.calls)
	}
	if len(runs.submitted) != 1 || runs.submitted[0][1].ToolCallID != "call_2" {
		t.Fatalf("outputs not submitted in order: %v", runs.submitted)
	}
	if g.State("thread_1") != StateResolved {
		t.Fatalf("gate should be resolved after approval")
	}
}

func TestGate_DenyCancelsWithoutExecuting(t *testing.T) {
	d := &countingDispatcher{}
	runs := &fakeRuns{}
	g := newGate(d, runs)
	g.Open("user_1", pendingRun())

	if err := g.Deny(context.Background(), "thread_1", "run_1"); err != nil {
		t.Fatalf("deny: %v", err)
	}
	if len(d.calls) != 0 || len(runs.submitted) != 0 {
		t.Fatalf("deny must not execute tools")
	}
	if len(runs.cancelled) != 1 || runs.cancelled[0] != "run_1" {
		t.Fatalf("run not cancelled: %v", runs.cancelled)
	}
	if _, ok := g.Pending("thread_1"); ok {
		t.Fatalf("deny should resolve the gate")
	}
}

func TestGate_ApproveTwiceExecutesOnce(t *testing.T) {
	d := &countingDispatcher{}
	g := newGate(d, &fakeRuns{})
	g.Open("user_1", pendingRun())

	if _, err := g.Approve(context.Background(), "thread_1", "run_1", nil); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := g.Approve(context.Background(), "thread_1", "run_1", nil); !errors.Is(err, ErrNoPending) {
		t.Fatalf("second approval should find nothing pending, got %v", err)
	}
	if len(d.calls) != 1 {
		t.Fatalf("tools executed %d times", len(d.calls))
	}
}

func TestGate_StaleRunRejected(t *testing.T) {
	d := &countingDispatcher{}
	runs := &fakeRuns{}
	g := newGate(d, runs)
	g.Open("user_1", pendingRun())

	if _, err := g.Approve(context.Background(), "thread_1", "run_old", nil); !errors.Is(err, ErrStaleRun) {
		t.Fatalf("want ErrStaleRun, got %v", err)
	}
	if err := g.Deny(context.Background(), "thread_1", "run_old"); !errors.Is(err, ErrStaleRun) {
		t.Fatalf("want ErrStaleRun on deny, got %v", err)
	}
	if len(d.calls) != 0 || len(runs.cancelled) != 0 {
		t.Fatalf("stale decisions must have no effect")
	}
	if _, ok := g.Pending("thread_1"); !ok {
		t.Fatalf("pending batch should survive a stale decision")
	}
}

func TestGate_NewRunSupersedesPendingBatch(t *testing.T) {
	var seen decisions
	g := newGate(&countingDispatcher{}, &fakeRuns{})
	g.SetObserver(&seen)
	g.Open("user_1", pendingRun())

	next := pendingRun()
	next.ID = "run_2"
	g.Open("user_1", next)

	p, ok := g.Pending("thread_1")
	if !ok || p.RunID != "run_2" {
		t.Fatalf("want run_2 pending, got %+v", p)
	}
	if len(seen) != 3 || seen[1] != "superseded" {
		t.Fatalf("unexpected decisions: %v", seen)
	}
}

func TestGate_PendingExpires(t *testing.T) {
	g := newGate(&countingDispatcher{}, &fakeRuns{})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	g.Open("user_1", pendingRun())

	now = now.Add(2 * time.Minute)
	if _, ok := g.Pending("thread_1"); ok {
		t.Fatalf("pending batch should expire after the ttl")
	}
}

func TestGate_FallbackCallsWhenNothingRecorded(t *testing.T) {
	d := &countingDispatcher{}
	run := pendingRun()
	run.ID, run.ThreadID = "run_9", "thread_9"
	g := newGate(d, &fakeRuns{runs: map[string]assistant.Run{"run_9": run}})

	if _, err := g.Approve(context.Background(), "thread_9", "run_9", nil); !errors.Is(err, ErrNoPending) {
		t.Fatalf("want ErrNoPending, got %v", err)
	}
	if _, err := g.Approve(context.Background(), "thread_9", "run_9", pendingRun().ToolCalls); err != nil {
		t.Fatalf("approve with fallback: %v", err)
	}
	if len(d.calls) != 1 || len(d.calls[0]) != 2 {
		t.Fatalf("fallback calls not executed: %v", d.calls)
	}
}

func TestGate_FallbackOnlyRunsRequestedCalls(t *testing.T) {
	run := pendingRun()
	run.ID, run.ThreadID = "run_9", "thread_9"
	settledRun := run
	settledRun.ID, settledRun.Status = "run_done", assistant.StatusCompleted

	forged := []tools.Invocation{
		{ID: "call_1", Type: "function", Function: tools.FunctionCall{Name: "delete_todo", Arguments: `{"id":1}`}},
		{ID: "call_x", Type: "function", Function: tools.FunctionCall{Name: "delete_todo", Arguments: `{"id":2}`}},
	}

	tests := []struct {
		name  string
		runID string
		calls []tools.Invocation
		want  []string
	}{
		{name: "unknown run", runID: "run_never_created", calls: forged},
		{name: "run not waiting", runID: "run_done", calls: pendingRun().ToolCalls},
		{name: "no matching ids", runID: "run_9", calls: forged[1:]},
		{name: "keeps requested calls only", runID: "run_9", calls: forged, want: []string{"add_todo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &countingDispatcher{}
			runs := &fakeRuns{runs: map[string]assistant.Run{"run_9": run, "run_done": settledRun}}
			g := newGate(d, runs)

			_, err := g.Approve(context.Background(), "thread_9", tt.runID, tt.calls)
			if tt.want == nil {
				if !errors.Is(err, ErrNoPending) {
					t.Fatalf("want ErrNoPending, got %v", err)
				}
				if len(d.calls) != 0 || len(runs.submitted) != 0 {
					t.Fatalf("nothing should execute: %v", d.calls)
				}
				return
			}
			if err != nil {
				t.Fatalf("approve: %v", err)
			}
			if len(d.calls) != 1 || len(d.calls[0]) != len(tt.want) {
				t.Fatalf("unexpected dispatch: %v", d.calls)
			}
			for i, name := range tt.want {
				if d.calls[0][i].Function.Name != name || d.calls[0][i].Function.Arguments != `{"text":"milk"}` {
					t.Fatalf("call %d should come from the run, got %+v", i, d.calls[0][i])
				}
			}
		})
	}
}

func TestGate_SubmitFailureSurfaces(t *testing.T) {
	runs := &fakeRuns{submitErr: errors.New("run expired")}
	g := newGate(&countingDispatcher{}, runs)
	g.Open("user_1", pendingRun())

	if _, err := g.Approve(context.Background(), "thread_1", "run_1", nil); err == nil {
		t.Fatalf("expected submit error")
	}
}
