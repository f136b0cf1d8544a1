package tools

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDispatch_OneOutputPerCallInOrder(t *testing.T) {
	reg := newTestRegistry(t, newMemStore(), nil)

	calls := []Invocation{
		call("call_1", "add_todo", `{"text":"buy milk"}`),
		call("call_2", "get_todos", `{}`),
		call("call_3", "toggle_todo", `{"id":1}`),
		call("call_4", "remove_todo", `{"id":1}`),
	}
	outs := reg.Dispatch(context.Background(), calls)
	if len(outs) != len(calls) {
		t.Fatalf("want %d outputs, got %d", len(calls), len(outs))
	}
	for i, out := range outs {
		if out.ToolCallID != calls[i].ID {
			t.Fatalf("output %d tagged %s, want %s", i, out.ToolCallID, calls[i].ID)
		}
		if m := decode(t, out); m["success"] != true {
			t.Fatalf("call %s failed: %v", out.ToolCallID, m)
		}
	}
}

func TestDispatch_UnknownFunctionIsIsolated(t *testing.T) {
	reg := newTestRegistry(t, newMemStore(), nil)

	outs := reg.Dispatch(context.Background(), []Invocation{
		call("a", "add_todo", `{"text":"one"}`),
		call("b", "launch_rockets", `{}`),
		call("c", "add_todo", `{"text":"two"}`),
	})
	if len(outs) != 3 {
		t.Fatalf("want 3 outputs, got %d", len(outs))
	}
	unknown := decode(t, outs[1])
	if unknown["error"] != "Unknown function: launch_rockets" {
		t.Fatalf("unexpected unknown output: %v", unknown)
	}
	if _, has := unknown["success"]; has {
		t.Fatalf("unknown function output should only carry error: %v", unknown)
	}
	for _, i := range []int{0, 2} {
		if m := decode(t, outs[i]); m["success"] != true {
			t.Fatalf("valid call %d failed: %v", i, m)
		}
	}
}

func TestDispatch_InvalidArgumentsFailWithoutSideEffects(t *testing.T) {
	store := newMemStore()
	reg := newTestRegistry(t, store, nil)

	outs := reg.Dispatch(context.Background(), []Invocation{
		call("bad_json", "add_todo", `{"text":`),
		call("missing", "add_todo", `{}`),
		call("wrong_type", "remove_todo", `{"id":"one"}`),
		{ID: "other_type", Type: "retrieval", Function: FunctionCall{Name: "add_todo"}},
	})
	for _, out := range outs {
		m := decode(t, out)
		if m["success"] == true {
			t.Fatalf("%s should fail: %v", out.ToolCallID, m)
		}
	}
	if store.mutations != 0 {
		t.Fatalf("invalid calls must not touch the store, got %d mutations", store.mutations)
	}
}

func TestDispatch_EmptyArgumentsMeansEmptyObject(t *testing.T) {
	reg := newTestRegistry(t, newMemStore(), nil)
	outs := reg.Dispatch(context.Background(), []Invocation{call("x", "get_todos", "")})
	if m := decode(t, outs[0]); m["success"] != true {
		t.Fatalf("empty arguments should be accepted: %v", m)
	}
}

func TestRegistry_RecoversHandlerPanic(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Definition{Name: "boom"}, func(context.Context, json.RawMessage) Result {
		panic("kaboom")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	outs := reg.Dispatch(context.Background(), []Invocation{call("p", "boom", "{}")})
	m := decode(t, outs[0])
	if m["success"] != false || !strings.Contains(m["error"].(string), "kaboom") {
		t.Fatalf("unexpected panic output: %v", m)
	}
}

func TestRegistry_RejectsDuplicatesAndBadSchemas(t *testing.T) {
	reg := NewRegistry()
	noop := func(context.Context, json.RawMessage) Result { return OK("ok", nil) }
	if err := reg.Register(Definition{Name: "a"}, noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(Definition{Name: "a"}, noop); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := reg.Register(Definition{Name: "b", Parameters: map[string]any{"type": 12}}, noop); err == nil {
		t.Fatalf("expected schema compile error")
	}
	if err := reg.Register(Definition{Name: ""}, noop); err == nil {
		t.Fatalf("expected missing name error")
	}
}

func TestNewDefaultRegistry_Catalogue(t *testing.T) {
	reg := newTestRegistry(t, newMemStore(), nil)
	want := []string{
		"add_todo", "get_todos", "remove_todo", "remove_all_todos", "toggle_todo",
		"add_todo_to_calendar", "get_calendar_events",
		"add_todo_to_google_calendar", "get_google_calendar_events",
		"setup_google_calendar", "authenticate_google_calendar", "check_google_calendar_auth",
		"add_event_to_google_calendar",
	}
	defs := reg.Definitions()
	if len(defs) != len(want) {
		t.Fatalf("want %d tools, got %d", len(want), len(defs))
	}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Fatalf("tool %d: want %s, got %s", i, want[i], d.Name)
		}
		if d.Description == "" || d.Parameters["type"] != "object" {
			t.Fatalf("tool %s has incomplete definition", d.Name)
		}
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (o *recordingObserver) ObserveTool(name, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[name] = outcome
}

func TestRegistry_ReportsOutcomes(t *testing.T) {
	reg := newTestRegistry(t, newMemStore(), nil)
	obs := &recordingObserver{outcomes: map[string]string{}}
	reg.SetObserver(obs)

	reg.Dispatch(context.Background(), []Invocation{
		call("1", "get_todos", "{}"),
		call("2", "remove_todo", `{"id":42}`),
		call("3", "nope", "{}"),
		call("4", "toggle_todo", `{}`),
	})
	want := map[string]string{
		"get_todos":   OutcomeSuccess,
		"remove_todo": OutcomeFailure,
		"nope":        OutcomeUnknown,
		"toggle_todo": OutcomeInvalid,
	}
	for name, outcome := range want {
		if obs.outcomes[name] != outcome {
			t.Fatalf("%s: want %s, got %s", name, outcome, obs.outcomes[name])
		}
	}
}

func TestResult_MarshalFlattensFields(t *testing.T) {
	b, err := json.Marshal(Result{Success: false, Message: "m", Error: "e", Fields: map[string]any{"todo": 1, "success": "ignored"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	if m["success"] != false || m["message"] != "m" || m["error"] != "e" || m["todo"].(float64) != 1 {
		t.Fatalf("unexpected encoding: %s", b)
	}
	b, _ = json.Marshal(OK("fine", nil))
	if strings.Contains(string(b), "error") {
		t.Fatalf("successful result should omit error: %s", b)
	}
}
