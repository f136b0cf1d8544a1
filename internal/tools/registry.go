package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Outcome labels reported to an Observer.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeInvalid = "invalid_arguments"
	OutcomeUnknown = "unknown_function"
)

// Observer is notified once per executed invocation.
type Observer interface {
	ObserveTool(name, outcome string, elapsed time.Duration)
}

type entry struct {
	def     Definition
	schema  *jsonschema.Schema
	handler Handler
}

// Registry maps tool names to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	entries  map[string]entry
	observer Observer
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// SetObserver installs o for all later dispatches.
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Register adds a tool and compiles its parameter schema.
func (r *Registry) Register(def Definition, h Handler) error {
	if def.Name == "" {
		return fmt.Errorf("tool definition without name")
	}
	if h == nil {
		return fmt.Errorf("tool %s: nil handler", def.Name)
	}
	if def.Parameters == nil {
		def.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(def.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: encode schema: %w", def.Name, err)
	}
	schema, err := jsonschema.CompileString(def.Name+".schema.json", string(raw))
	if err != nil {
		return fmt.Errorf("tool %s: compile schema: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.entries[def.Name] = entry{def: def, schema: schema, handler: h}
	r.order = append(r.order, def.Name)
	return nil
}

// Definitions returns the registered tools in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].def)
	}
	return defs
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Dispatch executes calls in order and returns exactly one output per call,
// tagged with the call id. A failing or unknown call never aborts the batch.
func (r *Registry) Dispatch(ctx context.Context, calls []Invocation) []Output {
	outputs := make([]Output, 0, len(calls))
	for _, call := range calls {
		outputs = append(outputs, Output{
			ToolCallID: call.ID,
			Output:     encodeOutput(r.Execute(ctx, call)),
		})
	}
	return outputs
}

// Execute runs a single invocation and returns the JSON-serializable value
// that becomes its output.
func (r *Registry) Execute(ctx context.Context, call Invocation) any {
	name := call.Function.Name
	if call.Type != "" && call.Type != "function" {
		log.Printf("⚠️ Unsupported tool call type %q for %s", call.Type, call.ID)
		return map[string]string{"error": fmt.Sprintf("Unsupported tool call type: %s", call.Type)}
	}

	r.mu.RLock()
	e, ok := r.entries[name]
	observer := r.observer
	r.mu.RUnlock()

	start := time.Now()
	if !ok {
		log.Printf("⚠️ Unknown function requested: %s", name)
		observe(observer, name, OutcomeUnknown, start)
		return map[string]string{"error": fmt.Sprintf("Unknown function: %s", name)}
	}

	args, err := decodeArguments(call.Function.Arguments)
	if err != nil {
		log.Printf("❌ Tool %s: bad arguments: %v", name, err)
		observe(observer, name, OutcomeInvalid, start)
		return Fail(fmt.Sprintf("Invalid arguments for %s", name), err)
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		observe(observer, name, OutcomeInvalid, start)
		return Fail(fmt.Sprintf("Invalid arguments for %s", name), err)
	}
	if err := e.schema.Validate(decoded); err != nil {
		log.Printf("❌ Tool %s: arguments rejected by schema: %v", name, err)
		observe(observer, name, OutcomeInvalid, start)
		return Fail(fmt.Sprintf("Invalid arguments for %s", name), err)
	}

	log.Printf("🔧 Executing tool %s (call %s)", name, call.ID)
	res := runHandler(ctx, name, e.handler, args)
	outcome := OutcomeSuccess
	if !res.Success {
		outcome = OutcomeFailure
	}
	observe(observer, name, outcome, start)
	return res
}

func runHandler(ctx context.Context, name string, h Handler, args json.RawMessage) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("❌ Tool %s panicked: %v", name, p)
			res = Fail(fmt.Sprintf("Failed to execute %s", name), fmt.Errorf("panic: %v", p))
		}
	}()
	return h(ctx, args)
}

// decodeArguments accepts an empty string as an empty object.
func decodeArguments(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("arguments are not valid JSON")
	}
	return json.RawMessage(s), nil
}

func encodeOutput(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return string(b)
}

func observe(o Observer, name, outcome string, start time.Time) {
	if o != nil {
		o.ObserveTool(name, outcome, time.Since(start))
	}
}
