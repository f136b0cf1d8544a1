// Package tools holds the local functions the assistant may call, the
// registry that maps a function name to its handler, and the dispatcher
// that turns a batch of invocations into a batch of outputs.
package tools

import (
	"context"
	"encoding/json"
)

// FunctionCall is the function part of an invocation. Arguments is the raw
// JSON object string produced by the model.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Invocation is one pending tool call, in the same shape the provider and
// the protocol layer use on the wire.
type Invocation struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Output answers exactly one Invocation. Output is a JSON document encoded as a string.
type Output struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// Definition describes a tool to the model. Parameters is a JSON Schema object.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Handler executes one tool. It receives the already validated argument
// object and must report failures through the Result, never by panicking.
type Handler func(ctx context.Context, args json.RawMessage) Result

// Result is what every handler returns. Fields are flattened next to
// success/message/error when encoded.
type Result struct {
	Success bool
	Message string
	Error   string
	Fields  map[string]any
}

func OK(message string, fields map[string]any) Result {
	return Result{Success: true, Message: message, Fields: fields}
}

// Fail builds a failed result. err may be nil for plain validation failures.
func Fail(message string, err error) Result {
	r := Result{Success: false, Message: message}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func (r Result) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		m[k] = v
	}
	m["success"] = r.Success
	m["message"] = r.Message
	if r.Error != "" {
		m["error"] = r.Error
	}
	return json.Marshal(m)
}
