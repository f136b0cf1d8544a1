// Package protocol implements the versioned message-envelope (MCP) layer:
// request and response envelopes, tagged content parts and the translator
// that keeps per-conversation history.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"todo-assistant/internal/tools"
)

const Version = "0.1"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Part is one element of structured message content. The set of
// implementations is closed: TextPart, ToolCallPart and ToolResultPart.
type Part interface {
	kind() string
}

type TextPart struct {
	Text string
}

type ToolCallPart struct {
	Call tools.Invocation
}

type ToolResultPart struct {
	ToolCallID string
	Content    string
}

func (TextPart) kind() string       { return "text" }
func (ToolCallPart) kind() string   { return "tool_call" }
func (ToolResultPart) kind() string { return "tool_result" }

// Content is either a plain string or an ordered list of parts.
type Content struct {
	text  string
	parts []Part
	multi bool
}

func Text(s string) Content { return Content{text: s} }

func Parts(parts ...Part) Content { return Content{parts: parts, multi: true} }

// IsText reports whether the content was given as a plain string.
func (c Content) IsText() bool { return !c.multi }

func (c Content) Parts() []Part { return c.parts }

// String returns the plain text, or the text parts joined by newlines.
func (c Content) String() string {
	if !c.multi {
		return c.text
	}
	var texts []string
	for _, p := range c.parts {
		if t, ok := p.(TextPart); ok {
			texts = append(texts, t.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ToolCalls returns the embedded tool calls in order.
func (c Content) ToolCalls() []tools.Invocation {
	var calls []tools.Invocation
	for _, p := range c.parts {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc.Call)
		}
	}
	return calls
}

type wireResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

type wirePart struct {
	Type       string            `json:"type"`
	Text       *string           `json:"text,omitempty"`
	ToolCall   *tools.Invocation `json:"tool_call,omitempty"`
	ToolResult *wireResult       `json:"tool_result,omitempty"`
}

func (c Content) MarshalJSON() ([]byte, error) {
	if !c.multi {
		return json.Marshal(c.text)
	}
	wire := make([]wirePart, 0, len(c.parts))
	for _, p := range c.parts {
		switch v := p.(type) {
		case TextPart:
			text := v.Text
			wire = append(wire, wirePart{Type: v.kind(), Text: &text})
		case ToolCallPart:
			call := v.Call
			wire = append(wire, wirePart{Type: v.kind(), ToolCall: &call})
		case ToolResultPart:
			wire = append(wire, wirePart{Type: v.kind(), ToolResult: &wireResult{ToolCallID: v.ToolCallID, Content: v.Content}})
		default:
			return nil, fmt.Errorf("unsupported content part %T", p)
		}
	}
	return json.Marshal(wire)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	}

	var wire []wirePart
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("content must be a string or a list of parts: %w", err)
	}
	parts := make([]Part, 0, len(wire))
	for i, w := range wire {
		switch w.Type {
		case "text":
			var text string
			if w.Text != nil {
				text = *w.Text
			}
			parts = append(parts, TextPart{Text: text})
		case "tool_call":
			if w.ToolCall == nil {
				return fmt.Errorf("content part %d: tool_call is missing", i)
			}
			call := *w.ToolCall
			if call.Type == "" {
				call.Type = "function"
			}
			parts = append(parts, ToolCallPart{Call: call})
		case "tool_result":
			if w.ToolResult == nil {
				return fmt.Errorf("content part %d: tool_result is missing", i)
			}
			parts = append(parts, ToolResultPart{ToolCallID: w.ToolResult.ToolCallID, Content: w.ToolResult.Content})
		default:
			return fmt.Errorf("content part %d: unsupported type %q", i, w.Type)
		}
	}
	*c = Parts(parts...)
	return nil
}

type Message struct {
	Role       Role    `json:"role"`
	Content    Content `json:"content"`
	ToolCallID string  `json:"tool_call_id,omitempty"`
	Name       string  `json:"name,omitempty"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolsFrom converts registry definitions to protocol tool descriptors.
func ToolsFrom(defs []tools.Definition) []Tool {
	out := make([]Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, Tool{
			Type:     "function",
			Function: ToolFunction{Name: d.Name, Description: d.Description, Parameters: d.Parameters},
		})
	}
	return out
}

type Request struct {
	Version  string         `json:"version"`
	Messages []Message      `json:"messages"`
	Tools    []Tool         `json:"tools,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Response struct {
	Version  string         `json:"version"`
	Messages []Message      `json:"messages"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// APIError is the body of a protocol-level error reply.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

var (
	ErrInvalidRequest    = ErrorResponse{APIError{"invalid_request", "The request was malformed or invalid"}}
	ErrAuthentication    = ErrorResponse{APIError{"authentication_error", "Authentication failed"}}
	ErrPermissionDenied  = ErrorResponse{APIError{"permission_denied", "The request requires higher privileges than provided"}}
	ErrNotFound          = ErrorResponse{APIError{"not_found", "The requested resource was not found"}}
	ErrRateLimitExceeded = ErrorResponse{APIError{"rate_limit_exceeded", "Rate limit has been exceeded"}}
	ErrInternal          = ErrorResponse{APIError{"internal_error", "The server encountered an internal error"}}
)
