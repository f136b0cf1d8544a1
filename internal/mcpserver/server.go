// Package mcpserver exposes the tool registry as a Model Context Protocol
// server over stdio or SSE.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"todo-assistant/internal/tools"
)

// Catalogue is the part of the tool registry served over MCP.
type Catalogue interface {
	Definitions() []tools.Definition
	Dispatch(ctx context.Context, calls []tools.Invocation) []tools.Output
}

// New builds an MCP server with one tool per registry definition.
func New(name, version string, cat Catalogue) (*mcp.Server, error) {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	defs := cat.Definitions()
	for _, def := range defs {
		schema, err := inputSchema(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", def.Name, err)
		}
		mcp.AddTool(server, &mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		}, handler(cat, def.Name))
	}
	log.Printf("📋 Registered %d MCP tools", len(defs))
	return server, nil
}

// SSEHandler serves server to every SSE client.
func SSEHandler(server *mcp.Server) http.Handler {
	return mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return server })
}

// RunStdio serves on stdin/stdout until ctx is done or the peer hangs up.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	log.Printf("🔗 Starting MCP server on stdin/stdout...")
	return server.Run(ctx, mcp.NewStdioTransport())
}

func handler(cat Catalogue, name string) mcp.ToolHandlerFor[map[string]any, any] {
	return func(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResultFor[any], error) {
		args := params.Arguments
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode arguments: %w", err)
		}

		out := cat.Dispatch(ctx, []tools.Invocation{{
			ID:       "mcp_" + uuid.NewString(),
			Type:     "function",
			Function: tools.FunctionCall{Name: name, Arguments: string(raw)},
		}})
		text := out[0].Output
		return &mcp.CallToolResultFor[any]{
			IsError: failed(text),
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	}
}

// failed reports whether a tool output is a failure result or an error object.
func failed(output string) bool {
	var probe struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(output), &probe); err != nil {
		return true
	}
	if probe.Success != nil {
		return !*probe.Success
	}
	return probe.Error != ""
}

func inputSchema(params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	return &schema, nil
}
