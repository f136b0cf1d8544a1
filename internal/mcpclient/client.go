// Package mcpclient talks to the protocol envelope endpoint of a running
// server and keeps the conversation state a client needs between turns.
package mcpclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"todo-assistant/internal/protocol"
)

type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type Client struct {
	http *resty.Client

	conversationID string
	messages       []protocol.Message
}

func New(baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("User-Agent", "todo-assistant-mcp-client/1.0").
			SetTimeout(5 * time.Minute),
	}
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	resp, err := c.http.R().SetContext(ctx).SetResult(&h).Get("/mcp/health")
	if err != nil {
		return h, fmt.Errorf("health request failed: %w", err)
	}
	if resp.IsError() {
		return h, fmt.Errorf("health check error (%d): %s", resp.StatusCode(), resp.String())
	}
	return h, nil
}

func (c *Client) Tools(ctx context.Context) ([]protocol.Tool, error) {
	var out struct {
		Tools []protocol.Tool `json:"tools"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/mcp/tools")
	if err != nil {
		return nil, fmt.Errorf("tools request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tools error (%d): %s", resp.StatusCode(), resp.String())
	}
	return out.Tools, nil
}

// Send appends a user message, posts the whole conversation and keeps the
// assistant and tool messages of the reply for the next turn.
func (c *Client) Send(ctx context.Context, text string) ([]protocol.Message, error) {
	c.messages = append(c.messages, protocol.Message{Role: protocol.RoleUser, Content: protocol.Text(text)})

	req := protocol.Request{Version: protocol.Version, Messages: c.messages}
	if c.conversationID != "" {
		req.Metadata = map[string]any{"conversation_id": c.conversationID}
	}

	var out struct {
		protocol.Response
		Error *protocol.APIError `json:"error"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/mcp")
	if err != nil {
		return nil, fmt.Errorf("mcp request failed: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("mcp error (%d): %s", resp.StatusCode(), out.Error.Message)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("mcp error (%d): %s", resp.StatusCode(), resp.String())
	}

	if id, ok := out.Metadata["conversation_id"].(string); ok && id != "" {
		c.conversationID = id
	}
	for _, m := range out.Messages {
		if m.Role == protocol.RoleAssistant || m.Role == protocol.RoleTool {
			c.messages = append(c.messages, m)
		}
	}
	return out.Messages, nil
}

// Reset forgets the conversation.
func (c *Client) Reset() {
	c.conversationID = ""
	c.messages = nil
}

func (c *Client) ConversationID() string { return c.conversationID }
