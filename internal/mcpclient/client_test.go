package mcpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"todo-assistant/internal/protocol"
)

func TestClient_SendKeepsConversation(t *testing.T) {
	var seen []protocol.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/mcp/health":
			_ = json.NewEncoder(w).Encode(Health{Status: "ok", Version: protocol.Version})
		case "/mcp":
			var req protocol.Request
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode: %v", err)
			}
			seen = append(seen, req)
			_ = json.NewEncoder(w).Encode(protocol.Response{
				Version:  protocol.Version,
				Messages: []protocol.Message{{Role: protocol.RoleAssistant, Content: protocol.Text("hi there")}},
				Metadata: map[string]any{"conversation_id": "conv_1"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	ctx := context.Background()

	h, err := c.Health(ctx)
	if err != nil || h.Status != "ok" {
		t.Fatalf("health: %+v %v", h, err)
	}

	if _, err := c.Send(ctx, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs, err := c.Send(ctx, "again")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content.String() != "hi there" {
		t.Fatalf("unexpected reply %+v", msgs)
	}
	if len(seen) != 2 || seen[0].Metadata != nil || seen[1].Metadata["conversation_id"] != "conv_1" {
		t.Fatalf("conversation id not carried: %+v", seen)
	}
	if len(seen[1].Messages) != 3 {
		t.Fatalf("second request should carry user, assistant, user; got %d", len(seen[1].Messages))
	}

	c.Reset()
	if c.ConversationID() != "" {
		t.Fatalf("reset should forget the conversation")
	}
}

func TestClient_ProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(protocol.ErrInvalidRequest)
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Send(context.Background(), "hello"); err == nil {
		t.Fatalf("expected protocol error")
	}
}
