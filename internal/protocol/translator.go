package protocol

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"todo-assistant/internal/bridge"
	"todo-assistant/internal/state"
	"todo-assistant/internal/tools"
)

const (
	invalidRequestMessage = "Invalid request format. Please provide valid version and messages."
	bridgeErrorMessage    = "Error processing your request with OpenAI. Please try again."
	internalErrorMessage  = "An error occurred processing your request. Please try again."
)

type Dispatcher interface {
	Dispatch(ctx context.Context, calls []tools.Invocation) []tools.Output
}

// Conversationalist is the assistant-backed flow used in bridged mode.
type Conversationalist interface {
	Converse(ctx context.Context, conversationID string, seed []string, latest string) (bridge.Turn, error)
}

// Observer is told which mode served each request and how it ended.
type Observer interface {
	ObserveRequest(mode, outcome string)
}

type Translator struct {
	history  state.Store[string, []Message]
	locks    *state.Locks
	dispatch Dispatcher
	newID    func() string

	mu       sync.RWMutex
	bridge   Conversationalist
	observer Observer
}

// NewTranslator returns a standalone translator. A nil history store is
// replaced with an in-memory one.
func NewTranslator(history state.Store[string, []Message], dispatch Dispatcher) *Translator {
	if history == nil {
		history = state.NewMemory[string, []Message]()
	}
	return &Translator{
		history:  history,
		locks:    state.NewLocks(),
		dispatch: dispatch,
		newID:    uuid.NewString,
	}
}

// Connect switches the translator to bridged mode.
func (t *Translator) Connect(b Conversationalist) {
	t.mu.Lock()
	t.bridge = b
	t.mu.Unlock()
	log.Println("🔗 Assistant bridge connected to MCP")
}

func (t *Translator) SetObserver(o Observer) {
	t.mu.Lock()
	t.observer = o
	t.mu.Unlock()
}

// Conversation returns the stored history for id.
func (t *Translator) Conversation(id string) []Message {
	msgs, _ := t.history.Get(id)
	return msgs
}

// Process handles one request envelope. It never returns an error: every
// failure is reported as an assistant message with details in metadata.
func (t *Translator) Process(ctx context.Context, req Request) (resp Response) {
	var conversationID string
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Error processing MCP request: %v", r)
			t.observe("internal", "error")
			resp = Response{
				Version:  Version,
				Messages: []Message{{Role: RoleAssistant, Content: Text(internalErrorMessage)}},
				Metadata: map[string]any{"error": fmt.Sprint(r)},
			}
			if conversationID != "" {
				resp.Metadata["conversation_id"] = conversationID
			}
		}
	}()

	if req.Version == "" || req.Messages == nil {
		log.Println("⚠️ Invalid MCP request format")
		t.observe("invalid", "error")
		return Response{
			Version:  Version,
			Messages: []Message{{Role: RoleAssistant, Content: Text(invalidRequestMessage)}},
		}
	}

	conversationID = conversationIDFrom(req.Metadata)
	if conversationID == "" {
		conversationID = t.newID()
	}
	log.Printf("📨 MCP processing for conversation %s", conversationID)

	release, err := t.locks.Acquire(ctx, "conversation:"+conversationID)
	if err != nil {
		return t.failure(conversationID, internalErrorMessage, err)
	}
	defer release()

	prior, _ := t.history.Get(conversationID)
	all := make([]Message, 0, len(prior)+len(req.Messages))
	all = append(append(all, prior...), req.Messages...)
	t.history.Set(conversationID, all)

	t.mu.RLock()
	b := t.bridge
	t.mu.RUnlock()

	if latest, ok := latestUserText(req.Messages); ok && b != nil {
		return t.bridged(ctx, b, conversationID, latest, all)
	}
	return t.standalone(ctx, conversationID, all)
}

func (t *Translator) bridged(ctx context.Context, b Conversationalist, conversationID, latest string, all []Message) Response {
	turn, err := b.Converse(ctx, conversationID, seedFrom(all), latest)
	if err != nil {
		log.Printf("❌ Error processing MCP conversation %s with the assistant: %v", conversationID, err)
		t.observe("bridged", "error")
		return t.failure(conversationID, bridgeErrorMessage, err)
	}

	reply := Message{Role: RoleAssistant, Content: Text(turn.Text)}
	if len(turn.Pending) > 0 {
		var parts []Part
		if turn.Text != "" {
			parts = append(parts, TextPart{Text: turn.Text})
		}
		for _, call := range turn.Pending {
			parts = append(parts, ToolCallPart{Call: call})
		}
		reply.Content = Parts(parts...)
	}

	t.history.Set(conversationID, append(all, reply))
	t.observe("bridged", "ok")
	return Response{
		Version:  Version,
		Messages: []Message{reply},
		Metadata: map[string]any{"conversation_id": conversationID, "thread_id": turn.ThreadID},
	}
}

// standalone executes the tool calls embedded in the latest assistant
// message that have not been answered yet.
func (t *Translator) standalone(ctx context.Context, conversationID string, all []Message) Response {
	calls := pendingCalls(all)
	out := make([]Message, 0, len(calls))
	if len(calls) > 0 {
		outputs := t.dispatch.Dispatch(ctx, calls)
		log.Printf("🔧 MCP executed %d tool call(s) for conversation %s", len(outputs), conversationID)
		for i, o := range outputs {
			out = append(out, Message{
				Role:       RoleTool,
				ToolCallID: o.ToolCallID,
				Name:       calls[i].Function.Name,
				Content:    Text(o.Output),
			})
		}
		t.history.Set(conversationID, append(all, out...))
	}
	t.observe("standalone", "ok")
	return Response{
		Version:  Version,
		Messages: out,
		Metadata: map[string]any{"conversation_id": conversationID},
	}
}

func (t *Translator) failure(conversationID, message string, err error) Response {
	return Response{
		Version:  Version,
		Messages: []Message{{Role: RoleAssistant, Content: Text(message)}},
		Metadata: map[string]any{"conversation_id": conversationID, "error": err.Error()},
	}
}

func (t *Translator) observe(mode, outcome string) {
	t.mu.RLock()
	o := t.observer
	t.mu.RUnlock()
	if o != nil {
		o.ObserveRequest(mode, outcome)
	}
}

func conversationIDFrom(metadata map[string]any) string {
	if id, ok := metadata["conversation_id"].(string); ok {
		return id
	}
	return ""
}

// latestUserText returns the newest user message of the request when its
// content is plain text.
func latestUserText(msgs []Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != RoleUser {
			continue
		}
		if !msgs[i].Content.IsText() {
			return "", false
		}
		return msgs[i].Content.String(), true
	}
	return "", false
}

// seedFrom collects the plain-text system and user messages used to
// prime a new thread.
func seedFrom(all []Message) []string {
	var seed []string
	for _, m := range all {
		if (m.Role == RoleSystem || m.Role == RoleUser) && m.Content.IsText() {
			seed = append(seed, m.Content.String())
		}
	}
	return seed
}

func pendingCalls(all []Message) []tools.Invocation {
	last := -1
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Role == RoleAssistant {
			last = i
			break
		}
	}
	if last < 0 || all[last].Content.IsText() {
		return nil
	}

	answered := map[string]bool{}
	for _, m := range all[last+1:] {
		if m.Role == RoleTool && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
		for _, p := range m.Content.Parts() {
			if r, ok := p.(ToolResultPart); ok {
				answered[r.ToolCallID] = true
			}
		}
	}

	var calls []tools.Invocation
	for _, c := range all[last].Content.ToolCalls() {
		if !answered[c.ID] {
			calls = append(calls, c)
		}
	}
	return calls
}
