// Package bridge drives conversations with the remote assistant: one thread
// per user, one active run per thread, and tool calls held for approval.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"todo-assistant/internal/approval"
	"todo-assistant/internal/assistant"
	"todo-assistant/internal/state"
	"todo-assistant/internal/storage"
	"todo-assistant/internal/tools"
)

const (
	DeniedMessage   = "The requested action was denied. How else can I help you?"
	AwaitingMessage = "Please respond to the pending tool approval request before sending a new message."
)

var (
	ErrAwaitingApproval = errors.New("tool calls are awaiting approval")
	ErrNoResponse       = errors.New("no assistant response found")
	ErrNoThread         = errors.New("no thread found for this user")
	ErrRunFailed        = errors.New("assistant run did not complete")
)

// Reply is the outcome of one chat turn. When RequiresAction is set the
// run is paused on ToolCalls and Response is empty.
type Reply struct {
	Response       string             `json:"response,omitempty"`
	ThreadID       string             `json:"threadId"`
	RequiresAction bool               `json:"requiresAction"`
	ToolCalls      []tools.Invocation `json:"toolCalls,omitempty"`
	RunID          string             `json:"runId,omitempty"`
}

// Decision answers a paused run. ToolCalls is only consulted when the gate
// has no record of the run.
type Decision struct {
	ThreadID  string             `json:"threadId"`
	RunID     string             `json:"runId"`
	Approved  bool               `json:"approved"`
	ToolCalls []tools.Invocation `json:"toolCalls,omitempty"`
}

type HistoryEntry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

type Options struct {
	Provider   assistant.Provider
	Waiter     approval.Waiter
	Gate       *approval.Gate
	Dispatcher approval.Dispatcher
	Threads    state.Store[string, string]
	Locks      *state.Locks
	Recorder   storage.Recorder
	// MaxToolRounds bounds automatic tool execution in Converse.
	MaxToolRounds int
}

type Bridge struct {
	provider      assistant.Provider
	wait          approval.Waiter
	gate          *approval.Gate
	dispatch      approval.Dispatcher
	threads       state.Store[string, string]
	owners        state.Store[string, string]
	locks         *state.Locks
	recorder      storage.Recorder
	maxToolRounds int
	now           func() time.Time
}

func New(opts Options) *Bridge {
	b := &Bridge{
		provider:      opts.Provider,
		wait:          opts.Waiter,
		gate:          opts.Gate,
		dispatch:      opts.Dispatcher,
		threads:       opts.Threads,
		owners:        state.NewMemory[string, string](),
		locks:         opts.Locks,
		recorder:      opts.Recorder,
		maxToolRounds: opts.MaxToolRounds,
		now:           time.Now,
	}
	if b.threads == nil {
		b.threads = state.NewMemory[string, string]()
	}
	if b.locks == nil {
		b.locks = state.NewLocks()
	}
	if b.maxToolRounds <= 0 {
		b.maxToolRounds = 1
	}
	return b
}

// Thread returns the user's thread, creating it on first contact.
func (b *Bridge) Thread(ctx context.Context, userID string) (string, error) {
	release, err := b.locks.Acquire(ctx, userKey(userID))
	if err != nil {
		return "", err
	}
	defer release()
	return b.resolveThread(ctx, userID)
}

// Handle sends one user message and drives the resulting run until it
// completes or pauses on tool calls.
func (b *Bridge) Handle(ctx context.Context, userID, message string) (Reply, error) {
	release, err := b.locks.Acquire(ctx, userKey(userID))
	if err != nil {
		return Reply{}, err
	}
	defer release()

	threadID, err := b.resolveThread(ctx, userID)
	if err != nil {
		return Reply{}, err
	}

	releaseThread, err := b.locks.Acquire(ctx, threadKey(threadID))
	if err != nil {
		return Reply{}, err
	}
	defer releaseThread()

	if p, pending := b.gate.Pending(threadID); pending {
		log.Printf("⏸️ User %s sent a message while run %s awaits approval", userID, p.RunID)
		return Reply{ThreadID: threadID, RequiresAction: true, ToolCalls: p.ToolCalls, RunID: p.RunID}, ErrAwaitingApproval
	}

	run, err := b.startRun(ctx, threadID, message)
	if err != nil {
		return Reply{ThreadID: threadID}, err
	}
	return b.conclude(ctx, userID, threadID, message, run, nil)
}

// ToolResponse applies an approve or deny decision to a paused run.
func (b *Bridge) ToolResponse(ctx context.Context, d Decision) (Reply, error) {
	release, err := b.locks.Acquire(ctx, threadKey(d.ThreadID))
	if err != nil {
		return Reply{}, err
	}
	defer release()

	userID, _ := b.Owner(d.ThreadID)

	if !d.Approved {
		if err := b.gate.Deny(ctx, d.ThreadID, d.RunID); err != nil {
			log.Printf("❌ Error denying run %s: %v", d.RunID, err)
			return Reply{ThreadID: d.ThreadID}, err
		}
		if userID != "" {
			denied := false
			b.record(storage.Event{UserID: userID, ThreadID: d.ThreadID, AssistantResponse: DeniedMessage, Approved: &denied})
		}
		return Reply{Response: DeniedMessage, ThreadID: d.ThreadID}, nil
	}

	run, err := b.gate.Approve(ctx, d.ThreadID, d.RunID, d.ToolCalls)
	if err != nil {
		log.Printf("❌ Error approving run %s: %v", d.RunID, err)
		return Reply{ThreadID: d.ThreadID}, err
	}
	approved := true
	return b.conclude(ctx, userID, d.ThreadID, "", run, &approved)
}

// Owner reports the user a thread belongs to. A pending batch names its
// user; otherwise the thread must have been created here.
func (b *Bridge) Owner(threadID string) (string, bool) {
	if p, ok := b.gate.Pending(threadID); ok && p.UserID != "" {
		return p.UserID, true
	}
	return b.owners.Get(threadID)
}

// History returns the user's thread messages oldest first.
func (b *Bridge) History(ctx context.Context, userID string) ([]HistoryEntry, error) {
	threadID, ok := b.threads.Get(userID)
	if !ok {
		return nil, ErrNoThread
	}
	msgs, err := b.provider.ListMessages(ctx, threadID)
	if err != nil {
		log.Printf("❌ Error fetching history for thread %s: %v", threadID, err)
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(msgs))
	for _, m := range assistant.Chronological(msgs) {
		entries = append(entries, HistoryEntry{Role: m.Role, Content: m.Text(), CreatedAt: m.CreatedAt})
	}
	return entries, nil
}

func (b *Bridge) resolveThread(ctx context.Context, key string) (string, error) {
	if threadID, ok := b.threads.Get(key); ok {
		return threadID, nil
	}
	threadID, err := b.createThread(ctx, key)
	if err != nil {
		return "", err
	}
	b.bind(key, threadID)
	return threadID, nil
}

func (b *Bridge) createThread(ctx context.Context, key string) (string, error) {
	threadID, err := b.provider.CreateThread(ctx)
	if err != nil {
		log.Printf("❌ Error creating thread for %s: %v", key, err)
		return "", err
	}
	log.Printf("🧵 Created thread %s for %s", threadID, key)
	return threadID, nil
}

func (b *Bridge) bind(key, threadID string) {
	b.threads.Set(key, threadID)
	b.owners.Set(threadID, key)
}

// startRun clears active runs, appends message and waits for the new run to settle.
func (b *Bridge) startRun(ctx context.Context, threadID, message string) (assistant.Run, error) {
	b.cancelActive(ctx, threadID)

	if err := b.provider.AddMessage(ctx, threadID, message); err != nil {
		log.Printf("❌ Error adding message to thread %s: %v", threadID, err)
		return assistant.Run{}, err
	}
	return b.run(ctx, threadID)
}

func (b *Bridge) run(ctx context.Context, threadID string) (assistant.Run, error) {
	run, err := b.provider.CreateRun(ctx, threadID)
	if err != nil {
		log.Printf("❌ Error creating run on thread %s: %v", threadID, err)
		return assistant.Run{}, err
	}
	log.Printf("▶️ Started run %s on thread %s", run.ID, threadID)

	settled, err := b.wait.Wait(ctx, threadID, run.ID)
	if err != nil {
		log.Printf("❌ Error polling run %s: %v", run.ID, err)
		return settled, err
	}
	return settled, nil
}

// cancelActive is best effort: failures are logged and the turn goes on.
func (b *Bridge) cancelActive(ctx context.Context, threadID string) {
	runs, err := b.provider.ListRuns(ctx, threadID)
	if err != nil {
		log.Printf("⚠️ Error listing runs on thread %s: %v", threadID, err)
		return
	}
	for _, r := range runs {
		if !r.Status.Active() {
			continue
		}
		if err := b.provider.CancelRun(ctx, threadID, r.ID); err != nil {
			log.Printf("⚠️ Error cancelling run %s: %v", r.ID, err)
			continue
		}
		log.Printf("🛑 Cancelled active run %s (%s)", r.ID, r.Status)
	}
}

// conclude turns a settled run into a Reply.
func (b *Bridge) conclude(ctx context.Context, userID, threadID, message string, run assistant.Run, approved *bool) (Reply, error) {
	ev := storage.Event{UserID: userID, ThreadID: threadID, UserMessage: message, Approved: approved}

	switch run.Status {
	case assistant.StatusRequiresAction:
		b.gate.Open(userID, run)
		ev.ToolCalls = toolNames(run.ToolCalls)
		b.record(ev)
		return Reply{ThreadID: threadID, RequiresAction: true, ToolCalls: run.ToolCalls, RunID: run.ID}, nil
	case assistant.StatusFailed, assistant.StatusExpired, assistant.StatusCancelled:
		log.Printf("❌ Run %s ended %s: %s", run.ID, run.Status, run.LastError)
		return Reply{ThreadID: threadID}, fmt.Errorf("run %s %s: %w", run.ID, run.Status, ErrRunFailed)
	}

	text, err := b.latestText(ctx, threadID)
	if err != nil {
		return Reply{ThreadID: threadID}, err
	}
	ev.AssistantResponse = text
	b.record(ev)
	return Reply{Response: text, ThreadID: threadID}, nil
}

func (b *Bridge) latestText(ctx context.Context, threadID string) (string, error) {
	msgs, err := b.provider.ListMessages(ctx, threadID)
	if err != nil {
		log.Printf("❌ Error listing messages on thread %s: %v", threadID, err)
		return "", err
	}
	latest, ok := assistant.LatestAssistantMessage(msgs)
	if !ok {
		return "", ErrNoResponse
	}
	return latest.Text(), nil
}

func (b *Bridge) record(ev storage.Event) {
	if b.recorder == nil {
		return
	}
	ev.Timestamp = b.now().UTC()
	if err := b.recorder.AppendInteraction(ev); err != nil {
		log.Printf("⚠️ Failed to record interaction: %v", err)
	}
}

func toolNames(calls []tools.Invocation) []string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Function.Name)
	}
	return names
}

func userKey(userID string) string     { return "user:" + userID }
func threadKey(threadID string) string { return "thread:" + threadID }
