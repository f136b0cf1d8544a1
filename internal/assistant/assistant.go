// Package assistant talks to a hosted assistant that keeps conversation
// state in threads and executes it in runs.
package assistant

import (
	"context"
	"sort"
	"strings"

	"todo-assistant/internal/tools"
)

type RunStatus string

const (
	StatusQueued         RunStatus = "queued"
	StatusInProgress     RunStatus = "in_progress"
	StatusRequiresAction RunStatus = "requires_action"
	StatusCancelling     RunStatus = "cancelling"
	StatusCancelled      RunStatus = "cancelled"
	StatusFailed         RunStatus = "failed"
	StatusCompleted      RunStatus = "completed"
	StatusIncomplete     RunStatus = "incomplete"
	StatusExpired        RunStatus = "expired"
)

// Active reports whether a run in this status blocks a new run on its thread.
func (s RunStatus) Active() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusRequiresAction:
		return true
	}
	return false
}

// Run is one execution of the assistant over a thread.
type Run struct {
	ID        string
	ThreadID  string
	Status    RunStatus
	ToolCalls []tools.Invocation // set while Status is requires_action
	LastError string
}

type Message struct {
	ID        string
	Role      string
	Texts     []string
	CreatedAt int64
}

// Text concatenates the text segments of the message.
func (m Message) Text() string {
	return strings.Join(m.Texts, "")
}

// Provider is the thread/run surface of the remote assistant.
type Provider interface {
	CreateThread(ctx context.Context) (string, error)
	AddMessage(ctx context.Context, threadID, content string) error
	CreateRun(ctx context.Context, threadID string) (Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (Run, error)
	ListRuns(ctx context.Context, threadID string) ([]Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []tools.Output) (Run, error)
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}

// LatestAssistantMessage picks the newest assistant-authored message.
func LatestAssistantMessage(msgs []Message) (Message, bool) {
	var (
		latest Message
		found  bool
	)
	for _, m := range msgs {
		if m.Role != "assistant" {
			continue
		}
		if !found || m.CreatedAt > latest.CreatedAt {
			latest, found = m, true
		}
	}
	return latest, found
}

// Chronological returns msgs oldest first. msgs is expected newest first,
// the way the provider lists them.
func Chronological(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}
