package bridge

import (
	"context"
	"fmt"
	"log"

	"todo-assistant/internal/assistant"
	"todo-assistant/internal/storage"
	"todo-assistant/internal/tools"
)

// Turn is the result of one bridged protocol exchange. Pending is set when
// the run still wanted tools after the round budget was spent.
type Turn struct {
	ThreadID string
	Text     string
	Pending  []tools.Invocation
	Rounds   int
}

// Converse relays a protocol conversation through the assistant. A new
// conversation gets a fresh thread seeded with seed, and the thread is kept
// only once seeding succeeds; an existing one only receives latest. Tool
// calls are executed without approval up to the configured number of
// rounds. A cancelled run fails the turn, as it does in Handle.
func (b *Bridge) Converse(ctx context.Context, conversationID string, seed []string, latest string) (Turn, error) {
	key := "mcp:" + conversationID
	release, err := b.locks.Acquire(ctx, userKey(key))
	if err != nil {
		return Turn{}, err
	}
	defer release()

	threadID, existed := b.threads.Get(key)
	if !existed {
		if threadID, err = b.createThread(ctx, key); err != nil {
			return Turn{}, err
		}
	}

	releaseThread, err := b.locks.Acquire(ctx, threadKey(threadID))
	if err != nil {
		return Turn{}, err
	}
	defer releaseThread()

	turn := Turn{ThreadID: threadID}
	var run assistant.Run
	if existed {
		run, err = b.startRun(ctx, threadID, latest)
	} else {
		run, err = b.seed(ctx, threadID, seed)
	}
	if err != nil {
		return turn, err
	}
	if !existed {
		b.bind(key, threadID)
	}

	for run.Status == assistant.StatusRequiresAction && turn.Rounds < b.maxToolRounds {
		turn.Rounds++
		outputs := b.dispatch.Dispatch(ctx, run.ToolCalls)
		log.Printf("🔧 Auto-executed %d tool call(s) for %s (round %d)", len(outputs), key, turn.Rounds)
		if _, err := b.provider.SubmitToolOutputs(ctx, threadID, run.ID, outputs); err != nil {
			log.Printf("❌ Error submitting tool outputs for run %s: %v", run.ID, err)
			return turn, fmt.Errorf("submit tool outputs: %w", err)
		}
		if run, err = b.wait.Wait(ctx, threadID, run.ID); err != nil {
			return turn, err
		}
	}

	switch run.Status {
	case assistant.StatusRequiresAction:
		log.Printf("⚠️ Run %s still requires action after %d round(s)", run.ID, turn.Rounds)
		turn.Pending = run.ToolCalls
		return turn, nil
	case assistant.StatusFailed, assistant.StatusExpired, assistant.StatusCancelled:
		log.Printf("❌ Run %s ended %s: %s", run.ID, run.Status, run.LastError)
		return turn, fmt.Errorf("run %s %s: %w", run.ID, run.Status, ErrRunFailed)
	}

	if turn.Text, err = b.latestText(ctx, threadID); err != nil {
		return turn, err
	}
	b.record(storage.Event{UserID: key, ThreadID: threadID, UserMessage: latest, AssistantResponse: turn.Text})
	return turn, nil
}

func (b *Bridge) seed(ctx context.Context, threadID string, seed []string) (assistant.Run, error) {
	for _, text := range seed {
		if text == "" {
			continue
		}
		if err := b.provider.AddMessage(ctx, threadID, text); err != nil {
			log.Printf("❌ Error seeding thread %s: %v", threadID, err)
			return assistant.Run{}, err
		}
	}
	return b.run(ctx, threadID)
}
