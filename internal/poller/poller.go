// Package poller waits for a remote run to settle by fetching its status on
// a fixed interval.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"todo-assistant/internal/assistant"
)

// ErrTimeout is returned when the run is still moving when the wait budget runs out.
var ErrTimeout = errors.New("run did not settle before the poll timeout")

// DefaultTerminal is the set of statuses Wait stops on when none are given.
// requires_action is included: the caller decides what to do with the tool calls.
var DefaultTerminal = []assistant.RunStatus{
	assistant.StatusCompleted,
	assistant.StatusFailed,
	assistant.StatusCancelled,
	assistant.StatusRequiresAction,
	assistant.StatusExpired,
	assistant.StatusIncomplete,
}

type Fetcher interface {
	RetrieveRun(ctx context.Context, threadID, runID string) (assistant.Run, error)
}

// Observer is told how every Wait ended.
type Observer interface {
	ObservePoll(outcome string, attempts int, elapsed time.Duration)
}

type Poller struct {
	fetch    Fetcher
	interval time.Duration
	timeout  time.Duration
	observer Observer
}

// New returns a poller. A zero timeout waits until ctx is done.
func New(fetch Fetcher, interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{fetch: fetch, interval: interval, timeout: timeout}
}

func (p *Poller) SetObserver(o Observer) {
	p.observer = o
}

// Wait fetches the run until its status is in terminal. A fetch error ends
// the wait and is returned together with the last observed run.
func (p *Poller) Wait(ctx context.Context, threadID, runID string, terminal ...assistant.RunStatus) (assistant.Run, error) {
	if len(terminal) == 0 {
		terminal = DefaultTerminal
	}
	waitCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	attempts := 0
	var last assistant.Run
	for {
		attempts++
		run, err := p.fetch.RetrieveRun(waitCtx, threadID, runID)
		if err != nil {
			if expired(ctx, waitCtx) {
				p.report("timeout", attempts, start)
				return last, fmt.Errorf("run %s: %w", runID, ErrTimeout)
			}
			p.report("error", attempts, start)
			return last, err
		}
		last = run
		if isTerminal(run.Status, terminal) {
			p.report(string(run.Status), attempts, start)
			return run, nil
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			if expired(ctx, waitCtx) {
				log.Printf("⏱️ Run %s still %s after %v, giving up", runID, run.Status, time.Since(start).Round(time.Millisecond))
				p.report("timeout", attempts, start)
				return last, fmt.Errorf("run %s: %w", runID, ErrTimeout)
			}
			p.report("cancelled", attempts, start)
			return last, ctx.Err()
		case <-timer.C:
		}
	}
}

// expired is true when our own deadline fired rather than the caller's ctx.
func expired(parent, waitCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded)
}

func isTerminal(s assistant.RunStatus, terminal []assistant.RunStatus) bool {
	for _, t := range terminal {
		if s == t {
			return true
		}
	}
	return false
}

func (p *Poller) report(outcome string, attempts int, start time.Time) {
	if p.observer != nil {
		p.observer.ObservePoll(outcome, attempts, time.Since(start))
	}
}
