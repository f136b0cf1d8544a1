package state

import (
	"context"
	"sync"
)

// Locks hands out one mutual-exclusion token per key. A holder keeps the
// token until it calls the returned release func.
type Locks struct {
	mu     sync.Mutex
	tokens map[string]*token
}

type token struct {
	ch      chan struct{}
	waiters int
}

func NewLocks() *Locks {
	return &Locks{tokens: make(map[string]*token)}
}

// Acquire blocks until the token for key is free or ctx is done.
func (l *Locks) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	t, ok := l.tokens[key]
	if !ok {
		t = &token{ch: make(chan struct{}, 1)}
		l.tokens[key] = t
	}
	t.waiters++
	l.mu.Unlock()

	select {
	case t.ch <- struct{}{}:
	case <-ctx.Done():
		l.forget(key, t)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-t.ch
			l.forget(key, t)
		})
	}, nil
}

// Held reports whether someone currently holds or waits for key.
func (l *Locks) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tokens[key]
	return ok
}

func (l *Locks) forget(key string, t *token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t.waiters--
	if t.waiters == 0 {
		delete(l.tokens, key)
	}
}
