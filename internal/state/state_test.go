package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryGetSetDelete(t *testing.T) {
	m := NewMemory[string, string]()
	if _, ok := m.Get("alice"); ok {
		t.Fatalf("empty store returned a value")
	}
	m.Set("alice", "thread_a")
	m.Set("bob", "thread_b")
	if v, ok := m.Get("alice"); !ok || v != "thread_a" {
		t.Fatalf("unexpected alice: %q %v", v, ok)
	}
	m.Delete("alice")
	if _, ok := m.Get("alice"); ok {
		t.Fatalf("delete not effective")
	}
	if m.Len() != 1 {
		t.Fatalf("want 1 key, got %d", m.Len())
	}
}

func TestLocks_SerializesSameKey(t *testing.T) {
	l := NewLocks()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "u1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r, err := l.Acquire(ctx, "u1")
		if err != nil {
			return
		}
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired while first still holds")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second holder never acquired")
	}
}

func TestLocks_DifferentKeysIndependent(t *testing.T) {
	l := NewLocks()
	ctx := context.Background()
	r1, err := l.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer r1()

	done := make(chan struct{})
	go func() {
		r2, err := l.Acquire(ctx, "b")
		if err == nil {
			r2()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("key b blocked by key a")
	}
}

func TestLocks_ContextCancel(t *testing.T) {
	l := NewLocks()
	release, _ := l.Acquire(context.Background(), "k")
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLocks_ReleaseIsIdempotentAndForgets(t *testing.T) {
	l := NewLocks()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := l.Acquire(context.Background(), "x")
			if err != nil {
				return
			}
			r()
			r()
		}()
	}
	wg.Wait()
	if l.Held("x") {
		t.Fatalf("token should be forgotten after all holders released")
	}
}
