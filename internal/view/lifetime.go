package view

import (
	"context"
	"sync"

	"stringline-viewer/internal/transit"
)

// Lifetime scopes every fetch and timer started for one displayed identity.
// Release cancels them and waits until all have returned.
type Lifetime struct {
	id     transit.Identity
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	released bool
	wg       sync.WaitGroup
}

func NewLifetime(parent context.Context, id transit.Identity) *Lifetime {
	ctx, cancel := context.WithCancel(parent)
	return &Lifetime{id: id, ctx: ctx, cancel: cancel}
}

func (l *Lifetime) Identity() transit.Identity { return l.id }
func (l *Lifetime) Context() context.Context    { return l.ctx }

// Alive reports whether the lifetime has been neither released nor had its
// parent cancelled.
func (l *Lifetime) Alive() bool { return l.ctx.Err() == nil }

// Go runs fn bound to the lifetime. It returns false without running fn once
// the lifetime is released.
func (l *Lifetime) Go(fn func(ctx context.Context)) bool {
	return l.spawn(func(ctx context.Context, _ *task) { fn(ctx) }) != nil
}

// Release is idempotent.
func (l *Lifetime) Release() {
	l.mu.Lock()
	l.released = true
	l.mu.Unlock()
	l.cancel()
	l.wg.Wait()
}

// task is a recurring job that can be stopped on its own, before its
// lifetime ends.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *task) stop() {
	t.cancel()
	<-t.done
}

func (l *Lifetime) spawn(fn func(ctx context.Context, t *task)) *task {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	ctx, cancel := context.WithCancel(l.ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer close(t.done)
		defer cancel()
		fn(ctx, t)
	}()
	return t
}
