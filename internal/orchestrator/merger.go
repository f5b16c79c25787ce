package orchestrator

import (
	"context"
	"sync"
)

// Merger is an unbounded multi-producer, single-consumer stream. Producers
// never block on a slow consumer; memory is bounded by how fast the
// orchestrator lets producers complete. Out is closed only after Close has
// been called and every producer started with Go has returned.
type Merger[T any] struct {
	in  chan T
	out chan T
	wg  sync.WaitGroup

	closeOnce sync.Once
}

// NewMerger starts the queue goroutine.
func NewMerger[T any]() *Merger[T] {
	m := &Merger[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go m.pump()
	return m
}

func (m *Merger[T]) pump() {
	defer close(m.out)

	var queue []T
	in := m.in
	for in != nil || len(queue) > 0 {
		var send chan T
		var next T
		if len(queue) > 0 {
			send = m.out
			next = queue[0]
		}
		select {
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, v)
		case send <- next:
			var zero T
			queue[0] = zero
			queue = queue[1:]
		}
	}
}

// Emit is handed to producers; it never blocks on the consumer.
type Emit[T any] func(T)

// Go starts a producer. After Close it may only be called from inside a
// producer that is still running.
func (m *Merger[T]) Go(fn func(emit Emit[T])) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(func(v T) { m.in <- v })
	}()
}

// Add registers a producer that the caller runs itself; call the returned
// func when it is done. Useful for producers that spawn further producers.
func (m *Merger[T]) Add() (emit Emit[T], done func()) {
	m.wg.Add(1)
	var once sync.Once
	return func(v T) { m.in <- v }, func() { once.Do(m.wg.Done) }
}

// Close declares that no further producers will be started. Out closes once
// the running ones finish.
func (m *Merger[T]) Close() {
	m.closeOnce.Do(func() {
		go func() {
			m.wg.Wait()
			close(m.in)
		}()
	})
}

// Out is the consumer side.
func (m *Merger[T]) Out() <-chan T {
	return m.out
}

// Run fans units out through Fetch and streams every successful result. The
// returned channel closes after every unit has finished.
func Run[U, R any](ctx context.Context, o *Orchestrator, units []U, label func(U) string, fn func(ctx context.Context, u U) (R, error)) <-chan R {
	m := NewMerger[R]()
	for _, u := range units {
		m.Go(func(emit Emit[R]) {
			r, ok := Fetch(ctx, o, label(u), func(ctx context.Context) (R, error) {
				return fn(ctx, u)
			})
			if ok {
				emit(r)
			}
		})
	}
	m.Close()
	return m.Out()
}
