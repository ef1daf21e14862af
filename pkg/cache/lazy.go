// Package cache holds process-wide shared instances that are built on first use and torn
// down explicitly.
package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("cache: instance closed")

// InitFunc builds the shared value.
type InitFunc[T any] func(ctx context.Context) (T, error)

// TeardownFunc releases the shared value.
type TeardownFunc[T any] func(ctx context.Context, value T) error

// Lazy is a lock-guarded, lazily initialised shared instance. The first successful Get
// stores the value; a failed initialisation is not cached and the next Get retries.
type Lazy[T any] struct {
	mu       sync.Mutex
	init     InitFunc[T]
	teardown TeardownFunc[T]

	value  T
	ready  bool
	closed bool
}

// NewLazy returns a Lazy that builds its value with init and releases it with teardown.
// teardown may be nil.
func NewLazy[T any](init InitFunc[T], teardown TeardownFunc[T]) *Lazy[T] {
	return &Lazy[T]{init: init, teardown: teardown}
}

// Get returns the shared value, initialising it on first use.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero T

	if l.closed {
		return zero, ErrClosed
	}

	if l.ready {
		return l.value, nil
	}

	value, err := l.init(ctx)
	if err != nil {
		return zero, err
	}

	l.value = value
	l.ready = true

	return value, nil
}

// Initialized reports whether the value has been built.
func (l *Lazy[T]) Initialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.ready
}

// Close tears the value down if it was built. Later calls to Get fail with ErrClosed.
// Close is safe to call more than once.
func (l *Lazy[T]) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	if !l.ready {
		return nil
	}

	value := l.value

	var zero T

	l.value = zero
	l.ready = false

	if l.teardown == nil {
		return nil
	}

	return l.teardown(ctx, value)
}
