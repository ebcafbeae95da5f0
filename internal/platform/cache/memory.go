// Package cache provides the process-local snapshot store behind read caches.
package cache

import (
	"context"
	"sync/atomic"
	"time"
)

type entry[T any] struct {
	value     T
	storedAt  time.Time
	expiresAt time.Time
}

// Memory holds a single snapshot and swaps it atomically. The zero value is not usable; call NewMemory.
type Memory[T any] struct {
	current atomic.Pointer[entry[T]]
	now     func() time.Time
}

// MemoryOption customises Memory.
type MemoryOption[T any] func(*Memory[T])

// WithClock injects the time source used for expiry.
func WithClock[T any](clock func() time.Time) MemoryOption[T] {
	return func(m *Memory[T]) {
		if clock != nil {
			m.now = clock
		}
	}
}

func NewMemory[T any](opts ...MemoryOption[T]) *Memory[T] {
	m := &Memory[T]{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Get returns the snapshot and when it was stored, if one exists and has not expired.
func (m *Memory[T]) Get(context.Context) (T, time.Time, bool) {
	var zero T
	e := m.current.Load()
	if e == nil {
		return zero, time.Time{}, false
	}
	if !m.now().Before(e.expiresAt) {
		m.current.CompareAndSwap(e, nil)
		return zero, time.Time{}, false
	}
	return e.value, e.storedAt, true
}

// Put replaces the snapshot. A non-positive ttl stores nothing.
func (m *Memory[T]) Put(_ context.Context, value T, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := m.now()
	m.current.Store(&entry[T]{value: value, storedAt: now, expiresAt: now.Add(ttl)})
}

func (m *Memory[T]) Invalidate(context.Context) {
	m.current.Store(nil)
}
