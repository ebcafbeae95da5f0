// Package runlock provides the named, expiring locks that keep catalog sync runs single-flight.
package runlock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrLocked is returned when another holder owns an unexpired lease.
var ErrLocked = errors.New("runlock: lock is held")

// ErrLeaseLost is returned by Renew once the lease expired and another holder took it, or it was
// released.
var ErrLeaseLost = errors.New("runlock: lease lost")

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Owner() string
	// Renew pushes the expiry to now+ttl while this owner still holds the lease.
	Renew(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker acquires leases without waiting.
type Locker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

type memoryHolder struct {
	owner     string
	expiresAt time.Time
}

// Memory is an in-process Locker for single instance deployments.
type Memory struct {
	mu    sync.Mutex
	held  map[string]memoryHolder
	now   func() time.Time
	newID func() string
}

// NewMemory builds an in-process Locker. A nil clock uses time.Now.
func NewMemory(clock func() time.Time) *Memory {
	if clock == nil {
		clock = time.Now
	}
	return &Memory{
		held:  make(map[string]memoryHolder),
		now:   clock,
		newID: func() string { return ulid.Make().String() },
	}
}

func (m *Memory) TryAcquire(_ context.Context, name string, ttl time.Duration) (Lease, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("runlock: name is required")
	}
	if ttl <= 0 {
		return nil, errors.New("runlock: ttl must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if current, ok := m.held[name]; ok && now.Before(current.expiresAt) {
		return nil, ErrLocked
	}
	owner := m.newID()
	m.held[name] = memoryHolder{owner: owner, expiresAt: now.Add(ttl)}
	return &memoryLease{locker: m, name: name, owner: owner}, nil
}

type memoryLease struct {
	locker *Memory
	name   string
	owner  string
	once   sync.Once
}

func (l *memoryLease) Owner() string { return l.owner }

func (l *memoryLease) Renew(_ context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("runlock: ttl must be positive")
	}
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	current, ok := l.locker.held[l.name]
	if !ok || current.owner != l.owner {
		return ErrLeaseLost
	}
	current.expiresAt = l.locker.now().Add(ttl)
	l.locker.held[l.name] = current
	return nil
}

func (l *memoryLease) Release(context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		defer l.locker.mu.Unlock()
		// A lease that expired and was taken over must not evict the new holder.
		if current, ok := l.locker.held[l.name]; ok && current.owner == l.owner {
			delete(l.locker.held, l.name)
		}
	})
	return nil
}
