package runlock

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/vinylyard/api/internal/platform/firestore"
)

// LeaseCollection holds one lease document per lock name.
const LeaseCollection = "syncLocks"

type leaseDocument struct {
	Owner      string    `firestore:"owner"`
	AcquiredAt time.Time `firestore:"acquiredAt"`
	ExpiresAt  time.Time `firestore:"expiresAt"`
}

type transactionRunner interface {
	Client(ctx context.Context) (*firestore.Client, error)
	RunTransaction(ctx context.Context, fn pfirestore.TxFunc, opts ...pfirestore.TxOption) error
}

// Firestore stores leases as documents in syncLocks/{name} so every instance sees the same holder.
type Firestore struct {
	provider transactionRunner
	now      func() time.Time
}

func NewFirestore(provider *pfirestore.Provider, clock func() time.Time) (*Firestore, error) {
	if provider == nil {
		return nil, errors.New("firestore runlock: provider is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Firestore{provider: provider, now: clock}, nil
}

func (f *Firestore) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "/") {
		return nil, errors.New("firestore runlock: invalid lock name")
	}
	if ttl <= 0 {
		return nil, errors.New("firestore runlock: ttl must be positive")
	}
	client, err := f.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	ref := client.Collection(LeaseCollection).Doc(name)
	owner := ulid.Make().String()

	err = f.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := f.now().UTC()
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var current leaseDocument
			if err := snap.DataTo(&current); err != nil {
				return err
			}
			if now.Before(current.ExpiresAt) {
				return ErrLocked
			}
		}
		return tx.Set(ref, leaseDocument{Owner: owner, AcquiredAt: now, ExpiresAt: now.Add(ttl)})
	}, pfirestore.WithTxAttempts(3))
	if errors.Is(err, ErrLocked) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, pfirestore.WrapError("runlock.acquire", err)
	}
	return &firestoreLease{locker: f, ref: ref, owner: owner}, nil
}

type firestoreLease struct {
	locker *Firestore
	ref    *firestore.DocumentRef
	owner  string
}

func (l *firestoreLease) Owner() string { return l.owner }

// Renew extends the lease document while this owner still holds it.
func (l *firestoreLease) Renew(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("firestore runlock: ttl must be positive")
	}
	err := l.locker.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(l.ref)
		if status.Code(err) == codes.NotFound {
			return ErrLeaseLost
		}
		if err != nil {
			return err
		}
		var current leaseDocument
		if err := snap.DataTo(&current); err != nil {
			return err
		}
		if current.Owner != l.owner {
			return ErrLeaseLost
		}
		current.ExpiresAt = l.locker.now().UTC().Add(ttl)
		return tx.Set(l.ref, current)
	}, pfirestore.WithTxAttempts(3))
	if errors.Is(err, ErrLeaseLost) {
		return ErrLeaseLost
	}
	if err != nil {
		return pfirestore.WrapError("runlock.renew", err)
	}
	return nil
}

// Release deletes the lease document only while this owner still holds it.
func (l *firestoreLease) Release(ctx context.Context) error {
	err := l.locker.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(l.ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var current leaseDocument
		if err := snap.DataTo(&current); err != nil {
			return err
		}
		if current.Owner != l.owner {
			return nil
		}
		return tx.Delete(l.ref)
	})
	return pfirestore.WrapError("runlock.release", err)
}
