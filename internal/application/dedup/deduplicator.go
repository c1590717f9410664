// Package dedup provides namespaced, TTL-scoped idempotency guards over a shared.DedupStore.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/domain/shared"
)

var (
	ErrUnknownOperation = errors.New("dedup: unknown operation")
	ErrEmptyKey         = errors.New("dedup: empty business key")
	ErrInvalidTTL       = errors.New("dedup: ttl must be positive")
)

// Deduplicator hands out leases keyed by (namespace, business key, operation)
type Deduplicator struct {
	store     shared.DedupStore
	namespace Namespace
	logger    *zap.Logger
}

// New creates a Deduplicator over store
func New(store shared.DedupStore, namespace Namespace, logger *zap.Logger) *Deduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{
		store:     store,
		namespace: namespace,
		logger:    logger.Named("dedup"),
	}
}

// Guard returns the lease for op over keyParts
func (d *Deduplicator) Guard(op Operation, ttl time.Duration, keyParts ...string) (*Lease, error) {
	if !op.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	if len(keyParts) == 0 || strings.Join(keyParts, "") == "" {
		return nil, ErrEmptyKey
	}
	return &Lease{
		store: d.store,
		key:   Key(d.namespace, op, keyParts...),
		op:    op,
		ttl:   ttl,
	}, nil
}

// Key builds the store key: namespace:operation:sha256(parts).
// Parts are separated by a unit separator so ("ab","c") and ("a","bc") differ.
func Key(ns Namespace, op Operation, parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return string(ns) + ":" + string(op) + ":" + hex.EncodeToString(h.Sum(nil))
}

// Lease is the idempotency marker of one (namespace, key, operation)
type Lease struct {
	store shared.DedupStore
	key   string
	op    Operation
	ttl   time.Duration
}

// Key returns the store key of the lease
func (l *Lease) Key() string {
	return l.key
}

// AlreadyDone reports whether a live marker exists
func (l *Lease) AlreadyDone(ctx context.Context) (bool, error) {
	done, err := l.store.Exists(ctx, l.key)
	if err != nil {
		return false, fmt.Errorf("dedup: check %s: %w", l.op, err)
	}
	return done, nil
}

// Claim atomically writes the marker. It returns false when another caller holds it,
// in which case the side effect must be skipped.
func (l *Lease) Claim(ctx context.Context) (bool, error) {
	ok, err := l.store.SetIfAbsent(ctx, l.key, l.ttl)
	if err != nil {
		return false, fmt.Errorf("dedup: claim %s: %w", l.op, err)
	}
	return ok, nil
}

// MarkDone records the side effect as done. Marking an already marked lease is not an error.
func (l *Lease) MarkDone(ctx context.Context) error {
	_, err := l.Claim(ctx)
	return err
}

// Release drops a claimed marker so a redelivery can run the side effect again.
// Used when the side effect failed after Claim.
func (l *Lease) Release(ctx context.Context) error {
	if err := l.store.Delete(ctx, l.key); err != nil {
		return fmt.Errorf("dedup: release %s: %w", l.op, err)
	}
	return nil
}
