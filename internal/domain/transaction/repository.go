package transaction

import (
	"context"
	"time"
)

// Repository persists canonical transactions. Upserts are keyed by
// EntryReference so reruns over an overlapping window stay idempotent.
type Repository interface {
	// GetUnsynced returns all transactions with SyncedOn unset.
	GetUnsynced(ctx context.Context) ([]*Transaction, error)

	// GetSince returns all transactions booked on or after the given date.
	GetSince(ctx context.Context, since time.Time) ([]*Transaction, error)

	Upsert(ctx context.Context, txs []*Transaction) error
}
