package requisition

import "context"

// Repository persists requisitions. Upserts are keyed by the
// aggregator-issued RequisitionID so that overlapping cycles cannot
// create duplicate rows for the same consent grant.
type Repository interface {
	// GetActive returns the most recently created requisition whose
	// validity is not explicitly Invalid, or nil when none exists.
	GetActive(ctx context.Context) (*Requisition, error)

	Upsert(ctx context.Context, req *Requisition) (*Requisition, error)

	ListAll(ctx context.Context) ([]*Requisition, error)
}
