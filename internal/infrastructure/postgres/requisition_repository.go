package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"banksync/internal/domain/requisition"
)

type RequisitionRepository struct {
	db *DB
}

var _ requisition.Repository = (*RequisitionRepository)(nil)

func NewRequisitionRepository(db *DB) *RequisitionRepository {
	return &RequisitionRepository{db: db}
}

// GetActive returns the most recent requisition not explicitly marked
// invalid. The tri-state validity maps to a nullable boolean column, so
// both NULL (unknown) and TRUE (valid) count as active.
func (r *RequisitionRepository) GetActive(ctx context.Context) (*requisition.Requisition, error) {
	query := `
		SELECT id, requisition_id, created_on, last_sync_on, valid
		FROM requisitions
		WHERE valid IS DISTINCT FROM FALSE
		ORDER BY created_on DESC
		LIMIT 1
	`

	req, err := scanRequisition(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active requisition: %w", err)
	}
	return req, nil
}

func (r *RequisitionRepository) Upsert(ctx context.Context, req *requisition.Requisition) (*requisition.Requisition, error) {
	query := `
		INSERT INTO requisitions (id, requisition_id, created_on, last_sync_on, valid)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (requisition_id) DO UPDATE SET
			last_sync_on = EXCLUDED.last_sync_on,
			valid = EXCLUDED.valid
		RETURNING id, requisition_id, created_on, last_sync_on, valid
	`

	var lastSyncOn sql.NullTime
	if req.LastSyncOn != nil {
		lastSyncOn = sql.NullTime{Time: *req.LastSyncOn, Valid: true}
	}

	stored, err := scanRequisition(r.db.QueryRowContext(
		ctx, query,
		req.ID, req.RequisitionID, req.CreatedOn, lastSyncOn, validityToNullBool(req.Validity),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert requisition %s: %w", req.RequisitionID, err)
	}
	return stored, nil
}

func (r *RequisitionRepository) ListAll(ctx context.Context) ([]*requisition.Requisition, error) {
	query := `
		SELECT id, requisition_id, created_on, last_sync_on, valid
		FROM requisitions
		ORDER BY created_on DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list requisitions: %w", err)
	}
	defer rows.Close()

	var reqs []*requisition.Requisition
	for rows.Next() {
		var req requisition.Requisition
		var lastSyncOn sql.NullTime
		var valid sql.NullBool

		if err := rows.Scan(&req.ID, &req.RequisitionID, &req.CreatedOn, &lastSyncOn, &valid); err != nil {
			return nil, fmt.Errorf("failed to scan requisition: %w", err)
		}
		if lastSyncOn.Valid {
			req.LastSyncOn = &lastSyncOn.Time
		}
		req.Validity = validityFromNullBool(valid)
		reqs = append(reqs, &req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requisitions: %w", err)
	}
	return reqs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequisition(row rowScanner) (*requisition.Requisition, error) {
	var req requisition.Requisition
	var lastSyncOn sql.NullTime
	var valid sql.NullBool

	if err := row.Scan(&req.ID, &req.RequisitionID, &req.CreatedOn, &lastSyncOn, &valid); err != nil {
		return nil, err
	}
	if lastSyncOn.Valid {
		req.LastSyncOn = &lastSyncOn.Time
	}
	req.Validity = validityFromNullBool(valid)
	return &req, nil
}

func validityToNullBool(v requisition.Validity) sql.NullBool {
	switch v {
	case requisition.ValidityValid:
		return sql.NullBool{Bool: true, Valid: true}
	case requisition.ValidityInvalid:
		return sql.NullBool{Bool: false, Valid: true}
	default:
		return sql.NullBool{}
	}
}

func validityFromNullBool(b sql.NullBool) requisition.Validity {
	switch {
	case !b.Valid:
		return requisition.ValidityUnknown
	case b.Bool:
		return requisition.ValidityValid
	default:
		return requisition.ValidityInvalid
	}
}
