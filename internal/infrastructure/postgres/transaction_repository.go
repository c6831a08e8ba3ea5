package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"banksync/internal/domain/transaction"
)

type TransactionRepository struct {
	db *DB
}

var _ transaction.Repository = (*TransactionRepository)(nil)

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) GetUnsynced(ctx context.Context) ([]*transaction.Transaction, error) {
	query := `
		SELECT id, entry_reference, booking_date, synced_on, raw
		FROM transactions
		WHERE synced_on IS NULL
		ORDER BY booking_date, entry_reference
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (r *TransactionRepository) GetSince(ctx context.Context, since time.Time) ([]*transaction.Transaction, error) {
	query := `
		SELECT id, entry_reference, booking_date, synced_on, raw
		FROM transactions
		WHERE booking_date >= $1
		ORDER BY booking_date, entry_reference
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions since %s: %w", since.Format("2006-01-02"), err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (r *TransactionRepository) Upsert(ctx context.Context, txs []*transaction.Transaction) error {
	query := `
		INSERT INTO transactions (id, entry_reference, booking_date, synced_on, raw)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entry_reference) DO UPDATE SET
			booking_date = EXCLUDED.booking_date,
			synced_on = EXCLUDED.synced_on,
			raw = EXCLUDED.raw
	`

	for _, tx := range txs {
		raw, err := json.Marshal(tx.Raw)
		if err != nil {
			return fmt.Errorf("failed to encode raw payload for %s: %w", tx.EntryReference, err)
		}
		var syncedOn sql.NullTime
		if tx.SyncedOn != nil {
			syncedOn = sql.NullTime{Time: *tx.SyncedOn, Valid: true}
		}
		if _, err := r.db.ExecContext(ctx, query, tx.ID, tx.EntryReference, tx.BookingDate, syncedOn, raw); err != nil {
			return fmt.Errorf("failed to upsert transaction %s: %w", tx.EntryReference, err)
		}
	}
	return nil
}

func scanTransactions(rows *sql.Rows) ([]*transaction.Transaction, error) {
	var txs []*transaction.Transaction
	for rows.Next() {
		var tx transaction.Transaction
		var syncedOn sql.NullTime
		var raw []byte

		if err := rows.Scan(&tx.ID, &tx.EntryReference, &tx.BookingDate, &syncedOn, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if syncedOn.Valid {
			tx.SyncedOn = &syncedOn.Time
		}
		if err := json.Unmarshal(raw, &tx.Raw); err != nil {
			return nil, fmt.Errorf("failed to decode raw payload for %s: %w", tx.EntryReference, err)
		}
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}
