// Package ledger pushes unsynced canonical transactions to the budgeting
// ledger and reconciles which of them the ledger actually accepted.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"banksync/internal/domain/notification"
	"banksync/internal/domain/payee"
	"banksync/internal/domain/transaction"
)

// ErrAccountNotFound means the configured account name matches no account
// in the ledger budget. Nothing can be pushed until the configuration or
// the budget is fixed.
var ErrAccountNotFound = errors.New("ledger account not found")

// Account is a ledger-side account.
type Account struct {
	ID   string
	Name string
}

// Entry is one transaction in the ledger's shape. Amounts are integer
// milliunits, thousandths of the major currency unit.
type Entry struct {
	AccountID   string
	AmountMilli int64
	Date        time.Time
	PayeeName   string
	Memo        string
}

// CreatedEntry is the ledger's confirmation of one accepted entry.
type CreatedEntry struct {
	ID   string
	Memo string
}

// Client is the slice of the ledger API the sync needs.
type Client interface {
	GetAccounts(ctx context.Context) ([]Account, error)
	CreateEntries(ctx context.Context, entries []Entry) ([]CreatedEntry, error)
}

// SyncService pushes unsynced transactions to the ledger and marks the
// confirmed ones as synced.
type SyncService struct {
	client      Client
	repo        transaction.Repository
	messenger   notification.Messenger
	accountName string
	now         func() time.Time
}

func NewSyncService(client Client, repo transaction.Repository, messenger notification.Messenger, accountName string) *SyncService {
	return &SyncService{
		client:      client,
		repo:        repo,
		messenger:   messenger,
		accountName: accountName,
		now:         time.Now,
	}
}

// Sync submits every unsynced transaction to the ledger in one batch and
// stamps SyncedOn on those the ledger confirms. Unconfirmed transactions
// stay unsynced and are retried on a later cycle. Returns the number of
// transactions marked synced.
func (s *SyncService) Sync(ctx context.Context) (int, error) {
	txs, err := s.repo.GetUnsynced(ctx)
	if err != nil {
		return 0, fmt.Errorf("load unsynced transactions: %w", err)
	}
	if len(txs) == 0 {
		log.Printf("No transactions waiting for ledger sync")
		return 0, nil
	}

	accountID, err := s.resolveAccount(ctx)
	if err != nil {
		return 0, err
	}

	entries := make([]Entry, 0, len(txs))
	for _, tx := range txs {
		entries = append(entries, Entry{
			AccountID:   accountID,
			AmountMilli: toMilliunits(tx.Raw.Amount),
			Date:        tx.BookingDate,
			PayeeName:   payee.Extract(tx.Raw.Narrative),
			Memo:        tx.Raw.Narrative,
		})
	}

	created, err := s.client.CreateEntries(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("push %d entries to ledger: %w", len(entries), err)
	}

	// The ledger echoes each accepted entry's memo; that is the only key
	// available to tie confirmations back to source transactions.
	now := s.now()
	var synced []*transaction.Transaction
	for _, c := range created {
		for _, tx := range txs {
			if tx.SyncedOn == nil && strings.EqualFold(tx.Raw.Narrative, c.Memo) {
				tx.SyncedOn = &now
				synced = append(synced, tx)
				break
			}
		}
	}

	if len(synced) > 0 {
		if err := s.repo.Upsert(ctx, synced); err != nil {
			return 0, fmt.Errorf("mark %d transactions synced: %w", len(synced), err)
		}
	}

	if unmatched := len(txs) - len(synced); unmatched > 0 {
		log.Printf("Ledger confirmed %d of %d pushed entries", len(synced), len(txs))
		s.alert(ctx, "Ledger sync mismatch",
			fmt.Sprintf("%d of %d pushed entries were not confirmed by the ledger. They remain queued and will be retried, but this may indicate entries silently dropped on the ledger side.",
				unmatched, len(txs)))
	} else {
		s.alert(ctx, fmt.Sprintf("%d entries synced to the ledger", len(synced)),
			fmt.Sprintf("%d entries have been synced to the ledger and are waiting to be categorized.", len(synced)))
	}

	return len(synced), nil
}

func (s *SyncService) resolveAccount(ctx context.Context) (string, error) {
	accounts, err := s.client.GetAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("list ledger accounts: %w", err)
	}
	for _, a := range accounts {
		if strings.EqualFold(a.Name, s.accountName) {
			return a.ID, nil
		}
	}
	s.alert(ctx, "Ledger account not found",
		fmt.Sprintf("No ledger account matches the configured name %q. Transactions cannot be pushed until this is resolved.", s.accountName))
	return "", fmt.Errorf("account %q: %w", s.accountName, ErrAccountNotFound)
}

// toMilliunits converts a full-precision decimal amount to the ledger's
// integer thousandths representation.
func toMilliunits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(1000)).Round(0).IntPart()
}

func (s *SyncService) alert(ctx context.Context, subject, body string) {
	if err := s.messenger.SendAlert(ctx, subject, body); err != nil {
		log.Printf("Failed to send ledger notification %q: %v", subject, err)
	}
}
