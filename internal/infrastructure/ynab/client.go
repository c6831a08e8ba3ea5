// Package ynab adapts the budgeting ledger's API to the shape the sync
// services consume.
package ynab

import (
	"context"
	"fmt"

	"github.com/brunomvsouza/ynab.go"
	"github.com/brunomvsouza/ynab.go/api"
	"github.com/brunomvsouza/ynab.go/api/account"
	"github.com/brunomvsouza/ynab.go/api/transaction"

	"banksync/internal/domain/ledger"
)

// accountLister is the account-listing slice of the ledger API.
type accountLister interface {
	GetAccounts(budgetID string, f *api.Filter) (*account.SearchResultSnapshot, error)
}

// entryCreator is the transaction-creation slice of the ledger API.
type entryCreator interface {
	CreateTransactions(budgetID string, ts []transaction.PayloadTransaction) (*transaction.OperationSummary, error)
}

// Client wraps the ledger API for one budget.
type Client struct {
	accounts accountLister
	entries  entryCreator
	budgetID string
}

var _ ledger.Client = (*Client)(nil)

// NewClient creates a ledger client authenticated with the given access
// token, scoped to a single budget.
func NewClient(accessToken, budgetID string) *Client {
	c := ynab.NewClient(accessToken)
	return &Client{
		accounts: c.Account(),
		entries:  c.Transaction(),
		budgetID: budgetID,
	}
}

// GetAccounts lists the accounts of the configured budget.
func (c *Client) GetAccounts(ctx context.Context) ([]ledger.Account, error) {
	snapshot, err := c.accounts.GetAccounts(c.budgetID, nil)
	if err != nil {
		return nil, fmt.Errorf("list accounts for budget %s: %w", c.budgetID, err)
	}
	out := make([]ledger.Account, 0, len(snapshot.Accounts))
	for _, a := range snapshot.Accounts {
		out = append(out, ledger.Account{
			ID:   a.ID,
			Name: a.Name,
		})
	}
	return out, nil
}

// CreateEntries submits the batch in one call and returns the entries the
// ledger confirms as created.
func (c *Client) CreateEntries(ctx context.Context, entries []ledger.Entry) ([]ledger.CreatedEntry, error) {
	payload := make([]transaction.PayloadTransaction, 0, len(entries))
	for _, e := range entries {
		memo := e.Memo
		payeeName := e.PayeeName
		p := transaction.PayloadTransaction{
			AccountID: e.AccountID,
			Date: api.Date{
				Time: e.Date,
			},
			Amount:  e.AmountMilli,
			Memo:    &memo,
			Cleared: transaction.ClearingStatusCleared,
		}
		if payeeName != "" {
			p.PayeeName = &payeeName
		}
		payload = append(payload, p)
	}

	summary, err := c.entries.CreateTransactions(c.budgetID, payload)
	if err != nil {
		return nil, fmt.Errorf("create %d transactions in budget %s: %w", len(payload), c.budgetID, err)
	}
	if summary == nil {
		return nil, fmt.Errorf("ledger returned no summary for budget %s", c.budgetID)
	}

	created := make([]ledger.CreatedEntry, 0, len(summary.Transactions))
	for _, tx := range summary.Transactions {
		memo := ""
		if tx.Memo != nil {
			memo = *tx.Memo
		}
		created = append(created, ledger.CreatedEntry{
			ID:   tx.ID,
			Memo: memo,
		})
	}
	return created, nil
}
