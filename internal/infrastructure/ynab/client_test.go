package ynab

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brunomvsouza/ynab.go/api"
	"github.com/brunomvsouza/ynab.go/api/account"
	"github.com/brunomvsouza/ynab.go/api/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banksync/internal/domain/ledger"
)

type fakeAccountLister struct {
	budgetID string
	filter   *api.Filter
	snapshot *account.SearchResultSnapshot
	err      error
}

func (f *fakeAccountLister) GetAccounts(budgetID string, filter *api.Filter) (*account.SearchResultSnapshot, error) {
	f.budgetID = budgetID
	f.filter = filter
	return f.snapshot, f.err
}

type fakeEntryCreator struct {
	budgetID string
	payload  []transaction.PayloadTransaction
	summary  *transaction.OperationSummary
	err      error
}

func (f *fakeEntryCreator) CreateTransactions(budgetID string, ts []transaction.PayloadTransaction) (*transaction.OperationSummary, error) {
	f.budgetID = budgetID
	f.payload = ts
	return f.summary, f.err
}

func strPtr(s string) *string { return &s }

func TestGetAccountsMapsSnapshot(t *testing.T) {
	lister := &fakeAccountLister{snapshot: &account.SearchResultSnapshot{
		Accounts: []*account.Account{
			{ID: "a1", Name: "Checking"},
			{ID: "a2", Name: "Savings"},
		},
	}}
	c := &Client{accounts: lister, budgetID: "budget-1"}

	accounts, err := c.GetAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "budget-1", lister.budgetID)
	assert.Nil(t, lister.filter, "no delta filter on a full listing")
	assert.Equal(t, []ledger.Account{
		{ID: "a1", Name: "Checking"},
		{ID: "a2", Name: "Savings"},
	}, accounts)
}

func TestGetAccountsPropagatesError(t *testing.T) {
	lister := &fakeAccountLister{err: errors.New("unauthorized")}
	c := &Client{accounts: lister, budgetID: "budget-1"}

	_, err := c.GetAccounts(context.Background())
	assert.ErrorContains(t, err, "unauthorized")
}

func TestCreateEntriesBuildsPayload(t *testing.T) {
	creator := &fakeEntryCreator{summary: &transaction.OperationSummary{
		Transactions: []*transaction.Transaction{
			{ID: "t1", Memo: strPtr("first memo")},
			{ID: "t2", Memo: nil},
		},
	}}
	c := &Client{entries: creator, budgetID: "budget-1"}

	date := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	created, err := c.CreateEntries(context.Background(), []ledger.Entry{
		{AccountID: "a1", AmountMilli: -42675, Date: date, PayeeName: "TELENET BV", Memo: "first memo"},
		{AccountID: "a1", AmountMilli: 1000, Date: date, Memo: "second memo"},
	})
	require.NoError(t, err)

	assert.Equal(t, "budget-1", creator.budgetID)
	require.Len(t, creator.payload, 2)

	first := creator.payload[0]
	assert.Equal(t, "a1", first.AccountID)
	assert.Equal(t, int64(-42675), first.Amount)
	assert.Equal(t, date, first.Date.Time)
	require.NotNil(t, first.Memo)
	assert.Equal(t, "first memo", *first.Memo)
	require.NotNil(t, first.PayeeName)
	assert.Equal(t, "TELENET BV", *first.PayeeName)
	assert.Equal(t, transaction.ClearingStatusCleared, first.Cleared)

	second := creator.payload[1]
	require.NotNil(t, second.Memo)
	assert.Equal(t, "second memo", *second.Memo)
	assert.Nil(t, second.PayeeName, "empty payee stays unset for the ledger to fill in")

	assert.Equal(t, []ledger.CreatedEntry{
		{ID: "t1", Memo: "first memo"},
		{ID: "t2", Memo: ""},
	}, created)
}

func TestCreateEntriesRejectsMissingSummary(t *testing.T) {
	creator := &fakeEntryCreator{}
	c := &Client{entries: creator, budgetID: "budget-1"}

	_, err := c.CreateEntries(context.Background(), []ledger.Entry{{AccountID: "a1"}})
	assert.ErrorContains(t, err, "no summary")
}
