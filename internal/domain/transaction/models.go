// Package transaction turns windows of raw aggregator postings into
// deduplicated canonical transactions and tracks their ledger-sync state.
package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one posting as delivered by the aggregator. The same
// logical bank transaction can appear several times (pending copy, booked
// copy) under the same EntryReference.
type RawRecord struct {
	EntryReference string          `json:"entryReference"`
	BookingDate    *time.Time      `json:"bookingDate,omitempty"`
	Narrative      string          `json:"narrative"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// Transaction is the canonical, deduplicated record of one logical bank
// transaction. SyncedOn stays nil until the ledger has confirmed the
// pushed entry.
type Transaction struct {
	ID             string
	EntryReference string
	BookingDate    time.Time
	SyncedOn       *time.Time
	Raw            RawRecord
}
