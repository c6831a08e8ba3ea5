package transaction

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"banksync/internal/domain/notification"
)

// FinalizedMarker is the substring the bank writes into the narrative of
// a booked, finalized posting. Groups where no member carries it are
// still pending on the bank side and are skipped until a later cycle.
const FinalizedMarker = "statementReference"

// Source is the transaction-retrieval slice of the aggregator API.
type Source interface {
	GetAccountTransactions(ctx context.Context, accountID string, since time.Time) ([]RawRecord, error)
}

// ValidationError carries every problem found across all groups of one
// ingestion run. A single bad group aborts the whole run so that no
// partially-committed window is left behind.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("transaction validation failed: %s", strings.Join(e.Problems, ", "))
}

// IngestService converts a window of raw aggregator postings into
// deduplicated canonical transactions.
type IngestService struct {
	source      Source
	repo        Repository
	messenger   notification.Messenger
	daysInPast  int
	overlapDays int
	now         func() time.Time
}

func NewIngestService(source Source, repo Repository, messenger notification.Messenger, daysInPast, overlapDays int) *IngestService {
	return &IngestService{
		source:      source,
		repo:        repo,
		messenger:   messenger,
		daysInPast:  daysInPast,
		overlapDays: overlapDays,
		now:         time.Now,
	}
}

// Ingest pulls the retrieval window for the given bank account, groups
// postings into logical transactions, validates and deduplicates them,
// and persists the result. Returns the number of new transactions stored.
func (s *IngestService) Ingest(ctx context.Context, accountID string) (int, error) {
	since := s.now().AddDate(0, 0, -s.daysInPast)

	records, err := s.source.GetAccountTransactions(ctx, accountID, since)
	if err != nil {
		return 0, fmt.Errorf("fetch transactions for account %s: %w", accountID, err)
	}

	groups, order := groupByEntryReference(records)

	var built []*Transaction
	var problems []string
	skipped := 0
	for _, ref := range order {
		tx, err := s.buildTransaction(ref, groups[ref])
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if tx == nil {
			skipped++
			continue
		}
		built = append(built, tx)
	}

	if len(problems) > 0 {
		verr := &ValidationError{Problems: problems}
		if err := s.messenger.SendAlert(ctx, "Transaction ingestion failed", verr.Error()); err != nil {
			log.Printf("Failed to send ingestion alert: %v", err)
		}
		return 0, verr
	}
	if skipped > 0 {
		log.Printf("Skipped %d transaction group(s) still awaiting finalization", skipped)
	}

	// Dedup against stored history, looking back past the retrieval
	// window to cover postings that arrived late in a previous run.
	lookback := since.AddDate(0, 0, -s.overlapDays)
	existing, err := s.repo.GetSince(ctx, lookback)
	if err != nil {
		return 0, fmt.Errorf("load stored transactions since %s: %w", lookback.Format("2006-01-02"), err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, tx := range existing {
		seen[tx.EntryReference] = struct{}{}
	}

	fresh := built[:0]
	for _, tx := range built {
		if _, ok := seen[tx.EntryReference]; ok {
			continue
		}
		fresh = append(fresh, tx)
	}

	if len(fresh) == 0 {
		return 0, nil
	}
	if err := s.repo.Upsert(ctx, fresh); err != nil {
		return 0, fmt.Errorf("persist %d transactions: %w", len(fresh), err)
	}
	log.Printf("Ingested %d new transaction(s) for account %s", len(fresh), accountID)
	return len(fresh), nil
}

// groupByEntryReference buckets postings by their entry reference and
// returns the references in first-seen order. Postings without a
// reference cannot be deduplicated and are dropped.
func groupByEntryReference(records []RawRecord) (map[string][]RawRecord, []string) {
	groups := make(map[string][]RawRecord)
	var order []string
	for _, r := range records {
		ref := strings.TrimSpace(r.EntryReference)
		if ref == "" {
			continue
		}
		if _, ok := groups[ref]; !ok {
			order = append(order, ref)
		}
		groups[ref] = append(groups[ref], r)
	}
	return groups, order
}

// buildTransaction constructs the canonical transaction for one group.
// It returns (nil, nil) when the group has no finalized posting yet,
// which defers the group to a later cycle without treating it as an
// error. Only finalized groups are validated; a still-pending group may
// legitimately lack a booking date until the bank books it.
func (s *IngestService) buildTransaction(ref string, group []RawRecord) (*Transaction, error) {
	var bookingDate *time.Time
	var finalized *RawRecord
	for i := range group {
		r := &group[i]
		if bookingDate == nil && r.BookingDate != nil {
			bookingDate = r.BookingDate
		}
		if finalized == nil && strings.Contains(r.Narrative, FinalizedMarker) {
			finalized = r
		}
	}

	if finalized == nil {
		return nil, nil
	}
	if bookingDate == nil {
		return nil, fmt.Errorf("%s: no posting carries a booking date", ref)
	}

	return &Transaction{
		ID:             uuid.NewString(),
		EntryReference: ref,
		BookingDate:    *bookingDate,
		Raw:            *finalized,
	}, nil
}
