package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	records []RawRecord
	err     error
}

func (f *fakeSource) GetAccountTransactions(ctx context.Context, accountID string, since time.Time) ([]RawRecord, error) {
	return f.records, f.err
}

type fakeTxRepo struct {
	stored  map[string]*Transaction
	upserts int
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{stored: map[string]*Transaction{}}
}

func (r *fakeTxRepo) GetUnsynced(ctx context.Context) ([]*Transaction, error) {
	var out []*Transaction
	for _, tx := range r.stored {
		if tx.SyncedOn == nil {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (r *fakeTxRepo) GetSince(ctx context.Context, since time.Time) ([]*Transaction, error) {
	var out []*Transaction
	for _, tx := range r.stored {
		if !tx.BookingDate.Before(since) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (r *fakeTxRepo) Upsert(ctx context.Context, txs []*Transaction) error {
	r.upserts++
	for _, tx := range txs {
		cp := *tx
		r.stored[tx.EntryReference] = &cp
	}
	return nil
}

type fakeAlerter struct {
	alerts []string
}

func (m *fakeAlerter) SendConsentLink(ctx context.Context, link, bankID string, reminder bool) error {
	return nil
}

func (m *fakeAlerter) SendAlert(ctx context.Context, subject, body string) error {
	m.alerts = append(m.alerts, subject)
	return nil
}

func newIngestService(src *fakeSource, repo *fakeTxRepo, msg *fakeAlerter) *IngestService {
	svc := NewIngestService(src, repo, msg, 7, 7)
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }
	return svc
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func finalizedNarrative(payee string) string {
	return `statementReference 001 narrative:[EUROPESE DOMICILIERING VAN, ` + payee + `, ACCOUNT: 123]`
}

func TestIngestBuildsOneTransactionPerGroup(t *testing.T) {
	// One pending posting with an empty narrative and one booked posting
	// carrying the finalized marker, both under the same reference.
	src := &fakeSource{records: []RawRecord{
		{EntryReference: "E1", Narrative: "", Amount: decimal.NewFromFloat(-12.5), Currency: "EUR"},
		{EntryReference: "E1", BookingDate: datePtr(2024, 3, 8), Narrative: finalizedNarrative("TELENET BV"), Amount: decimal.NewFromFloat(-12.5), Currency: "EUR"},
	}}
	repo := newFakeTxRepo()
	svc := newIngestService(src, repo, &fakeAlerter{})

	count, err := svc.Ingest(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	tx := repo.stored["E1"]
	require.NotNil(t, tx)
	assert.Contains(t, tx.Raw.Narrative, FinalizedMarker, "finalized posting is the stored payload")
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), tx.BookingDate)
	assert.Nil(t, tx.SyncedOn)
}

func TestIngestDropsRecordsWithoutReference(t *testing.T) {
	src := &fakeSource{records: []RawRecord{
		{EntryReference: "", BookingDate: datePtr(2024, 3, 8), Narrative: finalizedNarrative("X")},
		{EntryReference: "  ", BookingDate: datePtr(2024, 3, 8), Narrative: finalizedNarrative("Y")},
	}}
	repo := newFakeTxRepo()
	svc := newIngestService(src, repo, &fakeAlerter{})

	count, err := svc.Ingest(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, repo.stored)
}

func TestIngestSkipsUnfinalizedGroupsSilently(t *testing.T) {
	src := &fakeSource{records: []RawRecord{
		{EntryReference: "E1", BookingDate: datePtr(2024, 3, 8), Narrative: "pending card payment"},
		{EntryReference: "E2", BookingDate: datePtr(2024, 3, 8), Narrative: finalizedNarrative("TELENET BV")},
	}}
	repo := newFakeTxRepo()
	msg := &fakeAlerter{}
	svc := newIngestService(src, repo, msg)

	count, err := svc.Ingest(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NotContains(t, repo.stored, "E1")
	assert.Contains(t, repo.stored, "E2")
	assert.Empty(t, msg.alerts, "incomplete groups are deferred, not reported")
}

func TestIngestAbortsWholeRunOnValidationError(t *testing.T) {
	src := &fakeSource{records: []RawRecord{
		// No member of E1 has a booking date.
		{EntryReference: "E1", Narrative: finalizedNarrative("TELENET BV")},
		// E2 is fine on its own but must not be committed either.
		{EntryReference: "E2", BookingDate: datePtr(2024, 3, 8), Narrative: finalizedNarrative("PROXIMUS")},
	}}
	repo := newFakeTxRepo()
	msg := &fakeAlerter{}
	svc := newIngestService(src, repo, msg)

	count, err := svc.Ingest(context.Background(), "acct-1")
	assert.Equal(t, 0, count)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 1)
	assert.Empty(t, repo.stored, "nothing persisted when any group fails")
	assert.NotEmpty(t, msg.alerts)
}

func TestIngestCollectsAllGroupErrors(t *testing.T) {
	src := &fakeSource{records: []RawRecord{
		{EntryReference: "E1", Narrative: finalizedNarrative("A")},
		{EntryReference: "E2", Narrative: finalizedNarrative("B")},
	}}
	repo := newFakeTxRepo()
	svc := newIngestService(src, repo, &fakeAlerter{})

	_, err := svc.Ingest(context.Background(), "acct-1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2, "errors accumulate instead of short-circuiting")
}

func TestIngestToleratesPendingGroupWithoutBookingDate(t *testing.T) {
	// A card payment that has not booked yet has neither the finalized
	// marker nor a booking date. It must not abort the run.
	src := &fakeSource{records: []RawRecord{
		{EntryReference: "E1", Narrative: "pending card payment", Amount: decimal.NewFromFloat(-5)},
		{EntryReference: "E2", BookingDate: datePtr(2024, 3, 8), Narrative: finalizedNarrative("TELENET BV")},
	}}
	repo := newFakeTxRepo()
	msg := &fakeAlerter{}
	svc := newIngestService(src, repo, msg)

	count, err := svc.Ingest(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NotContains(t, repo.stored, "E1")
	assert.Empty(t, msg.alerts)
}

func TestIngestDeduplicatesAgainstStoredHistory(t *testing.T) {
	repo := newFakeTxRepo()
	repo.stored["E1"] = &Transaction{
		ID:             "existing",
		EntryReference: "E1",
		BookingDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	src := &fakeSource{records: []RawRecord{
		{EntryReference: "E1", BookingDate: datePtr(2024, 3, 8), Narrative: finalizedNarrative("TELENET BV")},
		{EntryReference: "E2", BookingDate: datePtr(2024, 3, 8), Narrative: finalizedNarrative("PROXIMUS")},
	}}
	svc := newIngestService(src, repo, &fakeAlerter{})

	count, err := svc.Ingest(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "existing", repo.stored["E1"].ID, "stored transaction untouched")
}

func TestIngestIsIdempotent(t *testing.T) {
	src := &fakeSource{records: []RawRecord{
		{EntryReference: "E1", BookingDate: datePtr(2024, 3, 8), Narrative: finalizedNarrative("TELENET BV")},
	}}
	repo := newFakeTxRepo()
	svc := newIngestService(src, repo, &fakeAlerter{})

	first, err := svc.Ingest(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := svc.Ingest(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second, "rerun over the same window stores nothing new")
	assert.Equal(t, 1, repo.upserts, "empty batches never reach the store")
}
