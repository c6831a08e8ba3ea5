package requisition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAggregator struct {
	created        []Authorization
	createErr      error
	statuses       map[string]*AuthorizationStatus
	statusErr      error
	authorizations []string
	deleted        []string
	nextID         int
}

func (f *fakeAggregator) CreateAuthorization(ctx context.Context, institutionID, redirectURL string) (*Authorization, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	auth := Authorization{
		RequisitionID: fmt.Sprintf("req-%d", f.nextID),
		ConsentLink:   fmt.Sprintf("https://consent.example/%d", f.nextID),
	}
	f.created = append(f.created, auth)
	return &auth, nil
}

func (f *fakeAggregator) GetAuthorizationStatus(ctx context.Context, requisitionID string) (*AuthorizationStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	st, ok := f.statuses[requisitionID]
	if !ok {
		return &AuthorizationStatus{Status: statusCreated}, nil
	}
	return st, nil
}

func (f *fakeAggregator) ListAuthorizations(ctx context.Context, limit, offset int) ([]string, error) {
	if offset >= len(f.authorizations) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.authorizations) {
		end = len(f.authorizations)
	}
	return f.authorizations[offset:end], nil
}

func (f *fakeAggregator) DeleteAuthorization(ctx context.Context, requisitionID string) error {
	f.deleted = append(f.deleted, requisitionID)
	return nil
}

type fakeRepo struct {
	rows map[string]*Requisition
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[string]*Requisition{}}
}

func (r *fakeRepo) GetActive(ctx context.Context) (*Requisition, error) {
	var active *Requisition
	for _, row := range r.rows {
		if row.Validity == ValidityInvalid {
			continue
		}
		if active == nil || row.CreatedOn.After(active.CreatedOn) {
			active = row
		}
	}
	if active == nil {
		return nil, nil
	}
	cp := *active
	return &cp, nil
}

func (r *fakeRepo) Upsert(ctx context.Context, req *Requisition) (*Requisition, error) {
	cp := *req
	r.rows[req.RequisitionID] = &cp
	return req, nil
}

func (r *fakeRepo) ListAll(ctx context.Context) ([]*Requisition, error) {
	var all []*Requisition
	for _, row := range r.rows {
		all = append(all, row)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedOn.After(all[j].CreatedOn) })
	return all, nil
}

type sentLink struct {
	link     string
	bankID   string
	reminder bool
}

type fakeMessenger struct {
	links  []sentLink
	alerts []string
}

func (m *fakeMessenger) SendConsentLink(ctx context.Context, link, bankID string, reminder bool) error {
	m.links = append(m.links, sentLink{link: link, bankID: bankID, reminder: reminder})
	return nil
}

func (m *fakeMessenger) SendAlert(ctx context.Context, subject, body string) error {
	m.alerts = append(m.alerts, subject)
	return nil
}

func newTestService(agg *fakeAggregator, repo Repository, msg *fakeMessenger) *Service {
	svc := NewService(agg, repo, msg, "TESTBANK_BE", "https://sync.example/callback")
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	svc.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return svc
}

func TestResolveCreatesAuthorizationWhenNoneActive(t *testing.T) {
	agg := &fakeAggregator{}
	repo := newFakeRepo()
	msg := &fakeMessenger{}
	svc := newTestService(agg, repo, msg)

	_, err := svc.Resolve(context.Background())
	require.ErrorIs(t, err, ErrAwaitingAuthorization)

	active, err := repo.GetActive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "req-1", active.RequisitionID)
	assert.Equal(t, ValidityUnknown, active.Validity)

	require.Len(t, msg.links, 1)
	assert.False(t, msg.links[0].reminder)
	assert.Equal(t, "https://consent.example/1", msg.links[0].link)
}

func TestResolveResendsConsentLinkWhilePending(t *testing.T) {
	agg := &fakeAggregator{statuses: map[string]*AuthorizationStatus{
		"req-9": {Status: statusUndergoingAuth, ConsentLink: "https://consent.example/9"},
	}}
	repo := newFakeRepo()
	repo.Upsert(context.Background(), &Requisition{ID: "a", RequisitionID: "req-9", CreatedOn: time.Now()})
	msg := &fakeMessenger{}
	svc := newTestService(agg, repo, msg)

	_, err := svc.Resolve(context.Background())
	require.ErrorIs(t, err, ErrAwaitingAuthorization)

	require.Len(t, msg.links, 1)
	assert.True(t, msg.links[0].reminder)
	assert.Empty(t, agg.created, "no new authorization while one is pending")
}

func TestResolveReturnsAccountWhenLinked(t *testing.T) {
	agg := &fakeAggregator{statuses: map[string]*AuthorizationStatus{
		"req-9": {Status: statusLinked, AccountIDs: []string{"acct-1", "acct-2"}},
	}}
	repo := newFakeRepo()
	repo.Upsert(context.Background(), &Requisition{ID: "a", RequisitionID: "req-9", CreatedOn: time.Now()})
	msg := &fakeMessenger{}
	svc := newTestService(agg, repo, msg)

	accountID, err := svc.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)

	active, _ := repo.GetActive(context.Background())
	assert.Equal(t, ValidityValid, active.Validity, "linked requisition persisted as valid")
}

func TestResolveRecreatesAfterExpiry(t *testing.T) {
	agg := &fakeAggregator{statuses: map[string]*AuthorizationStatus{
		"req-old": {Status: statusExpired},
	}}
	repo := newFakeRepo()
	repo.Upsert(context.Background(), &Requisition{ID: "a", RequisitionID: "req-old", CreatedOn: time.Now(), Validity: ValidityValid})
	msg := &fakeMessenger{}
	svc := newTestService(agg, repo, msg)

	_, err := svc.Resolve(context.Background())
	require.ErrorIs(t, err, ErrAwaitingAuthorization)

	// Old requisition invalidated, replacement created, consent link sent.
	assert.Equal(t, ValidityInvalid, repo.rows["req-old"].Validity)
	require.Len(t, agg.created, 1)
	require.Len(t, msg.links, 1)
	assert.NotEmpty(t, msg.alerts, "expiry alert sent")

	all, _ := repo.ListAll(context.Background())
	activeCount := 0
	for _, r := range all {
		if r.Validity != ValidityInvalid {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount, "at most one non-invalid requisition")
}

// stuckRepo always reports the same expired requisition as active, which
// forces the invalidate-and-recreate path on every pass.
type stuckRepo struct {
	*fakeRepo
	req Requisition
}

func (r *stuckRepo) GetActive(ctx context.Context) (*Requisition, error) {
	cp := r.req
	return &cp, nil
}

func TestResolveRetryIsBounded(t *testing.T) {
	agg := &fakeAggregator{statuses: map[string]*AuthorizationStatus{
		"req-stuck": {Status: statusSuspended},
	}}
	repo := &stuckRepo{
		fakeRepo: newFakeRepo(),
		req:      Requisition{ID: "a", RequisitionID: "req-stuck", CreatedOn: time.Now()},
	}
	msg := &fakeMessenger{}
	svc := newTestService(agg, repo, msg)

	_, err := svc.Resolve(context.Background())
	require.ErrorIs(t, err, ErrAuthorizationExpired)
	assert.Empty(t, agg.created, "no authorization created while the store keeps returning a failed one")
}

func TestResolveUnknownStatusIsFatal(t *testing.T) {
	agg := &fakeAggregator{statuses: map[string]*AuthorizationStatus{
		"req-9": {Status: "??"},
	}}
	repo := newFakeRepo()
	repo.Upsert(context.Background(), &Requisition{ID: "a", RequisitionID: "req-9", CreatedOn: time.Now()})
	msg := &fakeMessenger{}
	svc := newTestService(agg, repo, msg)

	_, err := svc.Resolve(context.Background())
	require.ErrorIs(t, err, ErrUnknownStatus)
	assert.NotEmpty(t, msg.alerts)
	assert.Empty(t, agg.created, "unknown status never triggers recreation")
}

func TestResolvePropagatesCreateFailure(t *testing.T) {
	agg := &fakeAggregator{createErr: errors.New("boom")}
	repo := newFakeRepo()
	msg := &fakeMessenger{}
	svc := newTestService(agg, repo, msg)

	_, err := svc.Resolve(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAwaitingAuthorization)
	assert.NotEmpty(t, msg.alerts)
}

func TestMarkSyncedStampsActiveRequisition(t *testing.T) {
	repo := newFakeRepo()
	repo.Upsert(context.Background(), &Requisition{ID: "a", RequisitionID: "req-9", CreatedOn: time.Now(), Validity: ValidityValid})
	svc := newTestService(&fakeAggregator{}, repo, &fakeMessenger{})

	require.NoError(t, svc.MarkSynced(context.Background()))
	assert.NotNil(t, repo.rows["req-9"].LastSyncOn)
}

func TestPurgeDeletesEverythingButActive(t *testing.T) {
	agg := &fakeAggregator{authorizations: []string{"req-1", "req-2", "req-3", "req-4"}}
	repo := newFakeRepo()
	repo.Upsert(context.Background(), &Requisition{ID: "a", RequisitionID: "req-3", CreatedOn: time.Now(), Validity: ValidityValid})
	svc := newTestService(agg, repo, &fakeMessenger{})

	deleted, err := svc.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.ElementsMatch(t, []string{"req-1", "req-2", "req-4"}, agg.deleted)
}
