package requisition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"banksync/internal/domain/notification"
)

// Cycle outcomes that callers classify with errors.Is.
var (
	// ErrAwaitingAuthorization means a consent link is out with the
	// operator and no account can be resolved this cycle. Expected,
	// not a failure.
	ErrAwaitingAuthorization = errors.New("awaiting bank authorization")

	// ErrAuthorizationExpired means the authorization failed and could
	// not be re-established within the cycle's retry budget.
	ErrAuthorizationExpired = errors.New("bank authorization expired")

	// ErrUnknownStatus means the aggregator reported a status this
	// service does not recognize. Recovery needs a human.
	ErrUnknownStatus = errors.New("unrecognized requisition status")
)

// AggregatorClient is the consent-management slice of the aggregator API.
type AggregatorClient interface {
	CreateAuthorization(ctx context.Context, institutionID, redirectURL string) (*Authorization, error)
	GetAuthorizationStatus(ctx context.Context, requisitionID string) (*AuthorizationStatus, error)
	ListAuthorizations(ctx context.Context, limit, offset int) ([]string, error)
	DeleteAuthorization(ctx context.Context, requisitionID string) error
}

// Service owns the requisition lifecycle: it guarantees at most one
// active requisition, creates a new one when none exists, and resolves a
// linked requisition to a bank account id.
type Service struct {
	client      AggregatorClient
	repo        Repository
	messenger   notification.Messenger
	bankID      string
	callbackURL string
	now         func() time.Time
}

func NewService(client AggregatorClient, repo Repository, messenger notification.Messenger, bankID, callbackURL string) *Service {
	return &Service{
		client:      client,
		repo:        repo,
		messenger:   messenger,
		bankID:      bankID,
		callbackURL: callbackURL,
		now:         time.Now,
	}
}

// maxResolveAttempts bounds the invalidate-and-recreate path: one
// immediate re-attempt after a failed status, never open recursion.
const maxResolveAttempts = 2

// Resolve returns the bank account id behind the active, linked
// requisition. When no usable requisition exists it creates one, notifies
// the operator with the consent link and returns ErrAwaitingAuthorization.
// Every state transition is persisted before Resolve returns.
func (s *Service) Resolve(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		accountID, retry, err := s.resolveOnce(ctx)
		if err != nil || !retry {
			return accountID, err
		}
	}
	return "", fmt.Errorf("authorization could not be re-established after %d attempts: %w",
		maxResolveAttempts, ErrAuthorizationExpired)
}

// resolveOnce runs one pass of the lifecycle. retry is true only when the
// active requisition was just invalidated and a fresh pass should create
// its replacement.
func (s *Service) resolveOnce(ctx context.Context) (accountID string, retry bool, err error) {
	active, err := s.repo.GetActive(ctx)
	if err != nil {
		return "", false, fmt.Errorf("load active requisition: %w", err)
	}

	if active == nil {
		return "", false, s.createAuthorization(ctx)
	}

	status, err := s.client.GetAuthorizationStatus(ctx, active.RequisitionID)
	if err != nil {
		return "", false, fmt.Errorf("requisition %s status: %w", active.RequisitionID, err)
	}

	switch bucketOf(status.Status) {
	case bucketFailed:
		log.Printf("Requisition %s reported %s, invalidating", active.RequisitionID, status.Status)
		active.Validity = ValidityInvalid
		if _, err := s.repo.Upsert(ctx, active); err != nil {
			return "", false, fmt.Errorf("invalidate requisition %s: %w", active.RequisitionID, err)
		}
		s.alert(ctx, "Bank authorization expired",
			fmt.Sprintf("Requisition %s for bank %s reported status %s. A new authorization will be requested.",
				active.RequisitionID, s.bankID, status.Status))
		return "", true, nil

	case bucketPending:
		log.Printf("Requisition %s still pending (%s), resending consent link", active.RequisitionID, status.Status)
		if err := s.messenger.SendConsentLink(ctx, status.ConsentLink, s.bankID, true); err != nil {
			log.Printf("Failed to send consent link reminder: %v", err)
		}
		return "", false, ErrAwaitingAuthorization

	case bucketLinked:
		if active.Validity != ValidityValid {
			active.Validity = ValidityValid
			if _, err := s.repo.Upsert(ctx, active); err != nil {
				return "", false, fmt.Errorf("mark requisition %s valid: %w", active.RequisitionID, err)
			}
		}
		if len(status.AccountIDs) == 0 {
			return "", false, fmt.Errorf("requisition %s is linked but has no bank account", active.RequisitionID)
		}
		return status.AccountIDs[0], false, nil

	default:
		s.alert(ctx, "Unrecognized requisition status",
			fmt.Sprintf("Requisition %s for bank %s reported status %q. Manual classification required.",
				active.RequisitionID, s.bankID, status.Status))
		return "", false, fmt.Errorf("requisition %s reported %q: %w", active.RequisitionID, status.Status, ErrUnknownStatus)
	}
}

func (s *Service) createAuthorization(ctx context.Context) error {
	auth, err := s.client.CreateAuthorization(ctx, s.bankID, s.callbackURL)
	if err != nil {
		s.alert(ctx, "Failed to create bank authorization",
			fmt.Sprintf("Could not request a new authorization for bank %s: %v", s.bankID, err))
		return fmt.Errorf("create authorization for bank %s: %w", s.bankID, err)
	}

	req := &Requisition{
		ID:            uuid.NewString(),
		RequisitionID: auth.RequisitionID,
		CreatedOn:     s.now(),
		Validity:      ValidityUnknown,
	}
	if _, err := s.repo.Upsert(ctx, req); err != nil {
		return fmt.Errorf("persist new requisition %s: %w", auth.RequisitionID, err)
	}

	log.Printf("Created requisition %s for bank %s, consent link sent", auth.RequisitionID, s.bankID)
	if err := s.messenger.SendConsentLink(ctx, auth.ConsentLink, s.bankID, false); err != nil {
		log.Printf("Failed to send consent link: %v", err)
	}
	return ErrAwaitingAuthorization
}

// MarkSynced stamps the active requisition after a completed ingestion
// run. Callers invoke it once the transaction pipeline has finished.
func (s *Service) MarkSynced(ctx context.Context) error {
	active, err := s.repo.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("load active requisition: %w", err)
	}
	if active == nil {
		return nil
	}
	now := s.now()
	active.LastSyncOn = &now
	if _, err := s.repo.Upsert(ctx, active); err != nil {
		return fmt.Errorf("update last sync time: %w", err)
	}
	return nil
}

// Purge deletes aggregator-side authorizations that are not the active
// requisition. Local rows are kept for audit. Returns the number of
// authorizations deleted.
func (s *Service) Purge(ctx context.Context) (int, error) {
	active, err := s.repo.GetActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active requisition: %w", err)
	}
	keep := ""
	if active != nil {
		keep = active.RequisitionID
	}

	const pageSize = 100
	var stale []string
	for offset := 0; ; offset += pageSize {
		ids, err := s.client.ListAuthorizations(ctx, pageSize, offset)
		if err != nil {
			return 0, fmt.Errorf("list authorizations: %w", err)
		}
		for _, id := range ids {
			if id != keep {
				stale = append(stale, id)
			}
		}
		if len(ids) < pageSize {
			break
		}
	}

	deleted := 0
	for _, id := range stale {
		if err := s.client.DeleteAuthorization(ctx, id); err != nil {
			return deleted, fmt.Errorf("delete authorization %s: %w", id, err)
		}
		deleted++
	}
	log.Printf("Purged %d stale authorizations (kept %q)", deleted, keep)
	return deleted, nil
}

func (s *Service) alert(ctx context.Context, subject, body string) {
	if err := s.messenger.SendAlert(ctx, subject, body); err != nil {
		log.Printf("Failed to send alert %q: %v", subject, err)
	}
}
