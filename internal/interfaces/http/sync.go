// Package http exposes the sync service's operational endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"banksync/internal/domain/requisition"
	"banksync/internal/infrastructure/gocardless"
	"banksync/internal/interfaces/scheduler"
)

// SyncHandler triggers and inspects sync cycles over HTTP.
type SyncHandler struct {
	runner       *scheduler.CycleRunner
	requisitions *requisition.Service
	aggregator   *gocardless.Client
}

func NewSyncHandler(runner *scheduler.CycleRunner, requisitions *requisition.Service, aggregator *gocardless.Client) *SyncHandler {
	return &SyncHandler{
		runner:       runner,
		requisitions: requisitions,
		aggregator:   aggregator,
	}
}

// HandleTriggerSync runs one sync cycle. Returns 409 when a cycle is
// already in flight and 202 when the cycle completes in an expected
// awaiting-authorization state.
func (h *SyncHandler) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.runner.Run(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrCycleInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, requisition.ErrAwaitingAuthorization):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "awaiting authorization"})
	case err != nil:
		log.Printf("Manual sync failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
	}
}

// HandlePurge deletes aggregator-side authorizations other than the
// active one.
func (h *SyncHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	deleted, err := h.requisitions.Purge(r.Context())
	if err != nil {
		log.Printf("Purge failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// HandleListInstitutions lists the banks available for linking in a
// country, for picking a bank id when configuring the service.
func (h *SyncHandler) HandleListInstitutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	country := r.URL.Query().Get("country")
	if country == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "country query parameter is required"})
		return
	}

	institutions, err := h.aggregator.ListInstitutions(r.Context(), country)
	if err != nil {
		log.Printf("Failed to list institutions for %s: %v", country, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, institutions)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HandleHealth reports service liveness and database reachability.
func HandleHealth(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
