package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	httphandlers "banksync/internal/interfaces/http"
	"banksync/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler
// with middleware applied.
func SetupRoutes(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", httphandlers.HandleHealth(deps.DB))
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/sync", deps.SyncHandler.HandleTriggerSync)
	mux.HandleFunc("/api/purge", deps.SyncHandler.HandlePurge)
	mux.HandleFunc("/api/institutions", deps.SyncHandler.HandleListInstitutions)

	return middleware.Logging(middleware.Telemetry(mux))
}
