// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

// Package handlers exposes the REST API under /api/0.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/procmine/procmine/internal/api/services"
	"github.com/procmine/procmine/internal/server/middleware/logger"
	"github.com/procmine/procmine/internal/version"
	"github.com/procmine/procmine/pkg/middleware"
)

// Handler holds the services and provides HTTP handlers.
type Handler struct {
	services *services.Services
	logger   *slog.Logger
}

// New creates a new Handler instance.
func New(svcs *services.Services, logger *slog.Logger) *Handler {
	return &Handler{services: svcs, logger: logger}
}

// Routes sets up all HTTP routes and returns the configured handler.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	v0 := "/api/0"

	loggerMiddleware := logger.Middleware(h.logger)
	routes := middleware.NewRouteBuilder(mux).With(loggerMiddleware)

	// Health, version and metrics live outside the versioned prefix.
	routes.HandleFunc("GET /health", h.Health)
	routes.HandleFunc("GET /version", h.Version)
	routes.Handle("GET /metrics", promhttp.Handler())

	api := routes

	// Ontology types
	api.HandleFunc("GET "+v0+"/object-types", h.ListObjectTypes)
	api.HandleFunc("POST "+v0+"/object-types", h.CreateObjectType)
	api.HandleFunc("GET "+v0+"/object-types/{id}", h.GetObjectType)
	api.HandleFunc("PUT "+v0+"/object-types/{id}", h.UpdateObjectType)
	api.HandleFunc("DELETE "+v0+"/object-types/{id}", h.DeleteObjectType)

	// Business objects
	api.HandleFunc("GET "+v0+"/objects", h.ListObjects)
	api.HandleFunc("POST "+v0+"/objects", h.CreateObject)
	api.HandleFunc("GET "+v0+"/objects/{id}", h.GetObject)
	api.HandleFunc("PUT "+v0+"/objects/{id}", h.UpdateObject)
	api.HandleFunc("DELETE "+v0+"/objects/{id}", h.DeleteObject)
	api.HandleFunc("GET "+v0+"/objects/{id}/events", h.ObjectEvents)

	// Extraction rules
	api.HandleFunc("GET "+v0+"/extraction-rules", h.ListRules)
	api.HandleFunc("POST "+v0+"/extraction-rules", h.CreateRule)
	api.HandleFunc("POST "+v0+"/extraction-rules/run", h.RunExtraction)
	api.HandleFunc("GET "+v0+"/extraction-rules/{id}", h.GetRule)
	api.HandleFunc("PUT "+v0+"/extraction-rules/{id}", h.UpdateRule)
	api.HandleFunc("DELETE "+v0+"/extraction-rules/{id}", h.DeleteRule)
	api.HandleFunc("POST "+v0+"/extraction-rules/{id}/test", h.TestRule)

	// Buckets and events
	api.HandleFunc("POST "+v0+"/buckets/{bucket}/events", h.IngestEvents)
	api.HandleFunc("GET "+v0+"/buckets/{bucket}/events", h.ListEvents)
	api.HandleFunc("GET "+v0+"/buckets/{bucket}/events/{event}/objects", h.EventObjects)
	api.HandleFunc("POST "+v0+"/buckets/{bucket}/events/{event}/objects", h.LinkEvent)
	api.HandleFunc("DELETE "+v0+"/buckets/{bucket}/events/{event}/objects/{object_id}", h.UnlinkEvent)

	// Training queue
	api.HandleFunc("GET "+v0+"/training/pending", h.TrainingPending)
	api.HandleFunc("POST "+v0+"/training/{task_id}/confirm", h.TrainingConfirm)
	api.HandleFunc("POST "+v0+"/training/{task_id}/reject", h.TrainingReject)
	api.HandleFunc("POST "+v0+"/training/{task_id}/correct", h.TrainingCorrect)

	// Steps
	api.HandleFunc("GET "+v0+"/steps", h.ListSteps)
	api.HandleFunc("POST "+v0+"/steps", h.CreateStep)
	api.HandleFunc("GET "+v0+"/steps/{id}", h.GetStep)
	api.HandleFunc("PUT "+v0+"/steps/{id}", h.UpdateStep)
	api.HandleFunc("DELETE "+v0+"/steps/{id}", h.DeleteStep)
	api.HandleFunc("POST "+v0+"/steps/{id}/objects", h.AddStepObject)
	api.HandleFunc("DELETE "+v0+"/steps/{id}/objects/{obj}", h.RemoveStepObject)

	// Workflows and occurrences
	api.HandleFunc("GET "+v0+"/workflows", h.ListWorkflows)
	api.HandleFunc("POST "+v0+"/workflows", h.CreateWorkflow)
	api.HandleFunc("GET "+v0+"/workflows/{id}", h.GetWorkflow)
	api.HandleFunc("PUT "+v0+"/workflows/{id}", h.UpdateWorkflow)
	api.HandleFunc("DELETE "+v0+"/workflows/{id}", h.DeleteWorkflow)
	api.HandleFunc("POST "+v0+"/workflows/{id}/objects", h.AddWorkflowObject)
	api.HandleFunc("DELETE "+v0+"/workflows/{id}/objects/{obj}", h.RemoveWorkflowObject)
	api.HandleFunc("GET "+v0+"/workflows/{id}/occurrences", h.ListOccurrences)
	api.HandleFunc("GET "+v0+"/workflows/{id}/occurrences/{occ_id}", h.GetOccurrence)

	// Mining jobs
	api.HandleFunc("POST "+v0+"/mining/patterns", h.MinePatterns)
	api.HandleFunc("POST "+v0+"/mining/group-events", h.MineGroupEvents)
	api.HandleFunc("POST "+v0+"/mining/discover-workflows", h.MineDiscoverWorkflows)
	api.HandleFunc("POST "+v0+"/mining/match-workflow", h.MineMatchWorkflow)
	api.HandleFunc("GET "+v0+"/jobs/{job_id}", h.GetJob)
	api.HandleFunc("POST "+v0+"/jobs/{job_id}/cancel", h.CancelJob)

	// Stats
	api.HandleFunc("GET "+v0+"/stats", h.Stats)

	return mux
}

// Health handles health check requests.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK")) // Ignore write errors for health checks
}

// Version returns version information about the API server.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

// Stats reports the store summary counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.services.ObjectService.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
