// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/procmine/procmine/internal/api/models"
)

// MinePatterns handles POST /api/0/mining/patterns. Small windows run
// synchronously and return the finished job with its result; larger windows
// return 202 with the job id.
func (h *Handler) MinePatterns(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.MiningRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, sync, err := h.services.MiningService.Patterns(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusAccepted
	if sync {
		status = http.StatusOK
	}
	writeJSON(w, status, jobResponse(job))
}

// MineGroupEvents handles POST /api/0/mining/group-events
func (h *Handler) MineGroupEvents(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.MiningRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := h.services.MiningService.GroupEvents(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse(job))
}

// MineDiscoverWorkflows handles POST /api/0/mining/discover-workflows
func (h *Handler) MineDiscoverWorkflows(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.MiningRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := h.services.MiningService.DiscoverWorkflows(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse(job))
}

// MineMatchWorkflow handles POST /api/0/mining/match-workflow
func (h *Handler) MineMatchWorkflow(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.MiningRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := h.services.MiningService.MatchWorkflow(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse(job))
}

// GetJob handles GET /api/0/jobs/{job_id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.services.MiningService.Job(r.Context(), r.PathValue("job_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

// CancelJob handles POST /api/0/jobs/{job_id}/cancel
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.services.MiningService.CancelJob(r.Context(), r.PathValue("job_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}
