// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/procmine/procmine/internal/api/models"
	"github.com/procmine/procmine/internal/api/services"
)

// TrainingPending handles GET /api/0/training/pending
func (h *Handler) TrainingPending(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tasks, err := h.services.TrainingService.Pending(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(tasks))
}

// TrainingConfirm handles POST /api/0/training/{task_id}/confirm
func (h *Handler) TrainingConfirm(w http.ResponseWriter, r *http.Request) {
	task, err := h.services.TrainingService.Confirm(r.Context(), r.PathValue("task_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// TrainingReject handles POST /api/0/training/{task_id}/reject
func (h *Handler) TrainingReject(w http.ResponseWriter, r *http.Request) {
	// An empty body means no reason.
	req := &models.RejectRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, fmt.Errorf("%w: malformed request body: %w", services.ErrInvalidArgument, err))
		return
	}
	task, err := h.services.TrainingService.Reject(r.Context(), r.PathValue("task_id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// TrainingCorrect handles POST /api/0/training/{task_id}/correct
func (h *Handler) TrainingCorrect(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.CorrectRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	task, err := h.services.TrainingService.Correct(r.Context(), r.PathValue("task_id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
