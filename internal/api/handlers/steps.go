// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/procmine/procmine/internal/api/models"
)

// ListSteps handles GET /api/0/steps
func (h *Handler) ListSteps(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	steps, err := h.services.StepService.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(steps))
}

// CreateStep handles POST /api/0/steps
func (h *Handler) CreateStep(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.CreateStepRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	step, err := h.services.StepService.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, step)
}

// GetStep handles GET /api/0/steps/{id}
func (h *Handler) GetStep(w http.ResponseWriter, r *http.Request) {
	step, err := h.services.StepService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

// UpdateStep handles PUT /api/0/steps/{id}
func (h *Handler) UpdateStep(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.UpdateStepRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	step, err := h.services.StepService.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

// DeleteStep handles DELETE /api/0/steps/{id}
func (h *Handler) DeleteStep(w http.ResponseWriter, r *http.Request) {
	if err := h.services.StepService.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddStepObject handles POST /api/0/steps/{id}/objects
func (h *Handler) AddStepObject(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.LinkRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.services.StepService.AddObject(r.Context(), r.PathValue("id"), req.ObjectID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveStepObject handles DELETE /api/0/steps/{id}/objects/{obj}
func (h *Handler) RemoveStepObject(w http.ResponseWriter, r *http.Request) {
	if err := h.services.StepService.RemoveObject(r.Context(), r.PathValue("id"), r.PathValue("obj")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
