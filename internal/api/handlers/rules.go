// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/procmine/procmine/internal/api/models"
)

// ListRules handles GET /api/0/extraction-rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.services.RuleService.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(rules))
}

// CreateRule handles POST /api/0/extraction-rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.CreateRuleRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := h.services.RuleService.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// GetRule handles GET /api/0/extraction-rules/{id}
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.services.RuleService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// UpdateRule handles PUT /api/0/extraction-rules/{id}
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.UpdateRuleRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := h.services.RuleService.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/0/extraction-rules/{id}
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.services.RuleService.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestRule handles POST /api/0/extraction-rules/{id}/test
func (h *Handler) TestRule(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.TestRuleRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	results, err := h.services.RuleService.Test(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// RunExtraction handles POST /api/0/extraction-rules/run
func (h *Handler) RunExtraction(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.TimeWindowRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := h.services.RuleService.Run(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse(*job))
}
