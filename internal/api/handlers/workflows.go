// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/procmine/procmine/internal/api/models"
)

// ListWorkflows handles GET /api/0/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	workflows, err := h.services.WorkflowService.List(r.Context(), includeArchived)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(workflows))
}

// CreateWorkflow handles POST /api/0/workflows
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.CreateWorkflowRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := h.services.WorkflowService.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

// GetWorkflow handles GET /api/0/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.services.WorkflowService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// UpdateWorkflow handles PUT /api/0/workflows/{id}
func (h *Handler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.UpdateWorkflowRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := h.services.WorkflowService.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// DeleteWorkflow handles DELETE /api/0/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.services.WorkflowService.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddWorkflowObject handles POST /api/0/workflows/{id}/objects
func (h *Handler) AddWorkflowObject(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.LinkRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.services.WorkflowService.AddObject(r.Context(), r.PathValue("id"), req.ObjectID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveWorkflowObject handles DELETE /api/0/workflows/{id}/objects/{obj}
func (h *Handler) RemoveWorkflowObject(w http.ResponseWriter, r *http.Request) {
	if err := h.services.WorkflowService.RemoveObject(r.Context(), r.PathValue("id"), r.PathValue("obj")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOccurrences handles GET /api/0/workflows/{id}/occurrences
func (h *Handler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	occs, err := h.services.WorkflowService.Occurrences(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(occs))
}

// GetOccurrence handles GET /api/0/workflows/{id}/occurrences/{occ_id}
func (h *Handler) GetOccurrence(w http.ResponseWriter, r *http.Request) {
	occ, err := h.services.WorkflowService.Occurrence(r.Context(), r.PathValue("id"), r.PathValue("occ_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}
