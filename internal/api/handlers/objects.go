// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/procmine/procmine/internal/api/models"
	"github.com/procmine/procmine/internal/store"
)

// ListObjectTypes handles GET /api/0/object-types
func (h *Handler) ListObjectTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.services.ObjectService.ListTypes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(types))
}

// CreateObjectType handles POST /api/0/object-types
func (h *Handler) CreateObjectType(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.CreateObjectTypeRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.services.ObjectService.CreateType(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GetObjectType handles GET /api/0/object-types/{id}
func (h *Handler) GetObjectType(w http.ResponseWriter, r *http.Request) {
	t, err := h.services.ObjectService.GetType(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateObjectType handles PUT /api/0/object-types/{id}
func (h *Handler) UpdateObjectType(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.UpdateObjectTypeRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.services.ObjectService.UpdateType(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteObjectType handles DELETE /api/0/object-types/{id}
func (h *Handler) DeleteObjectType(w http.ResponseWriter, r *http.Request) {
	if err := h.services.ObjectService.DeleteType(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListObjects handles GET /api/0/objects
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "start")
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := parseTimeParam(r, "end")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	objects, err := h.services.ObjectService.List(r.Context(), store.ObjectFilter{
		Type:  r.URL.Query().Get("type"),
		Query: r.URL.Query().Get("q"),
		Start: start,
		End:   end,
		Limit: limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(objects))
}

// CreateObject handles POST /api/0/objects
func (h *Handler) CreateObject(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.CreateObjectRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.services.ObjectService.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// GetObject handles GET /api/0/objects/{id}
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	o, err := h.services.ObjectService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// UpdateObject handles PUT /api/0/objects/{id}
func (h *Handler) UpdateObject(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.UpdateObjectRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.services.ObjectService.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// DeleteObject handles DELETE /api/0/objects/{id}
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	if err := h.services.ObjectService.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ObjectEvents handles GET /api/0/objects/{id}/events
func (h *Handler) ObjectEvents(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "start")
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := parseTimeParam(r, "end")
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := h.services.ObjectService.Events(r.Context(), r.PathValue("id"), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(events))
}
