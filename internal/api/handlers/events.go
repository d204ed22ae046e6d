// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/procmine/procmine/internal/api/models"
)

// IngestEvents handles POST /api/0/buckets/{bucket}/events
func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[models.IngestEventsRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.services.EventService.Ingest(r.Context(), r.PathValue("bucket"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListEvents handles GET /api/0/buckets/{bucket}/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
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
	events, err := h.services.EventService.List(r.Context(), r.PathValue("bucket"), start, end, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(events))
}

// EventObjects handles GET /api/0/buckets/{bucket}/events/{event}/objects
func (h *Handler) EventObjects(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	linked, err := h.services.EventService.LinkedObjects(r.Context(), r.PathValue("bucket"), eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(linked))
}

// LinkEvent handles POST /api/0/buckets/{bucket}/events/{event}/objects
func (h *Handler) LinkEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeJSON[models.LinkRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.services.EventService.Link(r.Context(), r.PathValue("bucket"), eventID, req); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnlinkEvent handles DELETE /api/0/buckets/{bucket}/events/{event}/objects/{object_id}
func (h *Handler) UnlinkEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.services.EventService.Unlink(r.Context(), r.PathValue("bucket"), eventID, r.PathValue("object_id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
