// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/procmine/procmine/internal/api/models"
	"github.com/procmine/procmine/internal/api/services"
	"github.com/procmine/procmine/internal/jobs"
	"github.com/procmine/procmine/internal/logging"
	"github.com/procmine/procmine/internal/store"
)

// Error codes of the REST error envelope.
const (
	codeNotFound            = "not_found"
	codeConflict            = "conflict"
	codeInvalidArgument     = "invalid_argument"
	codePreconditionFailed  = "precondition_failed"
	codeJobInProgress       = "job_in_progress"
	codeProviderUnavailable = "provider_unavailable"
	codeInternal            = "internal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body) // Ignore encoding errors for response
}

// writeError maps an error onto the taxonomy and writes the error envelope.
// Unexpected errors are logged with the request id as correlation id.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var inProgress *jobs.InProgressError
	if errors.As(err, &inProgress) {
		writeJSON(w, http.StatusConflict, models.NewErrorResponse(
			codeJobInProgress, "a job is already in progress",
			map[string]any{"job_id": inProgress.JobID}))
		return
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse(codeNotFound, err.Error(), nil))
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, models.NewErrorResponse(codeConflict, err.Error(), nil))
	case errors.Is(err, store.ErrPreconditionFailed):
		writeJSON(w, http.StatusConflict, models.NewErrorResponse(codePreconditionFailed, err.Error(), nil))
	case errors.Is(err, services.ErrInvalidArgument), errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(codeInvalidArgument, err.Error(), nil))
	default:
		requestID := r.Header.Get("X-Request-ID")
		logging.FromContext(r.Context()).Error("internal error",
			"path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse(
			codeInternal, "internal error",
			map[string]any{"correlation_id": requestID}))
	}
}

// decodeJSON parses and validates a request body.
func decodeJSON[T any](r *http.Request) (*T, error) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: malformed request body: %w", services.ErrInvalidArgument, err)
	}
	if err := validate.Struct(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// parseTimeParam parses an RFC-3339 query parameter; empty means zero.
func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC-3339", services.ErrInvalidArgument, name)
	}
	return t.UTC(), nil
}

// parseIntParam parses an integer query parameter; empty means def.
func parseIntParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", services.ErrInvalidArgument, name)
	}
	return n, nil
}

// eventIDPath parses the {event} path segment.
func eventIDPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("event"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: event id must be an integer", services.ErrInvalidArgument)
	}
	return id, nil
}

// jobResponse converts a job snapshot into its REST shape.
func jobResponse(j jobs.Job) models.JobResponse {
	resp := models.JobResponse{
		JobID:     j.ID,
		Kind:      j.Kind,
		State:     j.State,
		Progress:  j.Progress,
		Error:     j.Error,
		Result:    j.Result,
		StartedAt: j.StartedAt,
	}
	if !j.FinishedAt.IsZero() {
		t := j.FinishedAt
		resp.FinishedAt = &t
	}
	return resp
}
