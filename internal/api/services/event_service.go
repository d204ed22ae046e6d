// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/procmine/procmine/internal/api/models"
	"github.com/procmine/procmine/internal/enrich"
	"github.com/procmine/procmine/internal/store"
)

// EventService manages event ingest, reads and event-object links.
type EventService struct {
	store  *store.Store
	enrich *enrich.Service
	logger *slog.Logger
}

// NewEventService creates a new EventService. The enrichment service may be
// nil when no LLM provider is configured.
func NewEventService(st *store.Store, en *enrich.Service, logger *slog.Logger) *EventService {
	return &EventService{store: st, enrich: en, logger: logger}
}

// Ingest appends events to a bucket and enqueues enrichment tasks for events
// that carry screen text or a screenshot. Enqueueing never blocks ingest.
func (s *EventService) Ingest(ctx context.Context, bucketID string, req *models.IngestEventsRequest) (*models.IngestEventsResponse, error) {
	events := make([]store.Event, len(req.Events))
	for i, e := range req.Events {
		events[i] = store.Event{Timestamp: e.Timestamp, Duration: e.Duration, Data: e.Data}
	}
	ids, err := s.store.InsertEvents(ctx, bucketID, events)
	if err != nil {
		return nil, err
	}

	enqueued := 0
	if s.enrich != nil {
		for i, e := range req.Events {
			task, ok := enrichTask(bucketID, ids[i], e.Data)
			if !ok {
				continue
			}
			s.enrich.Enqueue(task)
			enqueued++
		}
	}
	s.logger.Debug("events ingested", "bucket_id", bucketID, "count", len(ids), "enqueued", enqueued)
	return &models.IngestEventsResponse{EventIDs: ids, Enqueued: enqueued}, nil
}

// enrichTask builds an enrichment task from an event's payload. Events
// without OCR text or a screenshot yield nothing.
func enrichTask(bucketID string, eventID int64, data store.JSONMap) (enrich.Task, bool) {
	prompt, _ := data["ocr_text"].(string)
	var image []byte
	if enc, ok := data["screenshot"].(string); ok && enc != "" {
		if decoded, err := base64.StdEncoding.DecodeString(enc); err == nil {
			image = decoded
		}
	}
	if prompt == "" && image == nil {
		return enrich.Task{}, false
	}
	if title, ok := data["title"].(string); ok && title != "" {
		prompt = title + "\n" + prompt
	}
	return enrich.Task{BucketID: bucketID, EventID: eventID, Prompt: prompt, Image: image}, true
}

// List returns a bucket's events in the range, oldest first.
func (s *EventService) List(ctx context.Context, bucketID string, start, end time.Time, limit int) ([]store.Event, error) {
	if _, err := s.store.GetBucket(ctx, bucketID); err != nil {
		return nil, err
	}
	return s.store.ReadEvents(ctx, bucketID, start, end, limit)
}

// Link attaches an object to an event with manual provenance; repeating the
// call is idempotent.
func (s *EventService) Link(ctx context.Context, bucketID string, eventID int64, req *models.LinkRequest) error {
	if _, err := s.store.GetEvent(ctx, bucketID, eventID); err != nil {
		return err
	}
	if _, err := s.store.GetObject(ctx, req.ObjectID); err != nil {
		return err
	}
	confidence := req.Confidence
	if confidence == 0 {
		confidence = 1.0
	}
	return s.store.LinkEventToObject(ctx, bucketID, eventID, req.ObjectID, store.LinkProvenanceManual, confidence)
}

// Unlink removes an event-object link.
func (s *EventService) Unlink(ctx context.Context, bucketID string, eventID int64, objectID string) error {
	return s.store.UnlinkEventFromObject(ctx, bucketID, eventID, objectID)
}

// LinkedObjects returns the objects linked to an event with their links.
func (s *EventService) LinkedObjects(ctx context.Context, bucketID string, eventID int64) ([]models.LinkedObjectResponse, error) {
	if _, err := s.store.GetEvent(ctx, bucketID, eventID); err != nil {
		return nil, err
	}
	objects, links, err := s.store.ObjectsForEvent(ctx, bucketID, eventID)
	if err != nil {
		return nil, err
	}
	out := make([]models.LinkedObjectResponse, len(objects))
	for i := range objects {
		out[i] = models.LinkedObjectResponse{Object: objects[i], Link: links[i]}
	}
	return out, nil
}
