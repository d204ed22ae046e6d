// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/procmine/procmine/internal/api/models"
	"github.com/procmine/procmine/internal/store"
)

// ObjectService manages ontology types and business objects.
type ObjectService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewObjectService creates a new ObjectService.
func NewObjectService(st *store.Store, logger *slog.Logger) *ObjectService {
	return &ObjectService{store: st, logger: logger}
}

// ListTypes returns all object types.
func (s *ObjectService) ListTypes(ctx context.Context) ([]store.ObjectType, error) {
	return s.store.ListObjectTypes(ctx)
}

// CreateType creates an object type.
func (s *ObjectService) CreateType(ctx context.Context, req *models.CreateObjectTypeRequest) (*store.ObjectType, error) {
	t := &store.ObjectType{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Schema:      req.Schema,
		Icon:        req.Icon,
		Color:       req.Color,
	}
	if err := s.store.CreateObjectType(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("object type created", "type", t.Name)
	return t, nil
}

// GetType returns one object type by name.
func (s *ObjectService) GetType(ctx context.Context, name string) (*store.ObjectType, error) {
	return s.store.GetObjectType(ctx, name)
}

// UpdateType applies the non-nil fields of the request.
func (s *ObjectService) UpdateType(ctx context.Context, name string, req *models.UpdateObjectTypeRequest) (*store.ObjectType, error) {
	t, err := s.store.GetObjectType(ctx, name)
	if err != nil {
		return nil, err
	}
	if req.DisplayName != nil {
		t.DisplayName = *req.DisplayName
	}
	if req.Schema != nil {
		t.Schema = req.Schema
	}
	if req.Icon != nil {
		t.Icon = *req.Icon
	}
	if req.Color != nil {
		t.Color = *req.Color
	}
	if err := s.store.UpdateObjectType(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteType deletes a type. Types still referenced by objects or rules are
// rejected by the store with a precondition error.
func (s *ObjectService) DeleteType(ctx context.Context, name string) error {
	return s.store.DeleteObjectType(ctx, name)
}

// List returns objects matching the filter.
func (s *ObjectService) List(ctx context.Context, f store.ObjectFilter) ([]store.Object, error) {
	return s.store.ListObjects(ctx, f)
}

// Create creates a business object manually.
func (s *ObjectService) Create(ctx context.Context, req *models.CreateObjectRequest) (*store.Object, error) {
	o := &store.Object{Type: req.Type, Name: req.Name, Data: req.Data}
	if err := s.store.CreateObject(ctx, o); err != nil {
		return nil, err
	}
	s.logger.Info("object created", "object_id", o.ID, "type", o.Type, "name", o.Name)
	return o, nil
}

// Get returns one object by id.
func (s *ObjectService) Get(ctx context.Context, id string) (*store.Object, error) {
	return s.store.GetObject(ctx, id)
}

// Update applies the non-nil fields of the request.
func (s *ObjectService) Update(ctx context.Context, id string, req *models.UpdateObjectRequest) (*store.Object, error) {
	o, err := s.store.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		o.Name = *req.Name
	}
	if req.Data != nil {
		o.Data = req.Data
	}
	if err := s.store.UpdateObject(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Delete deletes an object and its links.
func (s *ObjectService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteObject(ctx, id)
}

// Events returns the events linked to an object within the range.
func (s *ObjectService) Events(ctx context.Context, id string, start, end time.Time) ([]store.Event, error) {
	if _, err := s.store.GetObject(ctx, id); err != nil {
		return nil, err
	}
	return s.store.EventsForObject(ctx, id, start, end)
}

// Stats returns the store summary counters.
func (s *ObjectService) Stats(ctx context.Context) (*store.Stats, error) {
	return s.store.GetStats(ctx)
}
