// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateObjectType creates a new object type.
func (s *Store) CreateObjectType(ctx context.Context, t *ObjectType) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var existing ObjectType
		if err := tx.First(&existing, "name = ?", t.Name).Error; err == nil {
			return fmt.Errorf("object type %s: %w", t.Name, ErrConflict)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		now := time.Now().UTC()
		t.CreatedAt, t.UpdatedAt = now, now
		return tx.Create(t).Error
	})
}

// GetObjectType returns the object type with the given name.
func (s *Store) GetObjectType(ctx context.Context, name string) (*ObjectType, error) {
	var t ObjectType
	if err := s.read(ctx).First(&t, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("object type %s: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}

// ListObjectTypes returns all object types ordered by name.
func (s *Store) ListObjectTypes(ctx context.Context) ([]ObjectType, error) {
	var types []ObjectType
	if err := s.read(ctx).Order("name ASC").Find(&types).Error; err != nil {
		return nil, err
	}
	return types, nil
}

// UpdateObjectType updates display metadata of an object type.
func (s *Store) UpdateObjectType(ctx context.Context, t *ObjectType) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var existing ObjectType
		if err := tx.First(&existing, "name = ?", t.Name).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("object type %s: %w", t.Name, ErrNotFound)
			}
			return err
		}
		t.CreatedAt = existing.CreatedAt
		t.Seeded = existing.Seeded
		t.UpdatedAt = time.Now().UTC()
		return tx.Save(t).Error
	})
}

// DeleteObjectType deletes an object type. Deleting a type is forbidden
// while any object of that type exists.
func (s *Store) DeleteObjectType(ctx context.Context, name string) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Object{}).Where("type = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("object type %s has %d objects: %w", name, count, ErrPreconditionFailed)
		}
		res := tx.Delete(&ObjectType{}, "name = ?", name)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("object type %s: %w", name, ErrNotFound)
		}
		return nil
	})
}

// CreateObject creates an object. Fails with ErrConflict when the
// (type, name) pair already exists.
func (s *Store) CreateObject(ctx context.Context, o *Object) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var existing Object
		err := tx.First(&existing, "type = ? AND name = ?", o.Type, o.Name).Error
		if err == nil {
			return fmt.Errorf("object (%s, %s): %w", o.Type, o.Name, ErrConflict)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		if o.Data == nil {
			o.Data = JSONMap{}
		}
		now := time.Now().UTC()
		o.CreatedAt, o.UpdatedAt = now, now
		return tx.Create(o).Error
	})
}

// UpsertObject enforces (type, name) uniqueness: when the object exists its
// data is merged (new keys win over absent keys, existing keys are preserved
// unless replace is set) and the updated timestamp bumped; otherwise a new
// object is created. Returns the object and whether it was created.
func (s *Store) UpsertObject(ctx context.Context, objType, name string, data JSONMap, replace bool) (*Object, bool, error) {
	var out Object
	var created bool
	err := s.write(ctx, func(tx *gorm.DB) error {
		var existing Object
		err := tx.First(&existing, "type = ? AND name = ?", objType, name).Error
		switch {
		case err == nil:
			merged := existing.Data
			if merged == nil {
				merged = JSONMap{}
			}
			for k, v := range data {
				if _, ok := merged[k]; !ok || replace {
					merged[k] = v
				}
			}
			existing.Data = merged
			existing.UpdatedAt = time.Now().UTC()
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			out = existing
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			now := time.Now().UTC()
			obj := Object{
				ID:        uuid.NewString(),
				Type:      objType,
				Name:      name,
				Data:      data,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if obj.Data == nil {
				obj.Data = JSONMap{}
			}
			if err := tx.Create(&obj).Error; err != nil {
				return err
			}
			out = obj
			created = true
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

// GetObject returns the object with the given id.
func (s *Store) GetObject(ctx context.Context, id string) (*Object, error) {
	var o Object
	if err := s.read(ctx).First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("object %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &o, nil
}

// ObjectFilter narrows ListObjects results.
type ObjectFilter struct {
	Type  string
	Query string // substring match on name
	Start time.Time
	End   time.Time
	Limit int
}

// ListObjects returns objects matching the filter, newest first.
func (s *Store) ListObjects(ctx context.Context, f ObjectFilter) ([]Object, error) {
	q := s.read(ctx).Model(&Object{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Query != "" {
		q = q.Where("name LIKE ?", "%"+f.Query+"%")
	}
	if !f.Start.IsZero() {
		q = q.Where("updated_at >= ?", f.Start.UTC())
	}
	if !f.End.IsZero() {
		q = q.Where("updated_at < ?", f.End.UTC())
	}
	q = q.Order("updated_at DESC, id ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var objects []Object
	if err := q.Find(&objects).Error; err != nil {
		return nil, err
	}
	return objects, nil
}

// UpdateObject replaces name and data of an object.
func (s *Store) UpdateObject(ctx context.Context, o *Object) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var existing Object
		if err := tx.First(&existing, "id = ?", o.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("object %s: %w", o.ID, ErrNotFound)
			}
			return err
		}
		// Renames must not collide with another (type, name).
		var dup Object
		err := tx.First(&dup, "type = ? AND name = ? AND id <> ?", o.Type, o.Name, o.ID).Error
		if err == nil {
			return fmt.Errorf("object (%s, %s): %w", o.Type, o.Name, ErrConflict)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		o.CreatedAt = existing.CreatedAt
		o.UpdatedAt = time.Now().UTC()
		return tx.Save(o).Error
	})
}

// DeleteObject deletes an object and cascade-deletes its junction rows.
func (s *Store) DeleteObject(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&Object{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("object %s: %w", id, ErrNotFound)
		}
		if err := tx.Delete(&EventObjectLink{}, "object_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&StepObject{}, "object_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&WorkflowObject{}, "object_id = ?", id).Error
	})
}

// LinkEventToObject binds an event to an object. Idempotent on the triple:
// re-linking updates provenance and confidence only.
func (s *Store) LinkEventToObject(ctx context.Context, bucketID string, eventID int64, objectID, provenance string, confidence float64) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var obj Object
		if err := tx.First(&obj, "id = ?", objectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("object %s: %w", objectID, ErrNotFound)
			}
			return err
		}
		var link EventObjectLink
		err := tx.First(&link, "bucket_id = ? AND event_id = ? AND object_id = ?", bucketID, eventID, objectID).Error
		if err == nil {
			link.Provenance = provenance
			link.Confidence = confidence
			return tx.Save(&link).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&EventObjectLink{
			BucketID:   bucketID,
			EventID:    eventID,
			ObjectID:   objectID,
			Provenance: provenance,
			Confidence: confidence,
			CreatedAt:  time.Now().UTC(),
		}).Error
	})
}

// GetLink returns a single event-object link.
func (s *Store) GetLink(ctx context.Context, bucketID string, eventID int64, objectID string) (*EventObjectLink, error) {
	var link EventObjectLink
	err := s.read(ctx).First(&link, "bucket_id = ? AND event_id = ? AND object_id = ?", bucketID, eventID, objectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("link %s/%d -> %s: %w", bucketID, eventID, objectID, ErrNotFound)
		}
		return nil, err
	}
	return &link, nil
}

// UnlinkEventFromObject removes a single event-object link.
func (s *Store) UnlinkEventFromObject(ctx context.Context, bucketID string, eventID int64, objectID string) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&EventObjectLink{}, "bucket_id = ? AND event_id = ? AND object_id = ?", bucketID, eventID, objectID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("link %s/%d -> %s: %w", bucketID, eventID, objectID, ErrNotFound)
		}
		return nil
	})
}

// ObjectsForEvent returns the objects linked to an event together with the
// link metadata, ordered by object id for determinism.
func (s *Store) ObjectsForEvent(ctx context.Context, bucketID string, eventID int64) ([]Object, []EventObjectLink, error) {
	var links []EventObjectLink
	err := s.read(ctx).
		Where("bucket_id = ? AND event_id = ?", bucketID, eventID).
		Order("object_id ASC").
		Find(&links).Error
	if err != nil {
		return nil, nil, err
	}
	objects := make([]Object, 0, len(links))
	for _, l := range links {
		var o Object
		if err := s.read(ctx).First(&o, "id = ?", l.ObjectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue // link raced with object deletion
			}
			return nil, nil, err
		}
		objects = append(objects, o)
	}
	return objects, links, nil
}

// EventsForObject returns the events linked to an object within the given
// time range, ordered by timestamp with a stable id tie-break.
func (s *Store) EventsForObject(ctx context.Context, objectID string, start, end time.Time) ([]Event, error) {
	var links []EventObjectLink
	if err := s.read(ctx).Where("object_id = ?", objectID).Find(&links).Error; err != nil {
		return nil, err
	}
	var events []Event
	for _, l := range links {
		var e Event
		err := s.read(ctx).First(&e, "bucket_id = ? AND id = ?", l.BucketID, l.EventID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		if !start.IsZero() && e.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !e.Timestamp.Before(end) {
			continue
		}
		events = append(events, e)
	}
	sortEvents(events)
	return events, nil
}

// LinkedObjectIDs returns the ids of objects linked to the given event.
func (s *Store) LinkedObjectIDs(ctx context.Context, bucketID string, eventID int64) ([]string, error) {
	var ids []string
	err := s.read(ctx).Model(&EventObjectLink{}).
		Where("bucket_id = ? AND event_id = ?", bucketID, eventID).
		Order("object_id ASC").
		Pluck("object_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
