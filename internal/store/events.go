// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CreateBucket registers a bucket if it does not exist yet.
func (s *Store) CreateBucket(ctx context.Context, b *Bucket) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var existing Bucket
		err := tx.First(&existing, "id = ?", b.ID).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		b.CreatedAt = time.Now().UTC()
		return tx.Create(b).Error
	})
}

// GetBucket returns the bucket with the given id.
func (s *Store) GetBucket(ctx context.Context, id string) (*Bucket, error) {
	var b Bucket
	if err := s.read(ctx).First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("bucket %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &b, nil
}

// ListBuckets returns all buckets ordered by id.
func (s *Store) ListBuckets(ctx context.Context) ([]Bucket, error) {
	var buckets []Bucket
	if err := s.read(ctx).Order("id ASC").Find(&buckets).Error; err != nil {
		return nil, err
	}
	return buckets, nil
}

// InsertEvents appends events to a bucket, assigning per-bucket integer ids
// in insertion order. The bucket is created implicitly when missing. Returns
// the assigned ids.
func (s *Store) InsertEvents(ctx context.Context, bucketID string, events []Event) ([]int64, error) {
	ids := make([]int64, 0, len(events))
	err := s.write(ctx, func(tx *gorm.DB) error {
		var bucket Bucket
		if err := tx.First(&bucket, "id = ?", bucketID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			bucket = Bucket{ID: bucketID, CreatedAt: time.Now().UTC()}
			if err := tx.Create(&bucket).Error; err != nil {
				return err
			}
		}

		var next int64
		if err := tx.Model(&Event{}).Where("bucket_id = ?", bucketID).
			Select("COALESCE(MAX(id), 0)").Scan(&next).Error; err != nil {
			return err
		}

		for i := range events {
			next++
			events[i].BucketID = bucketID
			events[i].ID = next
			events[i].Timestamp = events[i].Timestamp.UTC()
			if events[i].Data == nil {
				events[i].Data = JSONMap{}
			}
			if err := tx.Create(&events[i]).Error; err != nil {
				return err
			}
			ids = append(ids, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetEvent returns a single event by bucket and id.
func (s *Store) GetEvent(ctx context.Context, bucketID string, eventID int64) (*Event, error) {
	var e Event
	err := s.read(ctx).First(&e, "bucket_id = ? AND id = ?", bucketID, eventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("event %s/%d: %w", bucketID, eventID, ErrNotFound)
		}
		return nil, err
	}
	return &e, nil
}

// ReadEvents returns events for a bucket in [start, end), ordered by
// timestamp ascending with a stable tie-break on id. A zero end means no
// upper bound; limit <= 0 means no limit.
func (s *Store) ReadEvents(ctx context.Context, bucketID string, start, end time.Time, limit int) ([]Event, error) {
	q := s.read(ctx).Where("bucket_id = ?", bucketID)
	if !start.IsZero() {
		q = q.Where("timestamp >= ?", start.UTC())
	}
	if !end.IsZero() {
		q = q.Where("timestamp < ?", end.UTC())
	}
	q = q.Order("timestamp ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var events []Event
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ReadEventsChunked streams events for a bucket in timestamp order, invoking
// fn once per chunk. fn returning an error stops the scan.
func (s *Store) ReadEventsChunked(ctx context.Context, bucketID string, start, end time.Time, chunkSize int, fn func(chunk []Event) error) error {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	cursorTS := start
	var cursorID int64

	for {
		q := s.read(ctx).Where("bucket_id = ?", bucketID)
		if !cursorTS.IsZero() {
			q = q.Where("(timestamp > ?) OR (timestamp = ? AND id > ?)", cursorTS.UTC(), cursorTS.UTC(), cursorID)
		}
		if !end.IsZero() {
			q = q.Where("timestamp < ?", end.UTC())
		}
		var chunk []Event
		if err := q.Order("timestamp ASC, id ASC").Limit(chunkSize).Find(&chunk).Error; err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		last := chunk[len(chunk)-1]
		cursorTS, cursorID = last.Timestamp, last.ID
		if len(chunk) < chunkSize {
			return nil
		}
	}
}

// CountEvents returns the number of events for a bucket in [start, end).
func (s *Store) CountEvents(ctx context.Context, bucketID string, start, end time.Time) (int64, error) {
	q := s.read(ctx).Model(&Event{}).Where("bucket_id = ?", bucketID)
	if !start.IsZero() {
		q = q.Where("timestamp >= ?", start.UTC())
	}
	if !end.IsZero() {
		q = q.Where("timestamp < ?", end.UTC())
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
