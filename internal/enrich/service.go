// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/procmine/procmine/internal/store"
)

// Config tunes the enrichment pipeline.
type Config struct {
	Workers       int
	QueueCapacity int
	// LowThreshold is the minimum confidence for an item to be considered
	// at all; AutoThreshold is the minimum for linking without review.
	LowThreshold  float64
	AutoThreshold float64
	// CallTimeout bounds each provider attempt.
	CallTimeout time.Duration
	RetryBase   time.Duration
	MaxRetries  int
	CacheSize   int
	CacheTTL    time.Duration
}

// DefaultConfig returns the engine defaults: 2 workers, capacity 256,
// thresholds 0.5/0.8, 30s call timeout, 500ms retry base with 3 retries and
// a 24h fingerprint cache.
func DefaultConfig() Config {
	return Config{
		Workers:       2,
		QueueCapacity: 256,
		LowThreshold:  0.5,
		AutoThreshold: 0.8,
		CallTimeout:   30 * time.Second,
		RetryBase:     500 * time.Millisecond,
		MaxRetries:    3,
		CacheSize:     4096,
		CacheTTL:      24 * time.Hour,
	}
}

// Service owns the enrichment queue and its worker pool.
type Service struct {
	cfg      Config
	queue    *Queue
	provider Provider
	store    *store.Store
	logger   *slog.Logger
	cache    *expirable.LRU[string, struct{}]

	wg sync.WaitGroup
}

// NewService wires the queue, cache and worker pool. Start must be called
// before tasks are consumed.
func NewService(cfg Config, provider Provider, st *store.Store, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.LowThreshold <= 0 {
		cfg.LowThreshold = def.LowThreshold
	}
	if cfg.AutoThreshold <= 0 {
		cfg.AutoThreshold = def.AutoThreshold
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	return &Service{
		cfg:      cfg,
		queue:    NewQueue(cfg.QueueCapacity),
		provider: provider,
		store:    st,
		logger:   logger.With("component", "enrich"),
		cache:    expirable.NewLRU[string, struct{}](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// Enqueue submits a task without blocking. Tasks may be silently dropped
// under sustained overload; the drop counter records it.
func (s *Service) Enqueue(t Task) {
	if t.Fingerprint == "" {
		t.Fingerprint = Fingerprint(t.Prompt)
	}
	s.queue.Push(t)
}

// QueueDepth returns the number of tasks waiting.
func (s *Service) QueueDepth() int { return s.queue.Len() }

// Start launches the worker pool. Workers exit when ctx is cancelled; Wait
// blocks until they have drained.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.workerLoop(ctx, id)
		}(i)
	}
}

// Wait blocks until all workers have stopped.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) workerLoop(ctx context.Context, id int) {
	logger := s.logger.With("worker", id)
	for {
		task, ok := s.queue.Pop(ctx)
		if !ok {
			return
		}
		if err := s.process(ctx, task); err != nil {
			class := Classify(err)
			tasksFailed.WithLabelValues(class.String()).Inc()
			logger.Warn("enrichment task dropped",
				"bucket_id", task.BucketID, "event_id", task.EventID, "class", class.String(), "error", err)
		}
	}
}

// process runs one task end to end: cache check, provider call with retry,
// item persistence, cache record.
func (s *Service) process(ctx context.Context, task Task) error {
	if _, ok := s.cache.Get(task.Fingerprint); ok {
		cacheHits.Inc()
		return nil
	}

	items, err := s.analyzeWithRetry(ctx, task)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Confidence < s.cfg.LowThreshold {
			continue
		}
		if err := s.persistItem(ctx, task, item); err != nil {
			s.logger.Warn("failed to persist enrichment item",
				"bucket_id", task.BucketID, "event_id", task.EventID, "error", err)
		}
	}
	s.cache.Add(task.Fingerprint, struct{}{})
	tasksProcessed.Inc()
	return nil
}

// analyzeWithRetry retries transient failures with exponential backoff and
// jitter; permanent and malformed failures surface immediately.
func (s *Service) analyzeWithRetry(ctx context.Context, task Task) ([]Item, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffDelay(s.cfg.RetryBase, attempt)); err != nil {
				return nil, lastErr
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		items, err := s.provider.Analyze(callCtx, task.Prompt, task.Image)
		cancel()
		if err == nil {
			return items, nil
		}
		lastErr = err
		if Classify(err) != ClassTransient {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// backoffDelay is base * 2^(attempt-1) with ±20% jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := float64(base) * float64(int(1)<<(attempt-1))
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(d * jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// persistItem turns one provider item into a link (confidence at or above
// the auto threshold) or a pending review task.
func (s *Service) persistItem(ctx context.Context, task Task, item Item) error {
	if item.Confidence >= s.cfg.AutoThreshold {
		data := store.JSONMap{}
		if item.IdentifierKey != "" {
			data[item.IdentifierKey] = item.Identifier
		}
		obj, _, err := s.store.UpsertObject(ctx, item.ObjectType, item.Identifier, data, false)
		if err != nil {
			return err
		}
		return s.store.LinkEventToObject(ctx, task.BucketID, task.EventID, obj.ID, store.LinkProvenanceLLM, item.Confidence)
	}
	return s.store.CreateReviewTask(ctx, &store.ReviewTask{
		BucketID:      task.BucketID,
		EventID:       task.EventID,
		ObjectType:    item.ObjectType,
		Identifier:    item.Identifier,
		IdentifierKey: item.IdentifierKey,
		Confidence:    item.Confidence,
	})
}
