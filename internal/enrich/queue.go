// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Task priorities.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Task is one queued enrichment request.
type Task struct {
	BucketID    string
	EventID     int64
	Prompt      string
	Image       []byte
	Fingerprint string
	Priority    string
}

// Fingerprint hashes the analyzed content so identical payloads are only
// sent to the provider once per cache TTL.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Queue is a bounded FIFO with two priority lanes. Producers never block:
// pushing into a full queue discards the oldest unstarted normal task (or
// the oldest high task when no normal task is queued) and counts the drop.
type Queue struct {
	mu       sync.Mutex
	high     []Task
	normal   []Task
	capacity int
	notify   chan struct{}
}

// NewQueue returns a queue bounded to capacity tasks.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{capacity: capacity, notify: make(chan struct{}, 1)}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) + len(q.normal)
}

// Push enqueues a task, evicting the oldest unstarted task when full.
// It never blocks.
func (q *Queue) Push(t Task) {
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	q.mu.Lock()
	if len(q.high)+len(q.normal) >= q.capacity {
		if len(q.normal) > 0 {
			q.normal = q.normal[1:]
		} else {
			q.high = q.high[1:]
		}
		tasksDropped.Inc()
	}
	if t.Priority == PriorityHigh {
		q.high = append(q.high, t)
	} else {
		q.normal = append(q.normal, t)
	}
	queueDepth.Set(float64(len(q.high) + len(q.normal)))
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop dequeues the next task, preferring the high lane. It blocks until a
// task is available or the context is cancelled.
func (q *Queue) Pop(ctx context.Context) (Task, bool) {
	for {
		q.mu.Lock()
		var t Task
		var ok bool
		switch {
		case len(q.high) > 0:
			t, q.high, ok = q.high[0], q.high[1:], true
		case len(q.normal) > 0:
			t, q.normal, ok = q.normal[0], q.normal[1:], true
		}
		remaining := len(q.high) + len(q.normal)
		queueDepth.Set(float64(remaining))
		q.mu.Unlock()
		if ok {
			// Re-signal so a second waiting worker sees remaining work.
			if remaining > 0 {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return t, true
		}

		select {
		case <-ctx.Done():
			return Task{}, false
		case <-q.notify:
		}
	}
}
