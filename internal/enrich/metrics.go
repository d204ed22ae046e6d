// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procmine_enrich_dropped_total",
		Help: "Enrichment tasks discarded because the queue was full.",
	})
	tasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procmine_enrich_failed_total",
		Help: "Enrichment tasks dropped after a provider failure, by class.",
	}, []string{"class"})
	tasksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procmine_enrich_processed_total",
		Help: "Enrichment tasks completed successfully.",
	})
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procmine_enrich_cache_hits_total",
		Help: "Tasks skipped because their fingerprint was cached.",
	})
	providerFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procmine_enrich_failovers_total",
		Help: "Analyze calls served by the fallback provider.",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "procmine_enrich_queue_depth",
		Help: "Current number of queued enrichment tasks.",
	})
)
