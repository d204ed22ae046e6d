// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	linksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procmine_extract_links_total",
		Help: "Event-object links created by rule extraction.",
	})
	rulesQuarantined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procmine_rules_quarantined_total",
		Help: "Rules disabled because their pattern failed to compile.",
	})
	rulesDemoted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procmine_rules_demoted_total",
		Help: "Rules disabled by the learning loop for poor accuracy.",
	})
	rulesLearned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procmine_rules_learned_total",
		Help: "Candidate rules proposed from repeated corrections.",
	})
)
