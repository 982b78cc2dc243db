/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metric

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CovenantSQL/trustindex/types"
)

const namespace = "trustindex"

// Outcome labels of run counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

var (
	// Index exposes the last persisted global metrics snapshot.
	Index = NewIndexCollector()

	// SchemaRecomputes counts schema recomputations by outcome.
	SchemaRecomputes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "aggregate",
		Name:      "schema_recomputes_total",
		Help:      "Schema aggregate recomputations by outcome.",
	}, []string{"outcome"})

	// RecomputeDuration observes the duration of full recomputations.
	RecomputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "aggregate",
		Name:      "recompute_duration_seconds",
		Help:      "Duration of full aggregate recomputations.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	// SnapshotRuns counts snapshot scheduler runs by outcome.
	SnapshotRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "snapshot",
		Name:      "runs_total",
		Help:      "Global metrics snapshot runs by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(Index, SchemaRecomputes, RecomputeDuration, SnapshotRuns)
}

// statMetric provides description, value, and value type for a global index metric.
type statMetric struct {
	desc    *prometheus.Desc
	eval    func(m *types.GlobalMetrics) float64
	valType prometheus.ValueType
}

type indexStatsMetrics []statMetric

// IndexCollector collects the global metrics of the last persisted snapshot.
type IndexCollector struct {
	sync.RWMutex
	last       *types.GlobalMetrics
	computedAt time.Time

	// metrics to describe and collect
	metrics indexStatsMetrics
	age     *prometheus.Desc
}

func globalName(s string) string {
	return fmt.Sprintf("%s_global_%s", namespace, s)
}

func gauge(name, help string, eval func(m *types.GlobalMetrics) float64) statMetric {
	return statMetric{
		desc:    prometheus.NewDesc(globalName(name), help, nil, nil),
		eval:    eval,
		valType: prometheus.GaugeValue,
	}
}

// NewIndexCollector returns a new IndexCollector.
func NewIndexCollector() *IndexCollector {
	return &IndexCollector{
		metrics: indexStatsMetrics{
			gauge("participants", "Active permissions.", func(m *types.GlobalMetrics) float64 {
				return float64(m.Participants)
			}),
			gauge("weight", "Total deposit weight.", func(m *types.GlobalMetrics) float64 {
				return m.Weight.Float64()
			}),
			gauge("issued", "Issuance authorizations.", func(m *types.GlobalMetrics) float64 {
				return float64(m.Issued)
			}),
			gauge("verified", "Verification authorizations.", func(m *types.GlobalMetrics) float64 {
				return float64(m.Verified)
			}),
			gauge("active_trust_registries", "Active trust registries.", func(m *types.GlobalMetrics) float64 {
				return float64(m.ActiveTrustRegistries)
			}),
			gauge("archived_trust_registries", "Archived trust registries.", func(m *types.GlobalMetrics) float64 {
				return float64(m.ArchivedTrustRegistries)
			}),
			gauge("active_schemas", "Active credential schemas.", func(m *types.GlobalMetrics) float64 {
				return float64(m.ActiveSchemas)
			}),
			gauge("archived_schemas", "Archived credential schemas.", func(m *types.GlobalMetrics) float64 {
				return float64(m.ArchivedSchemas)
			}),
			gauge("ecosystem_slash_events", "Slashes imposed by registry controllers.", func(m *types.GlobalMetrics) float64 {
				return float64(m.EcosystemSlashEvents)
			}),
			gauge("ecosystem_slashed_amount", "Deposit slashed by registry controllers.", func(m *types.GlobalMetrics) float64 {
				return m.EcosystemSlashedAmount.Float64()
			}),
			gauge("network_slash_events", "Slashes of ecosystem permissions.", func(m *types.GlobalMetrics) float64 {
				return float64(m.NetworkSlashEvents)
			}),
			gauge("network_slashed_amount", "Deposit slashed from ecosystem permissions.", func(m *types.GlobalMetrics) float64 {
				return m.NetworkSlashedAmount.Float64()
			}),
		},
		age: prometheus.NewDesc(globalName("snapshot_age_seconds"), "Age of the last persisted snapshot.", nil, nil),
	}
}

// Update replaces the exposed snapshot.
func (c *IndexCollector) Update(s *types.GlobalMetricsSnapshot) {
	if s == nil {
		return
	}
	m := s.GlobalMetrics
	c.Lock()
	defer c.Unlock()
	c.last = &m
	c.computedAt = s.ComputedAt
}

// Last returns the exposed metrics and their computation time, nil before the first update.
func (c *IndexCollector) Last() (*types.GlobalMetrics, time.Time) {
	c.RLock()
	defer c.RUnlock()
	return c.last, c.computedAt
}

// Describe returns all descriptions of the collector.
func (c *IndexCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, i := range c.metrics {
		ch <- i.desc
	}
	ch <- c.age
}

// Collect returns the current state of all metrics of the collector.
func (c *IndexCollector) Collect(ch chan<- prometheus.Metric) {
	c.RLock()
	defer c.RUnlock()
	if c.last == nil {
		return
	}

	for _, i := range c.metrics {
		ch <- prometheus.MustNewConstMetric(i.desc, i.valType, i.eval(c.last))
	}
	ch <- prometheus.MustNewConstMetric(c.age, prometheus.GaugeValue, time.Since(c.computedAt).Seconds())
}
