/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks minting pipelines, refunds and lock contention.
type PipelineMetrics struct {
	started    *prometheus.CounterVec
	finished   *prometheus.CounterVec
	stage      *prometheus.HistogramVec
	refunds    *prometheus.CounterVec
	contention *prometheus.CounterVec
	reconciled *prometheus.CounterVec
}

var (
	pipelineOnce     sync.Once
	pipelineRegistry *PipelineMetrics
)

// Pipeline returns the lazily registered pipeline metrics.
func Pipeline() *PipelineMetrics {
	pipelineOnce.Do(func() {
		pipelineRegistry = &PipelineMetrics{
			started: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chainportal",
				Subsystem: "mint",
				Name:      "pipelines_started_total",
				Help:      "Minting pipelines started, by chain and asset type.",
			}, []string{"chain", "asset_type"}),
			finished: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chainportal",
				Subsystem: "mint",
				Name:      "pipelines_finished_total",
				Help:      "Minting pipelines finished, by chain, asset type and terminal outcome.",
			}, []string{"chain", "asset_type", "outcome"}),
			stage: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "chainportal",
				Subsystem: "mint",
				Name:      "stage_duration_seconds",
				Help:      "Latency of each pipeline stage.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			}, []string{"chain", "stage"}),
			refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chainportal",
				Subsystem: "refund",
				Name:      "refunds_total",
				Help:      "Compensating refunds, by chain and outcome.",
			}, []string{"chain", "outcome"}),
			contention: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chainportal",
				Subsystem: "mint",
				Name:      "lock_rejections_total",
				Help:      "Requests rejected by the idempotency guard, by reason.",
			}, []string{"reason"}),
			reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chainportal",
				Subsystem: "ledger",
				Name:      "expense_reconciliations_total",
				Help:      "Expense correction attempts, by chain and outcome.",
			}, []string{"chain", "outcome"}),
		}
		prometheus.MustRegister(
			pipelineRegistry.started,
			pipelineRegistry.finished,
			pipelineRegistry.stage,
			pipelineRegistry.refunds,
			pipelineRegistry.contention,
			pipelineRegistry.reconciled,
		)
	})
	return pipelineRegistry
}

func (m *PipelineMetrics) Started(chain, assetType string) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(chain, assetType).Inc()
}

func (m *PipelineMetrics) Finished(chain, assetType, outcome string) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(chain, assetType, outcome).Inc()
}

func (m *PipelineMetrics) ObserveStage(chain, stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stage.WithLabelValues(chain, stage).Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) Refund(chain string, refunded bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if refunded {
		outcome = "refunded"
	}
	m.refunds.WithLabelValues(chain, outcome).Inc()
}

func (m *PipelineMetrics) LockRejected(reason string) {
	if m == nil {
		return
	}
	m.contention.WithLabelValues(reason).Inc()
}

func (m *PipelineMetrics) Reconciled(chain, outcome string) {
	if m == nil {
		return
	}
	m.reconciled.WithLabelValues(chain, outcome).Inc()
}
