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


// Package reconcile runs the best-effort expense correction pass. Records
// saved with an estimated expense are revisited once their transactions have
// settled and the observed cost is appended next to them.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chainportal-mint-go/internal/chain"
	"chainportal-mint-go/internal/metrics"
	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultInterval  = 5 * time.Minute
	defaultBatchSize = 50
)

type Connectors interface {
	Get(symbol string) (chain.Connector, error)
}

// Config contains configuration for Reconciler
type Config struct {
	Ledger     store.LedgerStore
	Connectors Connectors
	Metrics    *metrics.PipelineMetrics
	Interval   time.Duration
	BatchSize  int
	MinAge     time.Duration
}

// Summary counts the outcome of one pass.
type Summary struct {
	Checked    int
	Reconciled int
	Pending    int
	Failed     int
}

// Reconciler periodically replaces estimated expenses with observed ones
type Reconciler struct {
	ledger     store.LedgerStore
	connectors Connectors
	metrics    *metrics.PipelineMetrics
	interval   time.Duration
	batchSize  int
	minAge     time.Duration
	now        func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// New creates a new Reconciler
func New(cfg Config) *Reconciler {
	r := &Reconciler{
		ledger:     cfg.Ledger,
		connectors: cfg.Connectors,
		metrics:    cfg.Metrics,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		minAge:     cfg.MinAge,
		now:        func() time.Time { return time.Now().UTC() },
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
	if r.interval <= 0 {
		r.interval = defaultInterval
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	return r
}

// Start launches the reconciliation loop. It returns immediately.
func (r *Reconciler) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.started = true
		go r.loop(ctx)
		zap.L().Info("Expense reconciler started",
			zap.Duration("interval", r.interval),
			zap.Int("batch_size", r.batchSize),
			zap.Duration("min_age", r.minAge))
	})
}

// Stop gracefully stops the reconciler and waits for the running pass.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		zap.L().Info("Stopping expense reconciler")
		close(r.stopChan)
		if r.started {
			<-r.doneChan
		}
		zap.L().Info("Expense reconciler stopped")
	})
}

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.pass(ctx)

	for {
		select {
		case <-ticker.C:
			r.pass(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) pass(ctx context.Context) {
	summary, err := r.RunOnce(ctx)
	if err != nil {
		zap.L().Error("Reconciliation pass failed", zap.Error(err))
		return
	}
	if summary.Checked > 0 {
		zap.L().Info("Reconciliation pass completed",
			zap.Int("checked", summary.Checked),
			zap.Int("reconciled", summary.Reconciled),
			zap.Int("pending", summary.Pending),
			zap.Int("failed", summary.Failed))
	}
}

// RunOnce sweeps expired locks and reconciles one batch of records.
func (r *Reconciler) RunOnce(ctx context.Context) (Summary, error) {
	var summary Summary

	purged, err := r.ledger.PurgeExpiredLocks(ctx)
	if err != nil {
		zap.L().Warn("Failed to purge expired locks", zap.Error(err))
	} else if purged > 0 {
		zap.L().Info("Purged expired payment locks", zap.Int64("count", purged))
	}

	pending, err := r.ledger.ListUnreconciled(ctx, r.now().Add(-r.minAge), r.batchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to list unreconciled records: %w", err)
	}

	for _, rec := range pending {
		summary.Checked++
		observed, ok, err := r.observe(ctx, rec)
		switch {
		case err != nil:
			summary.Failed++
			r.metrics.Reconciled(rec.Chain, "error")
			zap.L().Error("Failed to observe record expense",
				zap.String("main_transaction_id", rec.Id),
				zap.String("chain", rec.Chain),
				zap.Error(err))
			continue
		case !ok:
			summary.Pending++
			r.metrics.Reconciled(rec.Chain, "pending")
			continue
		}

		if err := r.ledger.RecordReconciliation(ctx, rec.Id, observed); err != nil {
			summary.Failed++
			r.metrics.Reconciled(rec.Chain, "error")
			zap.L().Error("Failed to record reconciliation",
				zap.String("main_transaction_id", rec.Id),
				zap.Error(err))
			continue
		}
		summary.Reconciled++
		r.metrics.Reconciled(rec.Chain, "reconciled")
		zap.L().Debug("Record reconciled",
			zap.String("main_transaction_id", rec.Id),
			zap.String("estimated_expense", rec.ExpenseAmount.String()),
			zap.String("observed_expense", observed.String()))
	}

	return summary, nil
}

// observe sums the platform's spend over every landed reward transaction of
// rec. ok is false while any of them has no readable balance delta yet.
func (r *Reconciler) observe(ctx context.Context, rec models.TransactionDetails) (decimal.Decimal, bool, error) {
	conn, err := r.connectors.Get(rec.Chain)
	if err != nil {
		return decimal.Zero, false, err
	}

	total := decimal.Zero
	refs := 0
	for _, rt := range rec.RewardTxs {
		if rt.Failed || rt.TxRef == "" {
			continue
		}
		refs++
		delta, ok := conn.OwnBalanceDelta(ctx, rt.TxRef)
		if !ok {
			return decimal.Zero, false, nil
		}
		if delta.IsNegative() {
			total = total.Add(delta.Neg())
		}
	}
	if refs == 0 {
		return decimal.Zero, false, nil
	}
	return total, true, nil
}
