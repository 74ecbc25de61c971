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

package refund

import (
	"context"
	"fmt"
	"time"

	"chainportal-mint-go/internal/chain"
	"chainportal-mint-go/internal/metrics"
	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	MessageRefunded     = "Your transaction amount was refunded after deducting the estimated fee(s). Please try again."
	MessageRefundFailed = "Your refund failed. Please contact support with your payment signature."
)

var defaultMargin = decimal.RequireFromString("0.3")

// Connectors resolves a chain symbol to its connector.
type Connectors interface {
	Get(symbol string) (chain.Connector, error)
}

// Mirror receives every persisted record. returned is what was sent back to
// the payer. Failures are logged, never returned.
type Mirror interface {
	RecordOperation(ctx context.Context, id string, params store.SaveMainTransactionParams, returned decimal.Decimal) error
}

// Request describes one compensating transfer. The amount held for the user is
// Paid minus Consumed; Consumed covers portions already earned or spent, such
// as the platform fee or an observed upload cost.
type Request struct {
	Chain            string
	AssetType        models.AssetType
	PaymentSignature string
	Recipient        string
	Paid             decimal.Decimal
	Consumed         decimal.Decimal
	Reason           string

	// NetworkCost skips the live estimate when set. It is used as is, without margin.
	NetworkCost *decimal.Decimal

	// PriorRewards are carried into the record ahead of the refund.
	PriorRewards []store.RewardParams
}

// Held is the gross amount to give back before network costs.
func (r Request) Held() decimal.Decimal {
	return r.Paid.Sub(r.Consumed)
}

// Outcome is the terminal result of a refund. Message is user-facing.
type Outcome struct {
	Refunded      bool
	Message       string
	TxRef         string
	AmountSent    decimal.Decimal
	Estimate      decimal.Decimal
	Expense       decimal.Decimal
	ExpenseSource models.ExpenseSource
	RecordID      string
	Err           error
}

type Engine struct {
	connectors   Connectors
	chains       map[string]models.ChainConfig
	ledger       store.LedgerStore
	mirror       Mirror
	metrics      *metrics.PipelineMetrics
	deltaTimeout time.Duration
}

func NewEngine(connectors Connectors, chains map[string]models.ChainConfig, ledger store.LedgerStore, mirror Mirror, m *metrics.PipelineMetrics, deltaTimeout time.Duration) *Engine {
	if deltaTimeout <= 0 {
		deltaTimeout = 30 * time.Second
	}
	return &Engine{
		connectors:   connectors,
		chains:       chains,
		ledger:       ledger,
		mirror:       mirror,
		metrics:      m,
		deltaTimeout: deltaTimeout,
	}
}

func (e *Engine) margin(symbol string) decimal.Decimal {
	if cfg, ok := e.chains[symbol]; ok && cfg.RefundFeeMargin.IsPositive() {
		return cfg.RefundFeeMargin
	}
	return defaultMargin
}

// Refund sends Held minus the estimated network cost back to the recipient and
// persists exactly one record for the payment, whether or not the transfer
// succeeded. It never retries.
func (e *Engine) Refund(ctx context.Context, req Request) Outcome {
	logger := zap.L().With(
		zap.String("signature", req.PaymentSignature),
		zap.String("chain", req.Chain),
		zap.String("stage", "refund"),
		zap.String("reason", req.Reason))

	out := Outcome{Message: MessageRefundFailed, ExpenseSource: models.ExpenseEstimate}
	rewards := append([]store.RewardParams(nil), req.PriorRewards...)

	conn, err := e.connectors.Get(req.Chain)
	if err != nil {
		out.Err = err
		out.Expense = req.Consumed
		rewards = append(rewards, failedReward(out.Estimate, err))
		e.persist(ctx, req, rewards, &out, logger)
		return out
	}

	out.Estimate, err = e.estimate(ctx, conn, req)
	if err != nil {
		logger.Error("Unable to estimate refund network cost", zap.Error(err))
		out.Err = err
		out.Expense = req.Consumed
		rewards = append(rewards, failedReward(out.Estimate, err))
		e.persist(ctx, req, rewards, &out, logger)
		return out
	}

	out.AmountSent = req.Held().Sub(out.Estimate)
	if !out.AmountSent.IsPositive() {
		err := fmt.Errorf("held amount %s does not cover the refund network cost %s", req.Held(), out.Estimate)
		logger.Warn("Refund skipped", zap.Error(err))
		out.Err = err
		out.AmountSent = decimal.Zero
		out.Expense = req.Paid
		rewards = append(rewards, failedReward(out.Estimate, err))
		e.persist(ctx, req, rewards, &out, logger)
		return out
	}

	if err := conn.ValidateAddress(req.Recipient); err != nil {
		logger.Error("Refund recipient rejected", zap.String("recipient", req.Recipient), zap.Error(err))
		out.Err = fmt.Errorf("refund recipient %q: %w", req.Recipient, err)
		out.AmountSent = decimal.Zero
		out.Expense = req.Consumed
		rewards = append(rewards, failedReward(out.Estimate, out.Err))
		e.persist(ctx, req, rewards, &out, logger)
		return out
	}

	logger.Info("Sending refund",
		zap.String("recipient", req.Recipient),
		zap.String("paid", req.Paid.String()),
		zap.String("consumed", req.Consumed.String()),
		zap.String("estimate", out.Estimate.String()),
		zap.String("amount", out.AmountSent.String()))

	result := conn.TransferNative(ctx, req.Recipient, out.AmountSent)
	out.TxRef = result.TxRef

	if !result.Success {
		out.Err = result.Err
		if out.Err == nil {
			out.Err = fmt.Errorf("transfer to %s failed", req.Recipient)
		}
		logger.Error("Refund transfer failed", zap.String("tx_ref", result.TxRef), zap.Error(out.Err))
		out.Expense = req.Consumed.Add(out.Estimate)
		rewards = append(rewards, failedReward(out.Estimate, out.Err))
		e.persist(ctx, req, rewards, &out, logger)
		return out
	}

	out.Refunded = true
	out.Message = MessageRefunded
	out.Expense = req.Consumed.Add(out.Estimate)

	if cost, ok := e.observedCost(ctx, conn, result.TxRef, out.AmountSent); ok {
		out.Expense = req.Consumed.Add(cost)
		out.ExpenseSource = models.ExpenseObserved
	}

	rewards = append(rewards, store.RewardParams{Type: models.RewardRefund, TxRef: result.TxRef})
	e.persist(ctx, req, rewards, &out, logger)

	logger.Info("Refund completed",
		zap.String("tx_ref", out.TxRef),
		zap.String("expense", out.Expense.String()),
		zap.String("expense_source", string(out.ExpenseSource)))
	return out
}

func (e *Engine) estimate(ctx context.Context, conn chain.Connector, req Request) (decimal.Decimal, error) {
	if req.NetworkCost != nil {
		return *req.NetworkCost, nil
	}
	fee, err := conn.EstimateTransferFee(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("estimate refund network cost: %w", err)
	}
	return chain.WithMargin(fee, e.margin(conn.Symbol())), nil
}

// observedCost is the network fee the refund actually cost: whatever left the
// platform beyond the amount sent.
func (e *Engine) observedCost(ctx context.Context, conn chain.Connector, txRef string, sent decimal.Decimal) (decimal.Decimal, bool) {
	ctx, cancel := context.WithTimeout(ctx, e.deltaTimeout)
	defer cancel()

	delta, ok := conn.OwnBalanceDelta(ctx, txRef)
	if !ok {
		return decimal.Zero, false
	}
	cost := delta.Neg().Sub(sent)
	if cost.IsNegative() {
		zap.L().Warn("Observed refund delta smaller than amount sent",
			zap.String("tx_ref", txRef),
			zap.String("delta", delta.String()),
			zap.String("sent", sent.String()))
		return decimal.Zero, false
	}
	return cost, true
}

// Retain records a payment the platform keeps without refunding, such as dust
// below the refund cost. The signature is consumed so it cannot be replayed.
func (e *Engine) Retain(ctx context.Context, req Request) (string, error) {
	params := store.SaveMainTransactionParams{
		OperationType:    models.OperationMint,
		AssetType:        req.AssetType,
		Chain:            req.Chain,
		PaymentSignature: req.PaymentSignature,
		PaymentPubkey:    req.Recipient,
		PaymentAmount:    req.Paid,
		ExpenseAmount:    decimal.Zero,
		ExpenseSource:    models.ExpenseObserved,
		Rewards:          req.PriorRewards,
	}
	id, err := e.ledger.SaveMainTransaction(ctx, params)
	if err != nil {
		return "", fmt.Errorf("save retained payment: %w", err)
	}
	e.mirrorRecord(ctx, id, params, decimal.Zero)

	zap.L().Info("Retained unrefundable payment",
		zap.String("signature", req.PaymentSignature),
		zap.String("chain", req.Chain),
		zap.String("amount", req.Paid.String()),
		zap.String("record_id", id))
	return id, nil
}

func (e *Engine) persist(ctx context.Context, req Request, rewards []store.RewardParams, out *Outcome, logger *zap.Logger) {
	e.metrics.Refund(req.Chain, out.Refunded)

	expense := out.Expense
	if expense.GreaterThan(req.Paid) {
		expense = req.Paid
	}
	params := store.SaveMainTransactionParams{
		OperationType:    models.OperationMint,
		AssetType:        req.AssetType,
		Chain:            req.Chain,
		PaymentSignature: req.PaymentSignature,
		PaymentPubkey:    req.Recipient,
		PaymentAmount:    req.Paid,
		ExpenseAmount:    expense,
		ExpenseSource:    out.ExpenseSource,
		Rewards:          rewards,
	}

	id, err := e.ledger.SaveMainTransaction(ctx, params)
	if err != nil {
		logger.Error("Failed to persist refund record",
			zap.String("tx_ref", out.TxRef),
			zap.Bool("refunded", out.Refunded),
			zap.Error(err))
		if out.Err == nil {
			out.Err = fmt.Errorf("persist refund record: %w", err)
		}
		return
	}
	out.RecordID = id
	out.Expense = expense
	returned := decimal.Zero
	if out.Refunded {
		returned = out.AmountSent
	}
	e.mirrorRecord(ctx, id, params, returned)
}

func (e *Engine) mirrorRecord(ctx context.Context, id string, params store.SaveMainTransactionParams, returned decimal.Decimal) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.RecordOperation(ctx, id, params, returned); err != nil {
		zap.L().Warn("Ledger mirror failed", zap.String("record_id", id), zap.Error(err))
	}
}

func failedReward(estimate decimal.Decimal, err error) store.RewardParams {
	return store.RewardParams{
		Type:   models.RewardRefund,
		TxRef:  fmt.Sprintf("Refund failed (the expense amount is unknown, estimated: %s), error: %v", estimate.String(), err),
		Failed: true,
	}
}
