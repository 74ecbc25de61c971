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

package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainportal-mint-go/internal/chain"
	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/refund"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultConfirmTimeout = 60 * time.Second

var (
	ErrPaymentUnconfirmed       = errors.New("payment unconfirmed")
	ErrPaymentTransactionFailed = errors.New("payment transaction failed")
	ErrWrongRecipient           = errors.New("payment sent to wrong recipient")
	ErrInsufficientPayment      = errors.New("insufficient payment")
)

// InsufficientPaymentError reports a payment below the required fee. Refund is
// set when the received amount was large enough to send back.
type InsufficientPaymentError struct {
	Required   decimal.Decimal
	Received   decimal.Decimal
	Refundable bool
	Refund     *refund.Outcome

	// RecordErr is set when an unrefundable payment could not be recorded.
	RecordErr error
}

// NothingReceived reports whether the platform gained no funds at all.
func (e *InsufficientPaymentError) NothingReceived() bool {
	return !e.Received.IsPositive()
}

func (e *InsufficientPaymentError) Error() string {
	if e.RecordErr != nil {
		return fmt.Sprintf("insufficient payment: received %s, required %s, unrefundable and not recorded: %v", e.Received, e.Required, e.RecordErr)
	}
	if !e.Refundable {
		return fmt.Sprintf("insufficient payment: received %s, required %s, unrefundable", e.Received, e.Required)
	}
	return fmt.Sprintf("insufficient payment: received %s, required %s", e.Received, e.Required)
}

func (e *InsufficientPaymentError) Unwrap() error { return ErrInsufficientPayment }

// Refunder compensates payments the verifier rejects after custody.
type Refunder interface {
	Refund(ctx context.Context, req refund.Request) refund.Outcome
	Retain(ctx context.Context, req refund.Request) (string, error)
}

// Result is a verified payment.
type Result struct {
	Sender   string
	Received decimal.Decimal
}

type Verifier struct {
	refunder Refunder
	chains   map[string]models.ChainConfig
}

func New(refunder Refunder, chains map[string]models.ChainConfig) *Verifier {
	return &Verifier{refunder: refunder, chains: chains}
}

func (v *Verifier) confirmTimeout(symbol string) time.Duration {
	if cfg, ok := v.chains[symbol]; ok && cfg.ConfirmTimeout > 0 {
		return cfg.ConfirmTimeout
	}
	return defaultConfirmTimeout
}

// Verify checks that signature is a confirmed transfer of at least required to
// the platform. A zero required amount means the fee is unknown and the
// payment is refunded. Insufficient payments are compensated here.
func (v *Verifier) Verify(ctx context.Context, conn chain.Connector, signature string, required decimal.Decimal, assetType models.AssetType) (*Result, error) {
	logger := zap.L().With(
		zap.String("signature", signature),
		zap.String("chain", conn.Symbol()),
		zap.String("stage", "payment"))

	timeout := v.confirmTimeout(conn.Symbol())
	confirmed, err := conn.Confirm(ctx, signature, timeout)
	if err != nil {
		logger.Warn("Payment confirmation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPaymentUnconfirmed, err)
	}
	if !confirmed {
		logger.Warn("Payment not confirmed in time", zap.Duration("timeout", timeout))
		return nil, fmt.Errorf("%w: not confirmed within %s", ErrPaymentUnconfirmed, timeout)
	}

	tx, err := conn.GetTransaction(ctx, signature)
	if err != nil {
		logger.Warn("Unable to read confirmed payment", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPaymentUnconfirmed, err)
	}
	if !tx.Success {
		logger.Warn("Payment transaction failed on chain", zap.String("tx_error", tx.Err))
		return nil, fmt.Errorf("%w: %s", ErrPaymentTransactionFailed, tx.Err)
	}

	if tx.Recipient != conn.PlatformAddress() {
		logger.Warn("Payment sent to wrong recipient",
			zap.String("recipient", tx.Recipient),
			zap.String("platform", conn.PlatformAddress()))
		return nil, fmt.Errorf("%w: %s", ErrWrongRecipient, tx.Recipient)
	}

	received, ok := conn.OwnBalanceDelta(ctx, signature)
	if !ok {
		logger.Warn("Platform balance delta unavailable, using transfer amount", zap.String("amount", tx.Amount.String()))
		received = tx.Amount
	}

	logger.Info("Payment observed",
		zap.String("sender", tx.Sender),
		zap.String("received", received.String()),
		zap.String("required", required.String()))

	if required.IsPositive() && received.GreaterThanOrEqual(required) {
		return &Result{Sender: tx.Sender, Received: received}, nil
	}

	insufficient := &InsufficientPaymentError{Required: required, Received: received}
	req := refund.Request{
		Chain:            conn.Symbol(),
		AssetType:        assetType,
		PaymentSignature: signature,
		Recipient:        tx.Sender,
		Paid:             received,
		Reason:           "insufficient payment",
	}

	if received.GreaterThan(conn.MinRefundCost()) {
		insufficient.Refundable = true
		out := v.refunder.Refund(ctx, req)
		insufficient.Refund = &out
		return nil, insufficient
	}

	logger.Warn("Payment too small to refund", zap.String("min_refund_cost", conn.MinRefundCost().String()))
	if received.IsPositive() {
		if _, err := v.refunder.Retain(ctx, req); err != nil {
			logger.Error("Failed to record unrefundable payment", zap.Error(err))
			insufficient.RecordErr = err
		}
	}
	return nil, insufficient
}
