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

package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"chainportal-mint-go/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidSignature = errors.New("invalid transaction signature")
	ErrTxNotFound       = errors.New("transaction not found")
	ErrBroadcastFailed  = errors.New("failed to broadcast transaction")
	ErrNoSigningKey     = errors.New("platform signing key not configured")
)

// Connector is the per-chain boundary used by payment verification and refunds.
// Implementations must be safe for concurrent use by independent pipelines.
type Connector interface {
	Symbol() string
	PlatformAddress() string
	ValidateAddress(address string) error

	// Confirm waits until the transaction reaches the chain's confirmation
	// threshold or the timeout elapses. A transaction that settled with an
	// error reports true; GetTransaction exposes the failure.
	Confirm(ctx context.Context, signature string, timeout time.Duration) (bool, error)
	GetTransaction(ctx context.Context, signature string) (*models.ChainTransaction, error)
	TransferNative(ctx context.Context, to string, amount decimal.Decimal) models.TransferResult

	// OwnBalanceDelta is the change of the platform balance caused by one
	// transaction. ok is false when it cannot be determined.
	OwnBalanceDelta(ctx context.Context, signature string) (delta decimal.Decimal, ok bool)

	// EstimateTransferFee is the live network cost of one native transfer, without margin.
	EstimateTransferFee(ctx context.Context) (decimal.Decimal, error)
	MinRefundCost() decimal.Decimal

	FeeOracle
}

// FeeOracle prices the chain-dependent parts of a mint.
type FeeOracle interface {
	NetworkFee(ctx context.Context, assetType models.AssetType) (decimal.Decimal, error)
	ContractDeployFee(ctx context.Context) (decimal.Decimal, error)
	StorageFee(ctx context.Context, payloadBytes int) (decimal.Decimal, error)
}

// Registry selects a connector by chain symbol.
type Registry struct {
	connectors map[string]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[strings.ToUpper(c.Symbol())] = c
	}
	return r
}

func (r *Registry) Get(symbol string) (Connector, error) {
	c, ok := r.connectors[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, symbol)
	}
	return c, nil
}

// Symbols returns the registered chain symbols in sorted order.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.connectors))
	for s := range r.connectors {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// WithMargin inflates an estimated network cost, e.g. margin 0.3 adds 30%.
func WithMargin(estimate, margin decimal.Decimal) decimal.Decimal {
	return estimate.Mul(decimal.NewFromInt(1).Add(margin))
}
