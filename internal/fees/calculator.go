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

package fees

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainportal-mint-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Precision is the number of decimals every quoted fee is rounded up to.
const Precision = 4

var (
	ErrFeeUnavailable = errors.New("fee unavailable")
	ErrUnknownChain   = errors.New("no fee table for chain")
)

// Oracle prices the chain-dependent parts of a mint.
type Oracle interface {
	NetworkFee(ctx context.Context, assetType models.AssetType) (decimal.Decimal, error)
	ContractDeployFee(ctx context.Context) (decimal.Decimal, error)
	StorageFee(ctx context.Context, payloadBytes int) (decimal.Decimal, error)
}

// Cache holds base fees (everything but storage) per asset type and chain.
type Cache interface {
	GetFreshFees(ctx context.Context, assetType models.AssetType, chains []string, maxAge time.Duration) ([]models.FeeQuote, error)
	UpsertFee(ctx context.Context, assetType models.AssetType, chain string, fee decimal.Decimal) error
}

// Breakdown is an itemized required fee. Total is rounded up, the parts are not.
type Breakdown struct {
	Chain     string
	AssetType models.AssetType
	Platform  decimal.Decimal
	Network   decimal.Decimal
	Deploy    decimal.Decimal
	Storage   decimal.Decimal
	Total     decimal.Decimal
}

// Calculator composes platform, network, contract deployment and storage fees
// from the per-chain fee table and live oracles.
type Calculator struct {
	chains      map[string]models.ChainConfig
	oracles     map[string]Oracle
	cache       Cache
	cacheMaxAge time.Duration
}

func NewCalculator(chains map[string]models.ChainConfig, oracles map[string]Oracle, cache Cache, cacheMaxAge time.Duration) *Calculator {
	c := &Calculator{
		chains:      make(map[string]models.ChainConfig, len(chains)),
		oracles:     make(map[string]Oracle, len(oracles)),
		cache:       cache,
		cacheMaxAge: cacheMaxAge,
	}
	for symbol, cfg := range chains {
		c.chains[strings.ToUpper(symbol)] = cfg
	}
	for symbol, oracle := range oracles {
		c.oracles[strings.ToUpper(symbol)] = oracle
	}
	return c
}

// RoundUp rounds toward positive infinity at Precision decimals.
func RoundUp(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundCeil(Precision)
}

// Required computes the fee a payment must cover for one mint request. It
// always queries the oracles; the cache only serves quotes.
func (c *Calculator) Required(ctx context.Context, chainSymbol string, assetType models.AssetType, payloadBytes int) (*Breakdown, error) {
	symbol := strings.ToUpper(chainSymbol)
	b, err := c.base(ctx, symbol, assetType)
	if err != nil {
		return nil, err
	}

	b.Storage, err = c.oracles[symbol].StorageFee(ctx, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: storage fee on %s: %v", ErrFeeUnavailable, symbol, err)
	}
	b.Total = RoundUp(b.Platform.Add(b.Network).Add(b.Deploy).Add(b.Storage))

	zap.L().Debug("Computed required fee",
		zap.String("chain", symbol),
		zap.String("asset_type", string(assetType)),
		zap.Int("payload_bytes", payloadBytes),
		zap.String("platform", b.Platform.String()),
		zap.String("network", b.Network.String()),
		zap.String("deploy", b.Deploy.String()),
		zap.String("storage", b.Storage.String()),
		zap.String("total", b.Total.String()))
	return b, nil
}

func (c *Calculator) base(ctx context.Context, symbol string, assetType models.AssetType) (*Breakdown, error) {
	cfg, ok := c.chains[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, symbol)
	}
	oracle, ok := c.oracles[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no oracle for %s", ErrFeeUnavailable, symbol)
	}
	if !assetType.Valid() {
		return nil, fmt.Errorf("%w: unknown asset type %q", ErrFeeUnavailable, assetType)
	}

	b := &Breakdown{Chain: symbol, AssetType: assetType, Platform: cfg.PlatformFee(assetType)}

	var err error
	b.Network, err = oracle.NetworkFee(ctx, assetType)
	if err != nil {
		return nil, fmt.Errorf("%w: network fee on %s: %v", ErrFeeUnavailable, symbol, err)
	}
	if assetType == models.AssetToken {
		b.Deploy, err = oracle.ContractDeployFee(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: contract deployment fee on %s: %v", ErrFeeUnavailable, symbol, err)
		}
	}
	return b, nil
}

// Quote returns the rounded fee per chain for the fee endpoint. Duplicate
// chains are collapsed, base fees come from the cache when fresh and the
// storage fee is priced per call.
func (c *Calculator) Quote(ctx context.Context, assetType models.AssetType, chains []string, payloadBytes int) (map[string]decimal.Decimal, error) {
	symbols := dedupe(chains)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no chains requested", ErrUnknownChain)
	}

	cached := make(map[string]decimal.Decimal, len(symbols))
	if c.cache != nil {
		quotes, err := c.cache.GetFreshFees(ctx, assetType, symbols, c.cacheMaxAge)
		if err != nil {
			zap.L().Warn("Fee cache lookup failed", zap.Error(err))
		}
		for _, q := range quotes {
			cached[strings.ToUpper(q.Chain)] = q.Fee
		}
	}

	result := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		baseFee, ok := cached[symbol]
		if !ok {
			b, err := c.base(ctx, symbol, assetType)
			if err != nil {
				return nil, err
			}
			baseFee = b.Platform.Add(b.Network).Add(b.Deploy)
			if c.cache != nil {
				if err := c.cache.UpsertFee(ctx, assetType, symbol, baseFee); err != nil {
					zap.L().Warn("Failed to cache fee", zap.String("chain", symbol), zap.Error(err))
				}
			}
		}

		oracle, ok := c.oracles[symbol]
		if !ok {
			return nil, fmt.Errorf("%w: no oracle for %s", ErrFeeUnavailable, symbol)
		}
		storage, err := oracle.StorageFee(ctx, payloadBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: storage fee on %s: %v", ErrFeeUnavailable, symbol, err)
		}
		result[symbol] = RoundUp(baseFee.Add(storage))
	}
	return result, nil
}

func dedupe(chains []string) []string {
	seen := make(map[string]struct{}, len(chains))
	out := make([]string, 0, len(chains))
	for _, ch := range chains {
		symbol := strings.ToUpper(strings.TrimSpace(ch))
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		out = append(out, symbol)
	}
	return out
}
