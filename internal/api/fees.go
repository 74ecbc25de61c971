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


package api

import (
	"context"
	"errors"
	"strings"

	"chainportal-mint-go/internal/fees"
	"chainportal-mint-go/internal/models"

	"go.uber.org/zap"
)

// MintFees quotes the total fee of minting assetType on each of chains
func (s *QueryService) MintFees(ctx context.Context, assetType models.AssetType, chains []string, payloadBytes int) *models.FeesResult {
	if !assetType.Valid() {
		return &models.FeesResult{Success: false, Error: "invalid asset type"}
	}
	if payloadBytes < 0 {
		return &models.FeesResult{Success: false, Error: "invalid metadata byte size"}
	}

	var symbols []string
	for _, c := range chains {
		if c = strings.TrimSpace(c); c != "" {
			symbols = append(symbols, c)
		}
	}
	if len(symbols) == 0 {
		return &models.FeesResult{Success: false, Error: "at least one blockchain symbol is required"}
	}

	quote, err := s.fees.Quote(ctx, assetType, symbols, payloadBytes)
	if err != nil {
		zap.L().Error("Failed to quote mint fees",
			zap.String("asset_type", string(assetType)),
			zap.Strings("chains", symbols),
			zap.Int("payload_bytes", payloadBytes),
			zap.Error(err))
		if errors.Is(err, fees.ErrUnknownChain) {
			return &models.FeesResult{Success: false, Error: "unsupported blockchain"}
		}
		return &models.FeesResult{Success: false, Error: "failed to calculate fees"}
	}

	return &models.FeesResult{Success: true, Fees: quote}
}
