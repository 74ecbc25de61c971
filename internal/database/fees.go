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

package database

import (
	"context"
	"fmt"
	"time"

	"chainportal-mint-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetFreshFees returns cached fee quotes for the given chains that were
// updated within maxAge.
func (s *Service) GetFreshFees(ctx context.Context, assetType models.AssetType, chains []string, maxAge time.Duration) ([]models.FeeQuote, error) {
	rows, err := s.db.QueryContext(ctx, queryGetFreshFees, string(assetType), s.now().Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("failed to query cached fees: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Error("Failed to close rows", zap.Error(err))
		}
	}()

	wanted := make(map[string]bool, len(chains))
	for _, c := range chains {
		wanted[c] = true
	}

	var quotes []models.FeeQuote
	for rows.Next() {
		var q models.FeeQuote
		var feeStr string
		if err := rows.Scan(&q.AssetType, &q.Chain, &feeStr, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fee quote: %w", err)
		}
		if !wanted[q.Chain] {
			continue
		}
		if q.Fee, err = decimal.NewFromString(feeStr); err != nil {
			return nil, fmt.Errorf("failed to parse cached fee '%s': %w", feeStr, err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fee quotes: %w", err)
	}
	return quotes, nil
}

// UpsertFee stores the latest fee quote for an asset type on a chain.
func (s *Service) UpsertFee(ctx context.Context, assetType models.AssetType, chain string, fee decimal.Decimal) error {
	if _, err := s.db.ExecContext(ctx, queryUpsertFee, string(assetType), chain, fee.String(), s.now()); err != nil {
		return fmt.Errorf("failed to upsert fee: %w", err)
	}
	return nil
}

// SaveFeedback stores a user rating.
func (s *Service) SaveFeedback(ctx context.Context, feedback models.Feedback) error {
	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx, queryInsertFeedback,
		id, feedback.Rating, feedback.Text, feedback.AfterUse, feedback.IP, s.now()); err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	zap.L().Info("Feedback saved", zap.String("id", id), zap.Int("rating", feedback.Rating))
	return nil
}
