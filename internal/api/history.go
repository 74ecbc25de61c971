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

	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/store"

	"go.uber.org/zap"
)

// TransactionHistory returns paginated operations paid for by pubkey, newest first
func (s *QueryService) TransactionHistory(ctx context.Context, pubkey string, limit, offset int) *models.HistoryResult {
	if pubkey == "" {
		return &models.HistoryResult{Success: false, Error: "pubkey is required"}
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	transactions, err := s.db.GetTransactionHistory(ctx, pubkey, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("pubkey", pubkey),
			zap.Error(err))
		return &models.HistoryResult{Success: false, Error: "failed to retrieve transaction history"}
	}
	if transactions == nil {
		transactions = []models.TransactionDetails{}
	}

	return &models.HistoryResult{Success: true, Transactions: transactions}
}

// TransactionDetails returns one operation with its reward transactions
func (s *QueryService) TransactionDetails(ctx context.Context, id string) *models.DetailsResult {
	if id == "" {
		return &models.DetailsResult{Success: false, Error: "transaction id is required"}
	}

	tx, err := s.db.GetTransactionDetails(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &models.DetailsResult{Success: false, Error: "transaction not found"}
		}
		zap.L().Error("Failed to get transaction details", zap.String("id", id), zap.Error(err))
		return &models.DetailsResult{Success: false, Error: "failed to retrieve transaction details"}
	}

	return &models.DetailsResult{Success: true, Transaction: tx}
}
