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
	"encoding/json"
	"fmt"

	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/store"

	"github.com/shopspring/decimal"
)

// FeeQuoter prices a mint on several chains at once
type FeeQuoter interface {
	Quote(ctx context.Context, assetType models.AssetType, chains []string, payloadBytes int) (map[string]decimal.Decimal, error)
}

// QueryService provides the read and feedback operations exposed to clients
type QueryService struct {
	db        store.LedgerStore
	fees      FeeQuoter
	clientEnv json.RawMessage
}

func NewQueryService(db store.LedgerStore, fees FeeQuoter, clientEnv string) *QueryService {
	return &QueryService{
		db:        db,
		fees:      fees,
		clientEnv: json.RawMessage(clientEnv),
	}
}

func (s *QueryService) HealthCheck(ctx context.Context) error {
	_, err := s.db.IsSignatureUsed(ctx, "healthcheck")
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// ClientEnv returns the client environment blob, or an empty object when the
// configured value is not valid JSON.
func (s *QueryService) ClientEnv() json.RawMessage {
	if !json.Valid(s.clientEnv) {
		return json.RawMessage(`{}`)
	}
	return s.clientEnv
}
