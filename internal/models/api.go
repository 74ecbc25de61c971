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

package models

import (
	"github.com/shopspring/decimal"
)

// FeesResult is the per-chain fee quote returned to clients
type FeesResult struct {
	Success bool                       `json:"success"`
	Fees    map[string]decimal.Decimal `json:"fees,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

// HistoryResult lists all operations paid for by one pubkey
type HistoryResult struct {
	Success      bool                 `json:"success"`
	Transactions []TransactionDetails `json:"transactions,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// DetailsResult holds one operation with its reward transactions
type DetailsResult struct {
	Success     bool                `json:"success"`
	Transaction *TransactionDetails `json:"transaction,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// FeedbackResult represents the result of submitting feedback
type FeedbackResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
