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

// Package storetest provides an in-memory store.LedgerStore for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var _ store.LedgerStore = (*Memory)(nil)

type Memory struct {
	mu       sync.Mutex
	LockTTL  time.Duration
	Now      func() time.Time
	locks    map[string]time.Time
	used     map[string]string
	records  []models.TransactionDetails
	fees     map[string]models.FeeQuote
	feedback []models.Feedback

	// SaveErr, when set, fails every SaveMainTransaction call.
	SaveErr error
}

func NewMemory() *Memory {
	return &Memory{
		LockTTL: 24 * time.Hour,
		Now:     time.Now,
		locks:   map[string]time.Time{},
		used:    map[string]string{},
		fees:    map[string]models.FeeQuote{},
	}
}

func (m *Memory) IsSignatureUsed(_ context.Context, signature string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.used[signature]
	return ok, nil
}

func (m *Memory) TryLock(_ context.Context, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()
	if _, ok := m.used[signature]; ok {
		return store.ErrDuplicateSignature
	}
	if _, ok := m.locks[signature]; ok {
		return store.ErrLockHeld
	}
	m.locks[signature] = m.Now()
	return nil
}

func (m *Memory) ReleaseLock(_ context.Context, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, signature)
	return nil
}

func (m *Memory) PurgeExpiredLocks(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeLocked(), nil
}

func (m *Memory) purgeLocked() int64 {
	var n int64
	cutoff := m.Now().Add(-m.LockTTL)
	for sig, at := range m.locks {
		if at.Before(cutoff) {
			delete(m.locks, sig)
			n++
		}
	}
	return n
}

// Locked reports whether a live lock exists for signature.
func (m *Memory) Locked(signature string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[signature]
	return ok
}

func (m *Memory) SaveMainTransaction(_ context.Context, p store.SaveMainTransactionParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return "", m.SaveErr
	}
	if p.PaymentSignature != "" {
		if _, ok := m.used[p.PaymentSignature]; ok {
			return "", store.ErrDuplicateSignature
		}
	}

	rec := models.TransactionDetails{
		MainTransaction: models.MainTransaction{
			Id:               uuid.New().String(),
			OperationType:    p.OperationType,
			AssetType:        p.AssetType,
			Chain:            p.Chain,
			PaymentSignature: p.PaymentSignature,
			PaymentPubkey:    p.PaymentPubkey,
			PaymentAmount:    p.PaymentAmount,
			ExpenseAmount:    p.ExpenseAmount,
			ExpenseSource:    p.ExpenseSource,
			CreatedAt:        m.Now(),
		},
	}
	for i, r := range p.Rewards {
		rec.RewardTxs = append(rec.RewardTxs, models.RewardTransaction{
			Id:                uuid.New().String(),
			MainTransactionId: rec.Id,
			Seq:               i,
			Type:              r.Type,
			TxRef:             r.TxRef,
			Failed:            r.Failed,
		})
	}
	m.records = append(m.records, rec)
	if p.PaymentSignature != "" {
		m.used[p.PaymentSignature] = rec.Id
		delete(m.locks, p.PaymentSignature)
	}
	return rec.Id, nil
}

// Records returns a copy of every saved record in insertion order.
func (m *Memory) Records() []models.TransactionDetails {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TransactionDetails(nil), m.records...)
}

func (m *Memory) GetTransactionHistory(_ context.Context, pubkey string, limit, offset int) ([]models.TransactionDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TransactionDetails
	for _, r := range m.records {
		if r.PaymentPubkey == pubkey {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetTransactionDetails(_ context.Context, id string) (*models.TransactionDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].Id == id {
			rec := m.records[i]
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
}

func (m *Memory) ListUnreconciled(_ context.Context, olderThan time.Time, limit int) ([]models.TransactionDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TransactionDetails
	for _, r := range m.records {
		if r.ExpenseSource == models.ExpenseEstimate && r.ReconciledExpense == nil && r.CreatedAt.Before(olderThan) && !hasRefund(r) {
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func hasRefund(r models.TransactionDetails) bool {
	for _, rt := range r.RewardTxs {
		if rt.Type == models.RewardRefund {
			return true
		}
	}
	return false
}

func (m *Memory) RecordReconciliation(_ context.Context, id string, observed decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].Id == id {
			if m.records[i].ReconciledExpense != nil {
				return nil
			}
			v := observed
			m.records[i].ReconciledExpense = &v
			return nil
		}
	}
	return fmt.Errorf("%w: %s", store.ErrNotFound, id)
}

func (m *Memory) GetFreshFees(_ context.Context, assetType models.AssetType, chains []string, maxAge time.Duration) ([]models.FeeQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FeeQuote
	for _, ch := range chains {
		if q, ok := m.fees[string(assetType)+"/"+ch]; ok && m.Now().Sub(q.UpdatedAt) < maxAge {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *Memory) UpsertFee(_ context.Context, assetType models.AssetType, chain string, fee decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fees[string(assetType)+"/"+chain] = models.FeeQuote{AssetType: assetType, Chain: chain, Fee: fee, UpdatedAt: m.Now()}
	return nil
}

func (m *Memory) SaveFeedback(_ context.Context, feedback models.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, feedback)
	return nil
}

func (m *Memory) Feedback() []models.Feedback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Feedback(nil), m.feedback...)
}

func (m *Memory) Close() {}
