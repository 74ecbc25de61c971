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
	"database/sql"
	"errors"
	"fmt"

	"chainportal-mint-go/internal/store"

	"go.uber.org/zap"
)

// IsSignatureUsed reports whether a payment signature was already consumed
// into a main transaction.
func (s *Service) IsSignatureUsed(ctx context.Context, signature string) (bool, error) {
	var mainTxId string
	err := s.db.QueryRowContext(ctx, queryCheckUsedSignature, signature).Scan(&mainTxId)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check used signature: %w", err)
	}
	return true, nil
}

// TryLock marks a signature as in progress. Expired locks are purged first,
// then the used-signature check and the insert run in the same transaction
// so two concurrent callers can never both succeed.
func (s *Service) TryLock(ctx context.Context, signature string) error {
	if signature == "" {
		return fmt.Errorf("signature cannot be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	purged, err := tx.ExecContext(ctx, queryPurgeExpiredLocks, now.Add(-s.lockTTL))
	if err != nil {
		return fmt.Errorf("failed to purge expired locks: %w", err)
	}
	if n, _ := purged.RowsAffected(); n > 0 {
		zap.L().Info("Purged expired in-progress locks", zap.Int64("count", n))
	}

	var mainTxId string
	err = tx.QueryRowContext(ctx, queryCheckUsedSignature, signature).Scan(&mainTxId)
	if err == nil {
		zap.L().Warn("Payment signature already used",
			zap.String("signature", signature),
			zap.String("main_transaction_id", mainTxId))
		return fmt.Errorf("%w: %s", store.ErrDuplicateSignature, signature)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check used signature: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryInsertLock, signature, now)
	if err != nil {
		return fmt.Errorf("failed to insert lock: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		zap.L().Warn("Payment signature is already being processed", zap.String("signature", signature))
		return fmt.Errorf("%w: %s", store.ErrLockHeld, signature)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Debug("In-progress lock acquired", zap.String("signature", signature))
	return nil
}

// ReleaseLock drops the in-progress marker for a signature. Used when a
// pipeline stops before any funds were confirmed received.
func (s *Service) ReleaseLock(ctx context.Context, signature string) error {
	if _, err := s.db.ExecContext(ctx, queryDeleteLock, signature); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// PurgeExpiredLocks deletes every lock older than the TTL.
func (s *Service) PurgeExpiredLocks(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryPurgeExpiredLocks, s.now().Add(-s.lockTTL))
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired locks: %w", err)
	}
	return result.RowsAffected()
}
