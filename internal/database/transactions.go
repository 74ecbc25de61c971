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
	"time"

	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SaveMainTransaction writes a main transaction, its reward transactions, the
// used-signature marker and the lock release as a single atomic unit.
func (s *Service) SaveMainTransaction(ctx context.Context, params store.SaveMainTransactionParams) (string, error) {
	zap.L().Info("Saving main transaction",
		zap.String("operation_type", string(params.OperationType)),
		zap.String("asset_type", string(params.AssetType)),
		zap.String("chain", params.Chain),
		zap.String("signature", params.PaymentSignature),
		zap.String("payment_amount", params.PaymentAmount.String()),
		zap.String("expense_amount", params.ExpenseAmount.String()),
		zap.Int("reward_count", len(params.Rewards)))

	if params.ExpenseSource == "" {
		params.ExpenseSource = models.ExpenseEstimate
	}

	// Start database transaction for atomicity
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Check for an earlier record consuming the same signature
	if params.PaymentSignature != "" {
		var existingId string
		err := tx.QueryRowContext(ctx, queryCheckUsedSignature, params.PaymentSignature).Scan(&existingId)
		if err == nil {
			zap.L().Warn("Duplicate payment signature detected, skipping",
				zap.String("signature", params.PaymentSignature),
				zap.String("existing_main_transaction_id", existingId))
			return "", fmt.Errorf("%w: %s", store.ErrDuplicateSignature, params.PaymentSignature)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("failed to check for duplicate signature: %w", err)
		}
	}

	mainTxId := uuid.New().String()
	now := s.now()

	_, err = tx.ExecContext(ctx, queryInsertMainTransaction,
		mainTxId, string(params.OperationType), string(params.AssetType), params.Chain,
		params.PaymentSignature, params.PaymentPubkey,
		params.PaymentAmount.String(), params.ExpenseAmount.String(), string(params.ExpenseSource), now)
	if err != nil {
		return "", fmt.Errorf("failed to insert main transaction: %w", err)
	}

	for i, reward := range params.Rewards {
		_, err = tx.ExecContext(ctx, queryInsertRewardTransaction,
			uuid.New().String(), mainTxId, i, string(reward.Type), reward.TxRef, reward.Failed)
		if err != nil {
			return "", fmt.Errorf("failed to insert reward transaction %d: %w", i, err)
		}
	}

	if params.PaymentSignature != "" {
		if _, err = tx.ExecContext(ctx, queryInsertUsedSignature, params.PaymentSignature, mainTxId, now); err != nil {
			return "", fmt.Errorf("failed to mark signature used: %w", err)
		}
		if _, err = tx.ExecContext(ctx, queryDeleteLock, params.PaymentSignature); err != nil {
			return "", fmt.Errorf("failed to release lock: %w", err)
		}
	}

	// Commit transaction
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Main transaction saved",
		zap.String("main_transaction_id", mainTxId),
		zap.String("signature", params.PaymentSignature))

	return mainTxId, nil
}

// GetTransactionHistory returns the operations paid for by a pubkey, newest first.
func (s *Service) GetTransactionHistory(ctx context.Context, pubkey string, limit, offset int) ([]models.TransactionDetails, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, queryGetMainTransactionsByPubkey, pubkey, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction history: %w", err)
	}
	history, err := scanMainTransactions(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachRewards(ctx, history); err != nil {
		return nil, err
	}
	return history, nil
}

// GetTransactionDetails returns one operation with its reward transactions.
func (s *Service) GetTransactionDetails(ctx context.Context, id string) (*models.TransactionDetails, error) {
	rows, err := s.db.QueryContext(ctx, queryGetMainTransactionById, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	details, err := scanMainTransactions(rows)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
	}
	if err := s.attachRewards(ctx, details); err != nil {
		return nil, err
	}
	return &details[0], nil
}

// ListUnreconciled returns records saved with an estimated expense that have
// no observed correction yet and are older than the given time. Refund records
// are excluded: their expense includes deductions no balance delta shows.
func (s *Service) ListUnreconciled(ctx context.Context, olderThan time.Time, limit int) ([]models.TransactionDetails, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUnreconciled, olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unreconciled transactions: %w", err)
	}
	pending, err := scanMainTransactions(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachRewards(ctx, pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// RecordReconciliation stores the observed expense of a record. A second call
// for the same record is ignored.
func (s *Service) RecordReconciliation(ctx context.Context, mainTransactionId string, observed decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, queryInsertReconciliation, mainTransactionId, observed.String(), s.now())
	if err != nil {
		return fmt.Errorf("failed to record reconciliation: %w", err)
	}
	zap.L().Info("Expense reconciled",
		zap.String("main_transaction_id", mainTransactionId),
		zap.String("observed_expense", observed.String()))
	return nil
}

func scanMainTransactions(rows *sql.Rows) ([]models.TransactionDetails, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Error("Failed to close rows", zap.Error(err))
		}
	}()

	var result []models.TransactionDetails
	for rows.Next() {
		var d models.TransactionDetails
		var paymentStr, expenseStr string
		var reconciled sql.NullString
		err := rows.Scan(&d.Id, &d.OperationType, &d.AssetType, &d.Chain, &d.PaymentSignature, &d.PaymentPubkey,
			&paymentStr, &expenseStr, &d.ExpenseSource, &d.CreatedAt, &reconciled)
		if err != nil {
			return nil, fmt.Errorf("failed to scan main transaction: %w", err)
		}
		if d.PaymentAmount, err = decimal.NewFromString(paymentStr); err != nil {
			return nil, fmt.Errorf("failed to parse payment amount '%s': %w", paymentStr, err)
		}
		if d.ExpenseAmount, err = decimal.NewFromString(expenseStr); err != nil {
			return nil, fmt.Errorf("failed to parse expense amount '%s': %w", expenseStr, err)
		}
		if reconciled.Valid {
			observed, err := decimal.NewFromString(reconciled.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse observed expense '%s': %w", reconciled.String, err)
			}
			d.ReconciledExpense = &observed
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating main transactions: %w", err)
	}
	return result, nil
}

func (s *Service) attachRewards(ctx context.Context, details []models.TransactionDetails) error {
	for i := range details {
		rewards, err := s.getRewardTransactions(ctx, details[i].Id)
		if err != nil {
			return err
		}
		details[i].RewardTxs = rewards
	}
	return nil
}

func (s *Service) getRewardTransactions(ctx context.Context, mainTxId string) ([]models.RewardTransaction, error) {
	rows, err := s.db.QueryContext(ctx, queryGetRewardTransactions, mainTxId)
	if err != nil {
		return nil, fmt.Errorf("failed to query reward transactions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Error("Failed to close rows", zap.Error(err))
		}
	}()

	var rewards []models.RewardTransaction
	for rows.Next() {
		var r models.RewardTransaction
		if err := rows.Scan(&r.Id, &r.MainTransactionId, &r.Seq, &r.Type, &r.TxRef, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan reward transaction: %w", err)
		}
		rewards = append(rewards, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reward transactions: %w", err)
	}
	return rewards, nil
}
