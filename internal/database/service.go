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
	"fmt"
	"time"

	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

const defaultLockTTL = 24 * time.Hour

type Service struct {
	db      *sql.DB
	lockTTL time.Duration
	now     func() time.Time
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	// _txlock=immediate takes the write lock at BEGIN so lock acquisition
	// and ledger writes serialize instead of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := newServiceWithDb(db, cfg.LockTTL)
	if err := service.initSchema(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully", zap.Duration("lock_ttl", service.lockTTL))
	return service, nil
}

func newServiceWithDb(db *sql.DB, lockTTL time.Duration) *Service {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Service{
		db:      db,
		lockTTL: lockTTL,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema(ctx context.Context) error {
	schema := `
	-- One row per user-facing operation, never updated
	CREATE TABLE IF NOT EXISTS main_transactions (
		id TEXT PRIMARY KEY,
		operation_type TEXT NOT NULL CHECK (operation_type IN ('mint', 'bridge')),
		asset_type TEXT NOT NULL CHECK (asset_type IN ('NFT', 'Token')),
		chain TEXT NOT NULL,
		payment_signature TEXT NOT NULL,
		payment_pubkey TEXT NOT NULL,
		payment_amount TEXT NOT NULL,
		expense_amount TEXT NOT NULL,
		expense_source TEXT NOT NULL CHECK (expense_source IN ('observed', 'estimate')),
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_main_transactions_pubkey ON main_transactions(payment_pubkey, created_at);
	CREATE INDEX IF NOT EXISTS idx_main_transactions_expense_source ON main_transactions(expense_source, created_at);

	-- On-chain transactions caused by a main transaction, in order
	CREATE TABLE IF NOT EXISTS reward_transactions (
		id TEXT PRIMARY KEY,
		main_transaction_id TEXT NOT NULL REFERENCES main_transactions(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('mint', 'refund', 'metadataUpload', 'contractDeployment')),
		tx_ref TEXT NOT NULL,
		failed BOOLEAN NOT NULL DEFAULT 0,
		UNIQUE(main_transaction_id, seq)
	);

	-- Payment signatures that have been consumed into a main transaction
	CREATE TABLE IF NOT EXISTS used_signatures (
		signature TEXT PRIMARY KEY,
		main_transaction_id TEXT NOT NULL REFERENCES main_transactions(id),
		created_at TIMESTAMP NOT NULL
	);

	-- Signatures currently held by a running pipeline
	CREATE TABLE IF NOT EXISTS in_progress_locks (
		signature TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_in_progress_locks_created_at ON in_progress_locks(created_at);

	-- Quoted network fees, refreshed when stale
	CREATE TABLE IF NOT EXISTS minting_fees (
		asset_type TEXT NOT NULL,
		chain TEXT NOT NULL,
		fee TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (asset_type, chain)
	);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		rating INTEGER NOT NULL,
		feedback TEXT NOT NULL,
		after_use BOOLEAN NOT NULL,
		ip TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	-- Observed expense for records saved with an estimate
	CREATE TABLE IF NOT EXISTS expense_reconciliations (
		main_transaction_id TEXT PRIMARY KEY REFERENCES main_transactions(id),
		observed_expense TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
