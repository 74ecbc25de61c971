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

const (
	// In-progress lock queries
	queryPurgeExpiredLocks = `
		DELETE FROM in_progress_locks WHERE created_at < ?`

	queryInsertLock = `
		INSERT INTO in_progress_locks (signature, created_at)
		VALUES (?, ?)
		ON CONFLICT(signature) DO NOTHING`

	queryDeleteLock = `
		DELETE FROM in_progress_locks WHERE signature = ?`

	queryCheckUsedSignature = `
		SELECT main_transaction_id FROM used_signatures WHERE signature = ?`

	queryInsertUsedSignature = `
		INSERT INTO used_signatures (signature, main_transaction_id, created_at)
		VALUES (?, ?, ?)`

	// Main transaction queries
	queryInsertMainTransaction = `
		INSERT INTO main_transactions (
			id, operation_type, asset_type, chain, payment_signature, payment_pubkey,
			payment_amount, expense_amount, expense_source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertRewardTransaction = `
		INSERT INTO reward_transactions (id, main_transaction_id, seq, type, tx_ref, failed)
		VALUES (?, ?, ?, ?, ?, ?)`

	mainTransactionColumns = `
		m.id, m.operation_type, m.asset_type, m.chain, m.payment_signature, m.payment_pubkey,
		m.payment_amount, m.expense_amount, m.expense_source, m.created_at, r.observed_expense`

	queryGetMainTransactionsByPubkey = `
		SELECT` + mainTransactionColumns + `
		FROM main_transactions m
		LEFT JOIN expense_reconciliations r ON r.main_transaction_id = m.id
		WHERE m.payment_pubkey = ?
		ORDER BY m.created_at DESC
		LIMIT ? OFFSET ?`

	queryGetMainTransactionById = `
		SELECT` + mainTransactionColumns + `
		FROM main_transactions m
		LEFT JOIN expense_reconciliations r ON r.main_transaction_id = m.id
		WHERE m.id = ?`

	queryGetUnreconciled = `
		SELECT` + mainTransactionColumns + `
		FROM main_transactions m
		LEFT JOIN expense_reconciliations r ON r.main_transaction_id = m.id
		WHERE m.expense_source = 'estimate' AND r.main_transaction_id IS NULL AND m.created_at < ?
		  AND NOT EXISTS (
			SELECT 1 FROM reward_transactions rt
			WHERE rt.main_transaction_id = m.id AND rt.type = 'refund'
		  )
		ORDER BY m.created_at
		LIMIT ?`

	queryGetRewardTransactions = `
		SELECT id, main_transaction_id, seq, type, tx_ref, failed
		FROM reward_transactions
		WHERE main_transaction_id = ?
		ORDER BY seq`

	queryInsertReconciliation = `
		INSERT INTO expense_reconciliations (main_transaction_id, observed_expense, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(main_transaction_id) DO NOTHING`

	// Fee cache queries
	queryUpsertFee = `
		INSERT INTO minting_fees (asset_type, chain, fee, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(asset_type, chain) DO UPDATE SET fee = excluded.fee, updated_at = excluded.updated_at`

	queryGetFreshFees = `
		SELECT asset_type, chain, fee, updated_at
		FROM minting_fees
		WHERE asset_type = ? AND updated_at > ?`

	// Feedback queries
	queryInsertFeedback = `
		INSERT INTO feedback (id, rating, feedback, after_use, ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
)
