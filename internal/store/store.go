package store

import (
	"context"
	"errors"
	"time"

	"chainportal-mint-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateSignature = errors.New("payment signature already used")
	ErrLockHeld           = errors.New("payment signature is already being processed")
	ErrNotFound           = errors.New("record not found")
)

// SaveMainTransactionParams captures one finished user-facing operation and the
// on-chain transactions it caused. Rewards are stored in slice order.
type SaveMainTransactionParams struct {
	OperationType    models.OperationType
	AssetType        models.AssetType
	Chain            string
	PaymentSignature string
	PaymentPubkey    string
	PaymentAmount    decimal.Decimal
	ExpenseAmount    decimal.Decimal
	ExpenseSource    models.ExpenseSource
	Rewards          []RewardParams
}

// RewardParams describes one reward transaction. TxRef carries the failure
// description when Failed is set.
type RewardParams struct {
	Type   models.RewardTxType
	TxRef  string
	Failed bool
}

// LedgerStore defines the contract that every backend must satisfy.
type LedgerStore interface {
	// --- Idempotency ---
	IsSignatureUsed(ctx context.Context, signature string) (bool, error)
	TryLock(ctx context.Context, signature string) error
	ReleaseLock(ctx context.Context, signature string) error
	PurgeExpiredLocks(ctx context.Context) (int64, error)

	// --- Ledger ---
	SaveMainTransaction(ctx context.Context, params SaveMainTransactionParams) (string, error)
	GetTransactionHistory(ctx context.Context, pubkey string, limit, offset int) ([]models.TransactionDetails, error)
	GetTransactionDetails(ctx context.Context, id string) (*models.TransactionDetails, error)

	// --- Expense reconciliation ---
	ListUnreconciled(ctx context.Context, olderThan time.Time, limit int) ([]models.TransactionDetails, error)
	RecordReconciliation(ctx context.Context, mainTransactionId string, observed decimal.Decimal) error

	// --- Fee cache ---
	GetFreshFees(ctx context.Context, assetType models.AssetType, chains []string, maxAge time.Duration) ([]models.FeeQuote, error)
	UpsertFee(ctx context.Context, assetType models.AssetType, chain string, fee decimal.Decimal) error

	// --- Feedback ---
	SaveFeedback(ctx context.Context, feedback models.Feedback) error

	// --- Lifecycle ---
	Close()
}
