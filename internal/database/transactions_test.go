package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	service := newServiceWithDb(db, 24*time.Hour)

	// Use the actual schema initialization
	if err := service.initSchema(context.Background()); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func mintParams(signature, pubkey string) store.SaveMainTransactionParams {
	return store.SaveMainTransactionParams{
		OperationType:    models.OperationMint,
		AssetType:        models.AssetNFT,
		Chain:            "SOL",
		PaymentSignature: signature,
		PaymentPubkey:    pubkey,
		PaymentAmount:    decimal.RequireFromString("0.05"),
		ExpenseAmount:    decimal.RequireFromString("0.0213"),
		ExpenseSource:    models.ExpenseObserved,
		Rewards: []store.RewardParams{
			{Type: models.RewardMetadataUpload, TxRef: "upload-sig"},
			{Type: models.RewardMint, TxRef: "mint-sig"},
		},
	}
}

func TestSaveMainTransaction_MarksSignatureUsed(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if err := service.TryLock(ctx, "sig1"); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}

	id, err := service.SaveMainTransaction(ctx, mintParams("sig1", "payer1"))
	if err != nil {
		t.Fatalf("SaveMainTransaction failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a main transaction id")
	}

	used, err := service.IsSignatureUsed(ctx, "sig1")
	if err != nil {
		t.Fatalf("IsSignatureUsed failed: %v", err)
	}
	if !used {
		t.Error("Expected signature to be marked used")
	}

	// Replaying a consumed signature is always a duplicate, never a lock conflict
	err = service.TryLock(ctx, "sig1")
	if !errors.Is(err, store.ErrDuplicateSignature) {
		t.Errorf("Expected ErrDuplicateSignature on replay, got %v", err)
	}
}

func TestSaveMainTransaction_Duplicate(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.SaveMainTransaction(ctx, mintParams("sig1", "payer1")); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	_, err := service.SaveMainTransaction(ctx, mintParams("sig1", "payer1"))
	if !errors.Is(err, store.ErrDuplicateSignature) {
		t.Fatalf("Expected ErrDuplicateSignature, got %v", err)
	}

	history, err := service.GetTransactionHistory(ctx, "payer1", 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected 1 record after duplicate save, got %d", len(history))
	}
}

func TestGetTransactionDetails(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	id, err := service.SaveMainTransaction(ctx, mintParams("sig1", "payer1"))
	if err != nil {
		t.Fatalf("SaveMainTransaction failed: %v", err)
	}

	details, err := service.GetTransactionDetails(ctx, id)
	if err != nil {
		t.Fatalf("GetTransactionDetails failed: %v", err)
	}
	if details.PaymentSignature != "sig1" {
		t.Errorf("Expected signature sig1, got %s", details.PaymentSignature)
	}
	if !details.PaymentAmount.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("Expected payment 0.05, got %s", details.PaymentAmount.String())
	}
	if details.ExpenseSource != models.ExpenseObserved {
		t.Errorf("Expected observed expense source, got %s", details.ExpenseSource)
	}
	if len(details.RewardTxs) != 2 {
		t.Fatalf("Expected 2 reward transactions, got %d", len(details.RewardTxs))
	}
	if details.RewardTxs[0].Type != models.RewardMetadataUpload || details.RewardTxs[1].Type != models.RewardMint {
		t.Errorf("Reward transactions out of order: %+v", details.RewardTxs)
	}

	_, err = service.GetTransactionDetails(ctx, "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetTransactionHistory_NewestFirst(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	service.now = func() time.Time { return base }
	if _, err := service.SaveMainTransaction(ctx, mintParams("older", "payer1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	service.now = func() time.Time { return base.Add(time.Hour) }
	if _, err := service.SaveMainTransaction(ctx, mintParams("newer", "payer1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := service.SaveMainTransaction(ctx, mintParams("other", "payer2")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	history, err := service.GetTransactionHistory(ctx, "payer1", 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 records for payer1, got %d", len(history))
	}
	if history[0].PaymentSignature != "newer" || history[1].PaymentSignature != "older" {
		t.Errorf("Expected newest first, got %s then %s", history[0].PaymentSignature, history[1].PaymentSignature)
	}
}

func TestRefundRecordWithFailedReward(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	params := store.SaveMainTransactionParams{
		OperationType:    models.OperationMint,
		AssetType:        models.AssetNFT,
		Chain:            "ETH",
		PaymentSignature: "0xabc",
		PaymentPubkey:    "0xpayer",
		PaymentAmount:    decimal.RequireFromString("0.06"),
		ExpenseAmount:    decimal.RequireFromString("0.0200273"),
		ExpenseSource:    models.ExpenseEstimate,
		Rewards: []store.RewardParams{
			{Type: models.RewardRefund, TxRef: "Refund failed (the expense amount is unknown), error: nonce too low", Failed: true},
		},
	}
	id, err := service.SaveMainTransaction(ctx, params)
	if err != nil {
		t.Fatalf("SaveMainTransaction failed: %v", err)
	}

	details, err := service.GetTransactionDetails(ctx, id)
	if err != nil {
		t.Fatalf("GetTransactionDetails failed: %v", err)
	}
	if len(details.RewardTxs) != 1 || !details.RewardTxs[0].Failed {
		t.Errorf("Expected one failed refund reward, got %+v", details.RewardTxs)
	}
}

func TestReconciliation(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	estimated := mintParams("sig-est", "payer1")
	estimated.ExpenseSource = models.ExpenseEstimate
	estId, err := service.SaveMainTransaction(ctx, estimated)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := service.SaveMainTransaction(ctx, mintParams("sig-obs", "payer1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	refunded := mintParams("sig-refund", "payer1")
	refunded.ExpenseSource = models.ExpenseEstimate
	refunded.Rewards = []store.RewardParams{{Type: models.RewardRefund, TxRef: "refund-sig"}}
	if _, err := service.SaveMainTransaction(ctx, refunded); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	pending, err := service.ListUnreconciled(ctx, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("ListUnreconciled failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Id != estId {
		t.Fatalf("Expected only the estimated mint record, got %+v", pending)
	}
	if len(pending[0].RewardTxs) != 2 {
		t.Errorf("Expected rewards attached, got %d", len(pending[0].RewardTxs))
	}

	observed := decimal.RequireFromString("0.0198")
	if err := service.RecordReconciliation(ctx, estId, observed); err != nil {
		t.Fatalf("RecordReconciliation failed: %v", err)
	}
	// Second call is ignored
	if err := service.RecordReconciliation(ctx, estId, decimal.RequireFromString("1")); err != nil {
		t.Fatalf("Repeated RecordReconciliation failed: %v", err)
	}

	pending, err = service.ListUnreconciled(ctx, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("ListUnreconciled failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected nothing left to reconcile, got %d", len(pending))
	}

	details, err := service.GetTransactionDetails(ctx, estId)
	if err != nil {
		t.Fatalf("GetTransactionDetails failed: %v", err)
	}
	if details.ReconciledExpense == nil || !details.ReconciledExpense.Equal(observed) {
		t.Errorf("Expected reconciled expense %s, got %v", observed, details.ReconciledExpense)
	}
	if !details.ExpenseAmount.Equal(decimal.RequireFromString("0.0213")) {
		t.Errorf("Original expense must stay untouched, got %s", details.ExpenseAmount)
	}
}

func TestFeeCache(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }

	if err := service.UpsertFee(ctx, models.AssetNFT, "SOL", decimal.RequireFromString("0.0125")); err != nil {
		t.Fatalf("UpsertFee failed: %v", err)
	}
	if err := service.UpsertFee(ctx, models.AssetNFT, "SOL", decimal.RequireFromString("0.0126")); err != nil {
		t.Fatalf("UpsertFee update failed: %v", err)
	}

	quotes, err := service.GetFreshFees(ctx, models.AssetNFT, []string{"SOL", "ETH"}, 12*time.Hour)
	if err != nil {
		t.Fatalf("GetFreshFees failed: %v", err)
	}
	if len(quotes) != 1 || !quotes[0].Fee.Equal(decimal.RequireFromString("0.0126")) {
		t.Fatalf("Expected one fresh SOL quote of 0.0126, got %+v", quotes)
	}

	service.now = func() time.Time { return base.Add(13 * time.Hour) }
	quotes, err = service.GetFreshFees(ctx, models.AssetNFT, []string{"SOL"}, 12*time.Hour)
	if err != nil {
		t.Fatalf("GetFreshFees failed: %v", err)
	}
	if len(quotes) != 0 {
		t.Errorf("Expected stale quote to be skipped, got %+v", quotes)
	}
}

func TestSaveFeedback(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	err := service.SaveFeedback(context.Background(), models.Feedback{Rating: 5, Text: "smooth", AfterUse: true, IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("SaveFeedback failed: %v", err)
	}

	var count int
	if err := service.db.QueryRow("SELECT COUNT(*) FROM feedback").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 feedback row, got %d", count)
	}
}
