package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AssetType string

const (
	AssetNFT   AssetType = "NFT"
	AssetToken AssetType = "Token"
)

func (a AssetType) Valid() bool {
	return a == AssetNFT || a == AssetToken
}

type OperationType string

const (
	OperationMint   OperationType = "mint"
	OperationBridge OperationType = "bridge"
)

type RewardTxType string

const (
	RewardMint               RewardTxType = "mint"
	RewardRefund             RewardTxType = "refund"
	RewardMetadataUpload     RewardTxType = "metadataUpload"
	RewardContractDeployment RewardTxType = "contractDeployment"
)

// ExpenseSource tells whether a record's expense came from an observed
// balance delta or from a pre-computed estimate.
type ExpenseSource string

const (
	ExpenseObserved ExpenseSource = "observed"
	ExpenseEstimate ExpenseSource = "estimate"
)

// MainTransaction is one user-facing operation. Immutable once written.
type MainTransaction struct {
	Id               string          `db:"id" json:"id"`
	OperationType    OperationType   `db:"operation_type" json:"operationType"`
	AssetType        AssetType       `db:"asset_type" json:"assetType"`
	Chain            string          `db:"chain" json:"blockchain"`
	PaymentSignature string          `db:"payment_signature" json:"paymentSignature"`
	PaymentPubkey    string          `db:"payment_pubkey" json:"paymentPubKey"`
	PaymentAmount    decimal.Decimal `db:"payment_amount" json:"paymentAmount"`
	ExpenseAmount    decimal.Decimal `db:"expense_amount" json:"expenseAmount"`
	ExpenseSource    ExpenseSource   `db:"expense_source" json:"expenseSource"`
	CreatedAt        time.Time       `db:"created_at" json:"date"`
}

// RewardTransaction is one on-chain transaction caused by a MainTransaction.
// TxRef holds the transaction reference, or a failure description when the
// transaction never landed.
type RewardTransaction struct {
	Id                string       `db:"id" json:"-"`
	MainTransactionId string       `db:"main_transaction_id" json:"-"`
	Seq               int          `db:"seq" json:"-"`
	Type              RewardTxType `db:"type" json:"type"`
	TxRef             string       `db:"tx_ref" json:"txSignature"`
	Failed            bool         `db:"failed" json:"failed"`
}

// TransactionDetails is a main transaction with its ordered reward transactions
// and the reconciled expense, if a correction pass has run.
type TransactionDetails struct {
	MainTransaction
	RewardTxs         []RewardTransaction `json:"rewardTxs"`
	ReconciledExpense *decimal.Decimal    `json:"reconciledExpense,omitempty"`
}

// LockRecord marks a payment signature as being processed
type LockRecord struct {
	Signature string    `db:"signature"`
	CreatedAt time.Time `db:"created_at"`
}

// FeeQuote is a cached network fee for an asset type on a chain
type FeeQuote struct {
	AssetType AssetType       `db:"asset_type"`
	Chain     string          `db:"chain"`
	Fee       decimal.Decimal `db:"fee"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Feedback is a user rating of the service
type Feedback struct {
	Id        string    `db:"id" json:"-"`
	Rating    int       `db:"rating" json:"rating"`
	Text      string    `db:"feedback" json:"feedback"`
	AfterUse  bool      `db:"after_use" json:"afterUse"`
	IP        string    `db:"ip" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// ExpenseReconciliation is the observed expense computed after the fact for
// a record that was saved with an estimate.
type ExpenseReconciliation struct {
	MainTransactionId string          `db:"main_transaction_id"`
	ObservedExpense   decimal.Decimal `db:"observed_expense"`
	CreatedAt         time.Time       `db:"created_at"`
}
