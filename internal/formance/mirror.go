package formance

import (
	"context"
	"fmt"
	"strings"

	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/refund"
	"chainportal-mint-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Mirror must satisfy refund.Mirror.
var _ refund.Mirror = (*Mirror)(nil)

// ---------------------------------------------------------------------------
// Numscript fragments. An operation is always one Formance transaction:
// the payment in, then the expense and the refund out when they are non-zero.
// ---------------------------------------------------------------------------

const numscriptPaymentVars = `  asset $asset
  number $payment
  account $payer
  account $chain
  string $record_id
  string $payment_signature
  string $operation_type
  string $asset_type
  string $expense_source
`

const numscriptPayment = `send [$asset $payment] (
  source = @users:$payer allowing unbounded overdraft
  destination = @platform:$chain:treasury
)
`

const numscriptExpense = `send [$asset $expense] (
  source = @platform:$chain:treasury allowing unbounded overdraft
  destination = @platform:$chain:expenses
)
`

const numscriptRefund = `send [$asset $returned] (
  source = @platform:$chain:treasury allowing unbounded overdraft
  destination = @users:$payer
)
`

const numscriptMeta = `set_tx_meta("event_type", "operation_recorded")
set_tx_meta("record_id", $record_id)
set_tx_meta("payment_signature", $payment_signature)
set_tx_meta("operation_type", $operation_type)
set_tx_meta("asset_type", $asset_type)
set_tx_meta("expense_source", $expense_source)
`

// buildOperationScript assembles the Numscript for one operation. Zero legs
// are left out together with their variables.
func buildOperationScript(withExpense, withRefund bool) string {
	var b strings.Builder
	b.WriteString("vars {\n")
	b.WriteString(numscriptPaymentVars)
	if withExpense {
		b.WriteString("  number $expense\n")
	}
	if withRefund {
		b.WriteString("  number $returned\n")
	}
	b.WriteString("}\n\n")
	b.WriteString(numscriptPayment)
	if withExpense {
		b.WriteString("\n" + numscriptExpense)
	}
	if withRefund {
		b.WriteString("\n" + numscriptRefund)
	}
	b.WriteString("\n" + numscriptMeta)
	return b.String()
}

// RecordOperation posts a persisted operation. The record id is the
// transaction reference, so replaying the same record is a no-op.
func (m *Mirror) RecordOperation(ctx context.Context, id string, params store.SaveMainTransactionParams, returned decimal.Decimal) error {
	if id == "" {
		return fmt.Errorf("record id is required")
	}

	symbol := strings.ToUpper(params.Chain)
	withExpense := params.ExpenseAmount.IsPositive()
	withRefund := returned.IsPositive()

	vars := map[string]string{
		"asset":             formanceAsset(symbol),
		"payment":           smallestUnit(params.PaymentAmount, symbol),
		"payer":             params.PaymentPubkey,
		"chain":             chainSegment(symbol),
		"record_id":         id,
		"payment_signature": params.PaymentSignature,
		"operation_type":    string(params.OperationType),
		"asset_type":        string(params.AssetType),
		"expense_source":    string(params.ExpenseSource),
	}
	if withExpense {
		vars["expense"] = smallestUnit(params.ExpenseAmount, symbol)
	}
	if withRefund {
		vars["returned"] = smallestUnit(returned, symbol)
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(id),
		Script: &shared.V2PostTransactionScript{
			Plain: buildOperationScript(withExpense, withRefund),
			Vars:  vars,
		},
	}
	if pc := models.GetPipelineContext(ctx); pc != nil && pc.PipelineId != "" {
		postTx.Metadata = map[string]string{"pipeline_id": pc.PipelineId}
	}

	err := m.api.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            m.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil // idempotent
		}
		return fmt.Errorf("error recording operation %s: %w", id, err)
	}

	zap.L().Info("Operation mirrored in Formance",
		zap.String("record_id", id),
		zap.String("chain", symbol),
		zap.String("payment", params.PaymentAmount.String()),
		zap.String("expense", params.ExpenseAmount.String()),
		zap.String("returned", returned.String()))
	return nil
}
