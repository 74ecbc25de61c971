package verifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"chainportal-mint-go/internal/chain"
	"chainportal-mint-go/internal/chain/chaintest"
	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/refund"
	"chainportal-mint-go/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const platform = "PLATFORMxSOL111111111111111111111111111111"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestVerifier(t *testing.T) (*Verifier, *chaintest.Connector, *storetest.Memory) {
	t.Helper()
	conn := chaintest.New("SOL", platform)
	conn.MinRefund = d("0.0000055")
	conn.TransferFee = d("0.0000055")

	ledger := storetest.NewMemory()
	chains := map[string]models.ChainConfig{"SOL": {Symbol: "SOL", ConfirmTimeout: time.Second}}
	engine := refund.NewEngine(chain.NewRegistry(conn), chains, ledger, nil, nil, time.Second)
	return New(engine, chains), conn, ledger
}

func TestVerify_SufficientPayment(t *testing.T) {
	v, conn, ledger := newTestVerifier(t)
	conn.AddPayment("sigA", "payer", platform, d("0.05"))

	res, err := v.Verify(context.Background(), conn, "sigA", d("0.04"), models.AssetNFT)
	require.NoError(t, err)
	assert.Equal(t, "payer", res.Sender)
	assert.True(t, res.Received.Equal(d("0.05")))
	assert.Empty(t, ledger.Records())
	assert.Empty(t, conn.Transfers())
}

func TestVerify_ExactAmountIsSufficient(t *testing.T) {
	v, conn, _ := newTestVerifier(t)
	conn.AddPayment("sig", "payer", platform, d("0.0342"))

	_, err := v.Verify(context.Background(), conn, "sig", d("0.0342"), models.AssetNFT)
	assert.NoError(t, err)
}

func TestVerify_DustIsUnrefundable(t *testing.T) {
	v, conn, ledger := newTestVerifier(t)
	conn.AddPayment("sigB", "payer", platform, d("0.000005"))

	_, err := v.Verify(context.Background(), conn, "sigB", d("0.04"), models.AssetNFT)

	var insufficient *InsufficientPaymentError
	require.ErrorAs(t, err, &insufficient)
	assert.ErrorIs(t, err, ErrInsufficientPayment)
	assert.False(t, insufficient.Refundable)
	assert.Nil(t, insufficient.Refund)
	assert.Empty(t, conn.Transfers())

	records := ledger.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].ExpenseAmount.IsZero())
	used, _ := ledger.IsSignatureUsed(context.Background(), "sigB")
	assert.True(t, used)
}

func TestVerify_DustRecordFailureIsReported(t *testing.T) {
	v, conn, ledger := newTestVerifier(t)
	conn.AddPayment("sigB", "payer", platform, d("0.000005"))
	ledger.SaveErr = errors.New("disk full")

	_, err := v.Verify(context.Background(), conn, "sigB", d("0.04"), models.AssetNFT)

	var insufficient *InsufficientPaymentError
	require.ErrorAs(t, err, &insufficient)
	require.Error(t, insufficient.RecordErr)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, ledger.Records())
}

func TestVerify_NothingReceived(t *testing.T) {
	v, conn, ledger := newTestVerifier(t)
	conn.AddPayment("sigZ", "payer", platform, decimal.Zero)

	_, err := v.Verify(context.Background(), conn, "sigZ", d("0.04"), models.AssetNFT)

	var insufficient *InsufficientPaymentError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.NothingReceived())
	assert.NoError(t, insufficient.RecordErr)
	assert.Empty(t, ledger.Records())
	assert.Empty(t, conn.Transfers())
}

func TestVerify_ShortfallIsRefunded(t *testing.T) {
	v, conn, ledger := newTestVerifier(t)
	conn.AddPayment("sig", "payer", platform, d("0.0001"))

	_, err := v.Verify(context.Background(), conn, "sig", d("0.04"), models.AssetNFT)

	var insufficient *InsufficientPaymentError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Refundable)
	require.NotNil(t, insufficient.Refund)
	assert.True(t, insufficient.Refund.Refunded)

	transfers := conn.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "payer", transfers[0].To)
	assert.True(t, transfers[0].Amount.Equal(d("0.0001").Sub(d("0.00000715"))), "sent %s", transfers[0].Amount)
	require.Len(t, ledger.Records(), 1)
}

func TestVerify_TinyShortfallStillRejected(t *testing.T) {
	v, conn, _ := newTestVerifier(t)
	conn.AddPayment("sig", "payer", platform, d("0.0399"))

	_, err := v.Verify(context.Background(), conn, "sig", d("0.04"), models.AssetNFT)
	assert.ErrorIs(t, err, ErrInsufficientPayment)
}

func TestVerify_UnknownFeeRefundsEverything(t *testing.T) {
	v, conn, _ := newTestVerifier(t)
	conn.AddPayment("sig", "payer", platform, d("0.05"))

	_, err := v.Verify(context.Background(), conn, "sig", decimal.Zero, models.AssetNFT)

	var insufficient *InsufficientPaymentError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Refundable)
	require.Len(t, conn.Transfers(), 1)
}

func TestVerify_PreCustodyRefusals(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(c *chaintest.Connector)
		wantErr error
	}{
		{
			name:    "unconfirmed",
			setup:   func(c *chaintest.Connector) { c.Unconfirmed = true },
			wantErr: ErrPaymentUnconfirmed,
		},
		{
			name:    "confirm error",
			setup:   func(c *chaintest.Connector) { c.ConfirmErr = errors.New("rpc down") },
			wantErr: ErrPaymentUnconfirmed,
		},
		{
			name: "failed on chain",
			setup: func(c *chaintest.Connector) {
				c.Txs["sig"].Success = false
				c.Txs["sig"].Err = "InstructionError"
			},
			wantErr: ErrPaymentTransactionFailed,
		},
		{
			name:    "wrong recipient",
			setup:   func(c *chaintest.Connector) { c.Txs["sig"].Recipient = "someone-else" },
			wantErr: ErrWrongRecipient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, conn, ledger := newTestVerifier(t)
			conn.AddPayment("sig", "payer", platform, d("0.05"))
			tt.setup(conn)

			_, err := v.Verify(context.Background(), conn, "sig", d("0.04"), models.AssetNFT)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, conn.Transfers())
			assert.Empty(t, ledger.Records())
		})
	}
}

func TestVerify_DeltaFallbackToTransferAmount(t *testing.T) {
	v, conn, _ := newTestVerifier(t)
	conn.AddPayment("sig", "payer", platform, d("0.05"))
	delete(conn.Deltas, "sig")

	res, err := v.Verify(context.Background(), conn, "sig", d("0.04"), models.AssetNFT)
	require.NoError(t, err)
	assert.True(t, res.Received.Equal(d("0.05")))
}

func TestVerify_UsesObservedDelta(t *testing.T) {
	v, conn, _ := newTestVerifier(t)
	conn.AddPayment("sig", "payer", platform, d("0.05"))
	conn.SetDelta("sig", d("0.03"))

	_, err := v.Verify(context.Background(), conn, "sig", d("0.04"), models.AssetNFT)
	assert.ErrorIs(t, err, ErrInsufficientPayment)
}
