package solana

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"chainportal-mint-go/internal/chain"
	"chainportal-mint-go/internal/models"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct {
	RPCClient
	mu       sync.Mutex
	statuses []rpc.ConfirmationStatusType
	calls    int
	rent     uint64
	rentErr  error
	lastSize uint64
}

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, _ bool, _ ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.calls++
	if idx < 0 || f.statuses[idx] == "" {
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
	}
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{{ConfirmationStatus: f.statuses[idx]}},
	}, nil
}

func (f *fakeRPC) GetMinimumBalanceForRentExemption(_ context.Context, dataSize uint64, _ rpc.CommitmentType) (uint64, error) {
	f.lastSize = dataSize
	return f.rent, f.rentErr
}

func newTestConnector(t *testing.T, client RPCClient, cfg models.ChainConfig) *Connector {
	t.Helper()
	platform := solana.NewWallet()
	cfg.Symbol = "SOL"
	cfg.PlatformAddress = platform.PublicKey().String()
	cfg.PlatformKey = platform.PrivateKey.String()
	c, err := newConnectorWithClient(cfg, client, http.DefaultClient)
	require.NoError(t, err)
	c.pollInterval = time.Millisecond
	return c
}

func testSignature() string {
	var sig solana.Signature
	sig[0] = 7
	return sig.String()
}

func TestConfirm_WaitsForConfirmedStatus(t *testing.T) {
	fake := &fakeRPC{statuses: []rpc.ConfirmationStatusType{"", rpc.ConfirmationStatusProcessed, rpc.ConfirmationStatusConfirmed}}
	c := newTestConnector(t, fake, models.ChainConfig{})

	ok, err := c.Confirm(context.Background(), testSignature(), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, fake.calls, 3)
}

func TestConfirm_Timeout(t *testing.T) {
	fake := &fakeRPC{statuses: []rpc.ConfirmationStatusType{rpc.ConfirmationStatusProcessed}}
	c := newTestConnector(t, fake, models.ChainConfig{})

	ok, err := c.Confirm(context.Background(), testSignature(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfirm_InvalidSignature(t *testing.T) {
	c := newTestConnector(t, &fakeRPC{}, models.ChainConfig{})

	_, err := c.Confirm(context.Background(), "not-a-signature", time.Second)
	assert.True(t, errors.Is(err, chain.ErrInvalidSignature))
}

func TestNetworkFee_NFT(t *testing.T) {
	fake := &fakeRPC{rent: 4_000_000}
	c := newTestConnector(t, fake, models.ChainConfig{})

	fee, err := c.NetworkFee(context.Background(), models.AssetNFT)
	require.NoError(t, err)
	assert.Equal(t, uint64(82+200+165), fake.lastSize)
	// 0.004 rent + 5 * 0.000005 tx fees
	assert.True(t, fee.Equal(decimal.RequireFromString("0.004025")), fee.String())
}

func TestNetworkFee_OracleFailure(t *testing.T) {
	fake := &fakeRPC{rentErr: errors.New("rpc down")}
	c := newTestConnector(t, fake, models.ChainConfig{})

	_, err := c.NetworkFee(context.Background(), models.AssetNFT)
	assert.Error(t, err)
}

func TestStorageFee(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/price/solana/2048", r.URL.Path)
		_, _ = w.Write([]byte("150000"))
	}))
	defer srv.Close()

	c := newTestConnector(t, &fakeRPC{}, models.ChainConfig{StoragePriceURL: srv.URL + "/price/solana/"})
	fee, err := c.StorageFee(context.Background(), 2048)
	require.NoError(t, err)
	assert.True(t, fee.Equal(decimal.RequireFromString("0.00015")), fee.String())

	zero, err := c.StorageFee(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestStorageFee_PerByteFallback(t *testing.T) {
	c := newTestConnector(t, &fakeRPC{}, models.ChainConfig{StoragePricePerByte: decimal.RequireFromString("0.00000001")})
	fee, err := c.StorageFee(context.Background(), 1000)
	require.NoError(t, err)
	assert.True(t, fee.Equal(decimal.RequireFromString("0.00001")), fee.String())
}

func TestMinRefundCost(t *testing.T) {
	c := newTestConnector(t, &fakeRPC{}, models.ChainConfig{})
	assert.True(t, c.MinRefundCost().Equal(decimal.RequireFromString("0.0000055")))

	est, err := c.EstimateTransferFee(context.Background())
	require.NoError(t, err)
	assert.True(t, est.Equal(decimal.RequireFromString("0.0000055")))
}

func TestAnalyzeBalances(t *testing.T) {
	keys := []string{"payer", "platform", "system"}
	pre := []uint64{1_000_000_000, 500, 1}
	post := []uint64{949_995_000, 50_000_500, 1}

	got := analyzeBalances(keys, pre, post, "platform")
	assert.Equal(t, "payer", got.feePayer)
	assert.Equal(t, "platform", got.recipient)
	assert.Equal(t, int64(50_000_000), got.received)
	assert.True(t, lamportsToSol(got.received).Equal(decimal.RequireFromString("0.05")))
}

func TestAnalyzeBalances_PlatformWinsOverLargerTransfer(t *testing.T) {
	keys := []string{"payer", "other", "platform"}
	pre := []uint64{2_000_000_000, 0, 500}
	post := []uint64{1_849_995_000, 100_000_000, 50_000_500}

	got := analyzeBalances(keys, pre, post, "platform")
	assert.Equal(t, "platform", got.recipient)
	assert.Equal(t, int64(50_000_000), got.received)

	got = analyzeBalances(keys, pre, post, "elsewhere")
	assert.Equal(t, "other", got.recipient)
	assert.Equal(t, int64(100_000_000), got.received)
}

func TestAnalyzeBalances_ShortMeta(t *testing.T) {
	got := analyzeBalances([]string{"payer", "x"}, []uint64{10}, []uint64{5, 20}, "platform")
	assert.Equal(t, "payer", got.feePayer)
	assert.Empty(t, got.recipient)
	assert.Zero(t, got.received)
}

func TestSolToLamports(t *testing.T) {
	assert.Equal(t, int64(40_000_000), solToLamports(decimal.RequireFromString("0.04")))
	assert.Equal(t, int64(1), solToLamports(decimal.RequireFromString("0.0000000019")))
}

func TestTransferNative_NoKey(t *testing.T) {
	platform := solana.NewWallet()
	c, err := newConnectorWithClient(models.ChainConfig{Symbol: "SOL", PlatformAddress: platform.PublicKey().String()}, &fakeRPC{}, nil)
	require.NoError(t, err)

	res := c.TransferNative(context.Background(), solana.NewWallet().PublicKey().String(), decimal.RequireFromString("0.01"))
	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, chain.ErrNoSigningKey))
}

func TestNewConnector_KeyMismatch(t *testing.T) {
	cfg := models.ChainConfig{
		Symbol:          "SOL",
		PlatformAddress: solana.NewWallet().PublicKey().String(),
		PlatformKey:     solana.NewWallet().PrivateKey.String(),
	}
	_, err := newConnectorWithClient(cfg, &fakeRPC{}, nil)
	assert.Error(t, err)
}
