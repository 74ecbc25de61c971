package minter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/transport"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	httpClient, err := transport.NewHTTPClient(5 * time.Second)
	require.NoError(t, err)
	return NewClient(models.MinterConfig{
		Endpoints: map[string]string{"sol": srv.URL + "/solana/"},
		APIKey:    "k",
	}, httpClient)
}

func TestMint(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/solana/mint", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var p MintParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "owner1", p.Owner)
		assert.Equal(t, "https://arweave.net/meta", p.URI)
		assert.Len(t, p.Attributes, 1)

		_, _ = w.Write([]byte(`{"txRef":"mintSig","assetId":"mintAddr","onChainCost":"0.0112"}`))
	})

	res, err := c.Mint(context.Background(), MintParams{
		Chain:      "SOL",
		AssetType:  models.AssetNFT,
		Owner:      "owner1",
		URI:        "https://arweave.net/meta",
		Name:       "Cat",
		Attributes: []models.Attribute{{Type: "Color", Value: "Red"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "mintSig", res.TxRef)
	assert.Equal(t, "mintAddr", res.AssetID)
	assert.True(t, res.OnChainCost.Equal(decimal.RequireFromString("0.0112")))
}

func TestMint_Errors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient funds", http.StatusInternalServerError)
	})

	_, err := c.Mint(context.Background(), MintParams{Chain: "SOL"})
	assert.ErrorIs(t, err, ErrMintFailed)

	_, err = c.Mint(context.Background(), MintParams{Chain: "ETH"})
	assert.ErrorIs(t, err, ErrNoMinter)
}

func TestDeployContract(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/solana/deploy", r.URL.Path)
		var req deployRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "TKN", req.Symbol)
		assert.Equal(t, 6, *req.Decimals)
		_, _ = w.Write([]byte(`{"contractAddress":"mint111","txRef":"deploySig","onChainCost":"0.0015"}`))
	})

	decimals := 6
	dep, err := c.DeployContract(context.Background(), "sol", &models.TokenMetadata{Name: "Token", Symbol: "TKN", Decimals: &decimals}, "uri")
	require.NoError(t, err)
	assert.Equal(t, "mint111", dep.ContractAddress)
	assert.Equal(t, "deploySig", dep.TxRef)
}

func TestDeployContract_Incomplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"contractAddress":"mint111"}`))
	})

	_, err := c.DeployContract(context.Background(), "SOL", &models.TokenMetadata{Name: "T", Symbol: "T"}, "uri")
	assert.ErrorIs(t, err, ErrDeployFailed)
}
