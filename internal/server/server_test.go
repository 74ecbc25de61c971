package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chainportal-mint-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type fakeQueries struct {
	mu        sync.Mutex
	healthErr error
	feeArgs   []string
	feeBytes  int
	feedback  []models.Feedback
}

func (f *fakeQueries) HealthCheck(context.Context) error { return f.healthErr }

func (f *fakeQueries) ClientEnv() json.RawMessage { return json.RawMessage(`{"network":"devnet"}`) }

func (f *fakeQueries) MintFees(_ context.Context, assetType models.AssetType, chains []string, payloadBytes int) *models.FeesResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeArgs = chains
	f.feeBytes = payloadBytes
	if assetType != models.AssetNFT {
		return &models.FeesResult{Error: "invalid asset type"}
	}
	return &models.FeesResult{Success: true, Fees: map[string]decimal.Decimal{"SOL": decimal.RequireFromString("0.0813")}}
}

func (f *fakeQueries) TransactionHistory(_ context.Context, pubkey string, _, _ int) *models.HistoryResult {
	if pubkey == "" {
		return &models.HistoryResult{Error: "pubkey is required"}
	}
	return &models.HistoryResult{Success: true, Transactions: []models.TransactionDetails{}}
}

func (f *fakeQueries) TransactionDetails(_ context.Context, id string) *models.DetailsResult {
	if id != "rec-1" {
		return &models.DetailsResult{Error: "transaction not found"}
	}
	return &models.DetailsResult{Success: true, Transaction: &models.TransactionDetails{MainTransaction: models.MainTransaction{Id: id}}}
}

func (f *fakeQueries) SubmitFeedback(_ context.Context, feedback models.Feedback) *models.FeedbackResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, feedback)
	return &models.FeedbackResult{Success: true}
}

type fakePipelines struct {
	mu       sync.Mutex
	requests []models.MintRequest
	events   []models.Event
}

func (f *fakePipelines) Start(req models.MintRequest) <-chan models.Event {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	ch := make(chan models.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func newTestServer(t *testing.T, cfg models.ServerConfig) (*httptest.Server, *fakeQueries, *fakePipelines) {
	t.Helper()
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 100
		cfg.RateBurst = 100
	}
	queries := &fakeQueries{}
	pipelines := &fakePipelines{events: []models.Event{
		{StepID: 1, Result: "Metadata validated"},
		{StepID: 2, Result: "Total price is 0.023 ETH"},
		{StepID: 6, Result: "rec-1", Done: true},
	}}
	ts := httptest.NewServer(New(cfg, queries, pipelines).Handler())
	t.Cleanup(ts.Close)
	return ts, queries, pipelines
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts, queries, _ := newTestServer(t, models.ServerConfig{})
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", nil))

	queries.healthErr = errors.New("db down")
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/healthz", nil))
}

func TestMetricsRoute(t *testing.T) {
	ts, _, _ := newTestServer(t, models.ServerConfig{})
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientEnvRoute(t *testing.T) {
	ts, _, _ := newTestServer(t, models.ServerConfig{})
	var env map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/cli-env", &env))
	assert.Equal(t, "devnet", env["network"])
}

func TestMintFeesRoute(t *testing.T) {
	ts, queries, _ := newTestServer(t, models.ServerConfig{})

	var result models.FeesResult
	status := getJSON(t, ts.URL+"/mint-fees?assetType=NFT&blockchainSymbol=ETH,SOL&metadataByteSize=123", &result)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"ETH", "SOL"}, queries.feeArgs)
	assert.Equal(t, 123, queries.feeBytes)

	status = getJSON(t, ts.URL+"/mint-fees?assetType=NFT&blockchainSymbol=SOL&metadataByteSize=lots", &result)
	assert.Equal(t, http.StatusBadRequest, status)

	status = getJSON(t, ts.URL+"/mint-fees?assetType=Bond&blockchainSymbol=SOL", &result)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid asset type", result.Error)
}

func TestHistoryAndDetailsRoutes(t *testing.T) {
	ts, _, _ := newTestServer(t, models.ServerConfig{})

	var history models.HistoryResult
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/all-tx-history?pubkey=payer", &history))
	assert.True(t, history.Success)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/all-tx-history", &history))

	var details models.DetailsResult
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/tx-details?txId=rec-1", &details))
	assert.Equal(t, "rec-1", details.Transaction.Id)
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/tx-details?txId=missing", &details))
}

func TestSubmitFeedbackRoute(t *testing.T) {
	ts, queries, _ := newTestServer(t, models.ServerConfig{})

	resp, err := http.Post(ts.URL+"/submit-feedback", "application/json",
		bytes.NewBufferString(`{"rating":4,"feedback":"nice","afterUse":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, queries.feedback, 1)
	assert.Equal(t, 4, queries.feedback[0].Rating)
	assert.True(t, queries.feedback[0].AfterUse)
	assert.Equal(t, "127.0.0.1", queries.feedback[0].IP)

	resp, err = http.Post(ts.URL+"/submit-feedback", "application/json", bytes.NewBufferString(`{not json`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitFeedbackRateLimited(t *testing.T) {
	ts, _, _ := newTestServer(t, models.ServerConfig{RateLimit: 0.001, RateBurst: 1})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		resp, err := http.Post(ts.URL+"/submit-feedback", "application/json", bytes.NewBufferString(`{"rating":5}`))
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func dialMint(t *testing.T, ts *httptest.Server) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/mint", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test complete") })
	return conn, ctx
}

func TestMintSocketStreamsEvents(t *testing.T) {
	ts, _, pipelines := newTestServer(t, models.ServerConfig{})
	conn, ctx := dialMint(t, ts)

	req := models.MintRequest{
		Chain:            "ETH",
		AssetType:        models.AssetNFT,
		PaymentSignature: "0xpay",
		NFT:              &models.NFTMetadata{Title: "Cat", Description: "A cat", Media: []byte("png")},
	}
	require.NoError(t, wsjson.Write(ctx, conn, req))

	var got []socketMessage
	for {
		var msg socketMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
		got = append(got, msg)
	}

	require.Len(t, got, 3)
	assert.Equal(t, statusEvent, got[0].Event)
	assert.Equal(t, 1, got[0].Data.StepID)
	assert.True(t, got[2].Data.Done)
	assert.Equal(t, "rec-1", got[2].Data.Result)

	pipelines.mu.Lock()
	defer pipelines.mu.Unlock()
	require.Len(t, pipelines.requests, 1)
	assert.Equal(t, []byte("png"), pipelines.requests[0].NFT.Media)
}

func TestMintSocketRejectsGarbage(t *testing.T) {
	ts, _, pipelines := newTestServer(t, models.ServerConfig{})
	conn, ctx := dialMint(t, ts)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusUnsupportedData, websocket.CloseStatus(err))
	assert.Empty(t, pipelines.requests)
}

func TestRateLimiterPerIP(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))

	now = now.Add(visitorIdleTTL + time.Minute)
	l.Allow("10.0.0.3")
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.visitors, 1)
}
