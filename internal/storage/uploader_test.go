package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUploader(t *testing.T, handler http.HandlerFunc) *Uploader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := transport.NewHTTPClient(5 * time.Second)
	require.NoError(t, err)
	return NewUploader(models.StorageConfig{BaseURL: srv.URL + "/", APIKey: "secret"}, client)
}

func TestUploadMedia(t *testing.T) {
	u := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "SOL", r.FormValue("blockchain"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "cat.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		assert.Equal(t, []byte{1, 2, 3}, data)

		_ = json.NewEncoder(w).Encode(Upload{URI: "https://arweave.net/abc", TxRef: "fundSig"})
	})

	got, err := u.UploadMedia(context.Background(), "SOL", []byte{1, 2, 3}, "cat.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://arweave.net/abc", got.URI)
	assert.Equal(t, "fundSig", got.TxRef)
}

func TestUploadMedia_Failures(t *testing.T) {
	u := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bundlr unavailable", http.StatusServiceUnavailable)
	})

	_, err := u.UploadMedia(context.Background(), "SOL", []byte{1}, "a.png", "")
	assert.ErrorIs(t, err, ErrUploadFailed)

	_, err = u.UploadMedia(context.Background(), "SOL", nil, "a.png", "")
	assert.ErrorIs(t, err, ErrUploadFailed)
}

func TestUploadJSON(t *testing.T) {
	u := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/json", r.URL.Path)
		var body struct {
			Blockchain string         `json:"blockchain"`
			Document   map[string]any `json:"document"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ETH", body.Blockchain)
		assert.Equal(t, "Cat", body.Document["name"])
		_ = json.NewEncoder(w).Encode(Upload{URI: "ipfs://meta"})
	})

	got, err := u.UploadJSON(context.Background(), "ETH", map[string]string{"name": "Cat"})
	require.NoError(t, err)
	assert.Equal(t, "ipfs://meta", got.URI)
	assert.Empty(t, got.TxRef)
}

func TestUploadJSON_MissingURI(t *testing.T) {
	u := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := u.UploadJSON(context.Background(), "ETH", map[string]string{})
	assert.ErrorIs(t, err, ErrUploadFailed)
}

func TestNewNFTDocument_OptionalFields(t *testing.T) {
	meta := &models.NFTMetadata{
		Title:             "Cat",
		Description:       "A cat",
		Attributes:        []models.Attribute{{Type: "Color", Value: "Red"}},
		Royalty:           5,
		CreationTimestamp: "2024-01-01",
	}

	raw, err := json.Marshal(NewNFTDocument(meta, "ipfs://img", true))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "ipfs://img", doc["image"])
	assert.Equal(t, "ipfs://img", doc["animation_url"])
	assert.Equal(t, []any{map[string]any{"trait_type": "Color", "value": "Red"}}, doc["attributes"])
	assert.Equal(t, map[string]any{"royalty": float64(5)}, doc["properties"])
	assert.NotContains(t, doc, "external_url")
	assert.NotContains(t, doc, "tags")
	assert.NotContains(t, doc, "creationTimestamp")
}
