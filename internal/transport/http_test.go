package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
	}))
	defer srv.Close()

	client, err := NewHTTPClient(5 * time.Second)
	require.NoError(t, err)

	var out map[string]string
	err = PostJSON(context.Background(), client, srv.URL+"/x", "tkn", map[string]string{"name": "cat"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "cat", out["echo"])
}

func TestDo_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(5 * time.Second)
	require.NoError(t, err)

	err = PostJSON(context.Background(), client, srv.URL, "", map[string]string{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	assert.Contains(t, err.Error(), "boom")
}

func TestGetText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(" 12345\n"))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(0)
	require.NoError(t, err)

	got, err := GetText(context.Background(), client, srv.URL+"/price/solana/100")
	require.NoError(t, err)
	assert.Equal(t, "12345", got)
}
