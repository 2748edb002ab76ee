package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-pulse/src/logger"
	"stock-pulse/src/models"
)

// -----------------------------------------------------------------------------

func testNetConfig(retries int) *models.MConfig {
	return &models.MConfig{
		Network: models.MNetworkConfig{
			RequestTimeout:     5,
			MaxRetries:         retries,
			ConcurrentRequests: 2,
		},
	}
}

// -----------------------------------------------------------------------------

func TestNetworkManager_GetAppendsParams(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	nm := NewAsyncNetworkManager(testNetConfig(0), logger.NewLogger("ERROR", "test"))
	body, err := nm.Get(context.Background(), ts.URL, map[string]string{"interval": "1m", "range": "1d"})

	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Contains(t, gotQuery, "interval=1m")
	assert.Contains(t, gotQuery, "range=1d")
}

func TestNetworkManager_SetsUserAgent(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	cfg := testNetConfig(0)
	cfg.Network.UserAgent = "stock-pulse-test/1.0"
	nm := NewAsyncNetworkManager(cfg, logger.NewLogger("ERROR", "test"))

	_, err := nm.Get(context.Background(), ts.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "stock-pulse-test/1.0", gotUA)
}

func TestNetworkManager_RetriesOnBlockedStatus(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer ts.Close()

	nm := NewAsyncNetworkManager(testNetConfig(1), logger.NewLogger("ERROR", "test"))
	body, err := nm.Get(context.Background(), ts.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, "recovered", string(body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestNetworkManager_ExhaustsRetries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	nm := NewAsyncNetworkManager(testNetConfig(0), logger.NewLogger("ERROR", "test"))
	_, err := nm.Get(context.Background(), ts.URL, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestNetworkManager_ContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	nm := NewAsyncNetworkManager(testNetConfig(3), logger.NewLogger("ERROR", "test"))
	_, err := nm.Get(ctx, ts.URL, nil)
	require.ErrorIs(t, err, context.Canceled)
}
