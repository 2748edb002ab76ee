package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"stock-pulse/src/logger"
	"stock-pulse/src/models"
)

// -----------------------------------------------------------------------------
// Shared test fixtures: a stub provider and a service harness with a real
// websocket pair over httptest. The fake clock is anchored at wall time so
// socket write deadlines stay in the future.
// -----------------------------------------------------------------------------

type stubProvider struct {
	mu sync.Mutex
	fn func(symbol string) (models.MPriceUpdate, error)
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) GetCurrentPrice(_ context.Context, symbol string) (models.MPriceUpdate, error) {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()

	if fn == nil {
		return models.MPriceUpdate{Symbol: symbol}, nil
	}
	return fn(symbol)
}

func (p *stubProvider) setFn(fn func(symbol string) (models.MPriceUpdate, error)) {
	p.mu.Lock()
	p.fn = fn
	p.mu.Unlock()
}

// -----------------------------------------------------------------------------

func testConfig() *models.MConfig {
	return &models.MConfig{
		Name:     "test",
		Host:     "127.0.0.1",
		Port:     9999,
		LogLevel: "ERROR",
		Network: models.MNetworkConfig{
			RequestTimeout:     5,
			ConcurrentRequests: 4,
		},
		DataSource: models.MDataSourceConfig{
			PollIntervalSeconds:       15,
			ClosedPollIntervalSeconds: 300,
			CooldownBaseSeconds:       30,
			CooldownCapSeconds:        900,
			DataRetentionDays:         7,
		},
		Broadcast: models.MBroadcastConfig{
			QueueSize:                256,
			SendBufferSize:           128,
			RateLimitWindowSeconds:   60,
			RateLimitBudget:          60,
			HeartbeatIntervalSeconds: 30,
			HeartbeatTimeoutSeconds:  90,
			SweepIntervalSeconds:     30,
			HistorySize:              400,
		},
	}
}

// -----------------------------------------------------------------------------

type harness struct {
	t     *testing.T
	svc   *Service
	ts    *httptest.Server
	clock *clockwork.FakeClock
}

func newHarness(t *testing.T, provider *stubProvider) *harness {
	t.Helper()

	if provider == nil {
		provider = &stubProvider{}
	}

	clock := clockwork.NewFakeClockAt(time.Now())
	svc := NewService(testConfig(), provider, nil, clock, logger.NewLogger("ERROR", "test"))

	up := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn, err := svc.Connect(ws, r.RemoteAddr, r.UserAgent())
		if err != nil {
			return
		}
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				svc.Disconnect(conn.ID, ReasonClientClose)
				return
			}
			svc.HandleMessage(conn.ID, msg)
		}
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &harness{t: t, svc: svc, ts: ts, clock: clock}
}

// -----------------------------------------------------------------------------

// dial opens a client websocket, consumes the connection-status handshake
// frame and returns the client side plus the server-assigned id.
func (h *harness) dial() (*websocket.Conn, string) {
	h.t.Helper()

	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { client.Close() })

	frame := readFrame(h.t, client, 2*time.Second)
	require.Equal(h.t, models.MessageTypeConnStatus, frame.Type)

	data, ok := frame.Data.(map[string]interface{})
	require.True(h.t, ok)
	id, ok := data["connection_id"].(string)
	require.True(h.t, ok)
	require.NotEmpty(h.t, id)

	return client, id
}

// -----------------------------------------------------------------------------

func readFrame(t *testing.T, client *websocket.Conn, timeout time.Duration) models.MBroadcastMessage {
	t.Helper()

	client.SetReadDeadline(time.Now().Add(timeout))
	var frame models.MBroadcastMessage
	require.NoError(t, client.ReadJSON(&frame))
	return frame
}

// expectNoFrame asserts nothing arrives within the wait.
func expectNoFrame(t *testing.T, client *websocket.Conn, wait time.Duration) {
	t.Helper()

	client.SetReadDeadline(time.Now().Add(wait))
	var frame models.MBroadcastMessage
	err := client.ReadJSON(&frame)
	require.Error(t, err, "unexpected frame: %+v", frame)
}
