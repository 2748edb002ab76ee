package broadcast

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-pulse/src/models"
)

func TestService_SubscribeReplaysCachedPrice(t *testing.T) {
	h := newHarness(t, nil)

	h.svc.Cache.Put("7203", models.MPriceUpdate{Symbol: "7203", Price: 2480.5})

	client, _ := h.dial()
	require.NoError(t, client.WriteJSON(models.MClientCommand{
		Type:     "subscribe",
		Channels: []string{"7203"},
	}))

	// Replay arrives before any poll happens
	frame := readFrame(t, client, 2*time.Second)
	assert.Equal(t, models.MessageTypePriceUpdate, frame.Type)
	assert.Equal(t, "7203", frame.Channel)
	assert.Equal(t, 2480.5, frame.Data.(map[string]interface{})["price"])
}

func TestService_SubscribeWithoutCachedDataSendsNothing(t *testing.T) {
	h := newHarness(t, nil)
	client, id := h.dial()

	require.NoError(t, client.WriteJSON(models.MClientCommand{
		Type:     "subscribe",
		Channels: []string{"GHOST", CategoryAllSymbols},
	}))

	assert.Eventually(t, func() bool {
		return len(h.svc.Index.SubscribersFor("GHOST")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"GHOST", CategoryAllSymbols}, h.svc.Index.Keys(id))

	expectNoFrame(t, client, 200*time.Millisecond)
}

func TestService_SubscribeOnClosedConnection(t *testing.T) {
	h := newHarness(t, nil)
	_, id := h.dial()

	h.svc.Disconnect(id, ReasonClientClose)
	err := h.svc.Subscribe(id, []string{"AAPL"})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

// -----------------------------------------------------------------------------

func TestService_MalformedMessageGetsErrorFrame(t *testing.T) {
	h := newHarness(t, nil)
	client, id := h.dial()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("{not json")))

	frame := readFrame(t, client, 2*time.Second)
	assert.Equal(t, models.MessageTypeError, frame.Type)
	assert.Equal(t, "invalid-json", frame.Data.(map[string]interface{})["error_type"])

	// The connection survives its own bad input
	assert.NotNil(t, h.svc.Registry.Get(id))
}

func TestService_UnknownTypeGetsErrorFrame(t *testing.T) {
	h := newHarness(t, nil)
	client, _ := h.dial()

	require.NoError(t, client.WriteJSON(models.MClientCommand{Type: "dance"}))

	frame := readFrame(t, client, 2*time.Second)
	assert.Equal(t, models.MessageTypeError, frame.Type)
	assert.Equal(t, "unknown-type", frame.Data.(map[string]interface{})["error_type"])
}

func TestService_EmptySubscribeGetsErrorFrame(t *testing.T) {
	h := newHarness(t, nil)
	client, _ := h.dial()

	require.NoError(t, client.WriteJSON(models.MClientCommand{Type: "subscribe"}))

	frame := readFrame(t, client, 2*time.Second)
	assert.Equal(t, models.MessageTypeError, frame.Type)
	assert.Equal(t, "invalid-request", frame.Data.(map[string]interface{})["error_type"])
}

// -----------------------------------------------------------------------------

func TestService_PingGetsHeartbeatReply(t *testing.T) {
	h := newHarness(t, nil)
	client, id := h.dial()

	conn := h.svc.Registry.Get(id)
	require.NotNil(t, conn)
	h.clock.Advance(5 * time.Second)

	require.NoError(t, client.WriteJSON(models.MClientCommand{Type: "ping"}))

	frame := readFrame(t, client, 2*time.Second)
	assert.Equal(t, models.MessageTypeHeartbeat, frame.Type)
	assert.Equal(t, h.clock.Now().UnixNano(), conn.LastHeartbeat().UnixNano())
}

func TestService_HeartbeatMessageRefreshesLiveness(t *testing.T) {
	h := newHarness(t, nil)
	client, id := h.dial()

	conn := h.svc.Registry.Get(id)
	require.NotNil(t, conn)
	h.clock.Advance(5 * time.Second)

	require.NoError(t, client.WriteJSON(models.MClientCommand{Type: "heartbeat"}))

	assert.Eventually(t, func() bool {
		return conn.LastHeartbeat().UnixNano() == h.clock.Now().UnixNano()
	}, 2*time.Second, 10*time.Millisecond)
}

// -----------------------------------------------------------------------------

func TestService_UnsubscribeStopsDelivery(t *testing.T) {
	h := newHarness(t, nil)
	client, id := h.dial()

	h.svc.Index.Subscribe(id, []string{"AAPL"})
	require.NoError(t, client.WriteJSON(models.MClientCommand{
		Type:     "unsubscribe",
		Channels: []string{"AAPL"},
	}))

	assert.Eventually(t, func() bool {
		return len(h.svc.Index.SubscribersFor("AAPL")) == 0
	}, 2*time.Second, 10*time.Millisecond)

	h.svc.Scheduler.EnqueuePrice(models.MPriceUpdate{Symbol: "AAPL", Price: 9})
	h.svc.Scheduler.dispatch(h.svc.Scheduler.dequeue())
	expectNoFrame(t, client, 200*time.Millisecond)
}

// -----------------------------------------------------------------------------

func TestService_BroadcastMarketStatus(t *testing.T) {
	h := newHarness(t, nil)
	client, id := h.dial()

	h.svc.Index.Subscribe(id, []string{CategoryMarketStatus})

	h.svc.BroadcastMarketStatus(models.MMarketStatusPayload{Status: "closed"})
	h.svc.Scheduler.dispatch(h.svc.Scheduler.dequeue())

	frame := readFrame(t, client, 2*time.Second)
	assert.Equal(t, models.MessageTypeMarketStatus, frame.Type)
	assert.Equal(t, CategoryMarketStatus, frame.Channel)
	assert.Equal(t, "closed", frame.Data.(map[string]interface{})["status"])
	assert.NotZero(t, frame.Data.(map[string]interface{})["changed_at"])
}

// -----------------------------------------------------------------------------

func TestService_GetStats(t *testing.T) {
	h := newHarness(t, nil)
	_, id := h.dial()

	h.svc.Index.Subscribe(id, []string{"AAPL", CategoryAllSymbols})

	stats := h.svc.GetStats()
	assert.Equal(t, 1, stats.ConnectionCount)
	assert.Equal(t, 1, stats.SubscriptionCounts["AAPL"])
	assert.Equal(t, 1, stats.SubscriptionCounts[CategoryAllSymbols])
	assert.Equal(t, int64(0), stats.MessagesSent)
}

// -----------------------------------------------------------------------------

func TestService_StartStopTerminates(t *testing.T) {
	h := newHarness(t, nil)
	_, id := h.dial()

	h.svc.Start()

	done := make(chan struct{})
	go func() {
		h.svc.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not terminate")
	}

	// Shutdown closed the remaining connection
	assert.Equal(t, 0, h.svc.Registry.Count())
	conn := h.svc.Registry.Get(id)
	assert.Nil(t, conn)
}
