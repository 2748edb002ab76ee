package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-pulse/src/models"
)

func TestRegistry_HandshakeFrame(t *testing.T) {
	h := newHarness(t, nil)
	_, id := h.dial() // dial asserts the connection-status frame

	conn := h.svc.Registry.Get(id)
	require.NotNil(t, conn)
	assert.Equal(t, StateOpen, conn.State())
	assert.Equal(t, 1, h.svc.Registry.Count())
}

func TestRegistry_DisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	_, id := h.dial()

	conn := h.svc.Registry.Get(id)
	require.NotNil(t, conn)

	h.svc.Registry.Disconnect(id, ReasonClientClose)
	h.svc.Registry.Disconnect(id, ReasonHeartbeatTimeout) // second caller observes a no-op

	assert.Nil(t, h.svc.Registry.Get(id))
	assert.Equal(t, StateClosed, conn.State())
	assert.Equal(t, ReasonClientClose, conn.CloseReason())
}

func TestRegistry_SendAfterDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	_, id := h.dial()

	h.svc.Index.Subscribe(id, []string{"AAPL"})
	h.svc.Registry.Disconnect(id, ReasonClientClose)

	// Subscriptions are purged with the connection
	assert.Empty(t, h.svc.Index.SubscribersFor("AAPL"))
	assert.Empty(t, h.svc.Index.Keys(id))

	err := h.svc.Registry.Send(id, &models.MBroadcastMessage{
		Type:      models.MessageTypePriceUpdate,
		Channel:   "AAPL",
		Timestamp: h.clock.Now().UnixMilli(),
	})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestRegistry_AllSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	_, id1 := h.dial()
	h.dial()
	h.dial()

	all := h.svc.Registry.All()
	assert.Len(t, all, 3)

	// Mutating the registry does not affect the snapshot
	h.svc.Registry.Disconnect(id1, ReasonClientClose)
	assert.Len(t, all, 3)
	assert.Equal(t, 2, h.svc.Registry.Count())
}

func TestRegistry_CloseAll(t *testing.T) {
	h := newHarness(t, nil)
	_, id1 := h.dial()
	_, id2 := h.dial()
	h.svc.Index.Subscribe(id1, []string{"AAPL"})
	h.svc.Index.Subscribe(id2, []string{CategoryAllSymbols})

	h.svc.Registry.CloseAll(ReasonServerShutdown)

	assert.Equal(t, 0, h.svc.Registry.Count())
	assert.Empty(t, h.svc.Index.SubscribersFor("AAPL"))
	assert.Empty(t, h.svc.Index.SubscribersFor(CategoryAllSymbols))
}

func TestConnection_SendBufferFull(t *testing.T) {
	h := newHarness(t, nil)
	_, id := h.dial()

	conn := h.svc.Registry.Get(id)
	require.NotNil(t, conn)

	// Fill the buffered channel faster than the writer can possibly drain
	// by bypassing the registry and never reading on the client.
	full := false
	for i := 0; i < 100000 && !full; i++ {
		if err := conn.Send([]byte(`{"type":"price-update"}`)); err != nil {
			assert.ErrorIs(t, err, ErrSendBufferFull)
			full = true
		}
	}
	assert.True(t, full, "send buffer never filled")
}

func TestConnection_HeartbeatTouch(t *testing.T) {
	h := newHarness(t, nil)
	_, id := h.dial()

	conn := h.svc.Registry.Get(id)
	require.NotNil(t, conn)

	before := conn.LastHeartbeat()
	h.clock.Advance(5 * time.Second)
	conn.TouchHeartbeat()

	assert.True(t, conn.LastHeartbeat().After(before))
	assert.Equal(t, h.clock.Now().UnixNano(), conn.LastHeartbeat().UnixNano())
}
