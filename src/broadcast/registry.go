package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"stock-pulse/src/logger"
	"stock-pulse/src/metrics"
	"stock-pulse/src/models"
)

// -----------------------------------------------------------------------------
// Disconnect reasons
// -----------------------------------------------------------------------------

const (
	ReasonSendError        = "send-error"
	ReasonHeartbeatTimeout = "heartbeat-timeout"
	ReasonServerShutdown   = "server-shutdown"
	ReasonClientClose      = "client-close"
)

// -----------------------------------------------------------------------------

// ConnectionRegistry owns the set of live connections. It is the only
// component holding Connection objects; the subscription index and rate
// limiter track ids only.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	index   *SubscriptionIndex
	limiter *RateLimiter
	stats   *Stats
	clock   clockwork.Clock
	logger  *logger.Logger

	sendBufferSize int
}

// -----------------------------------------------------------------------------

func NewConnectionRegistry(index *SubscriptionIndex, limiter *RateLimiter, stats *Stats, clock clockwork.Clock, sendBufferSize int, log *logger.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:          make(map[string]*Connection),
		index:          index,
		limiter:        limiter,
		stats:          stats,
		clock:          clock,
		logger:         log,
		sendBufferSize: sendBufferSize,
	}
}

// -----------------------------------------------------------------------------

// Connect registers a new client socket. The handshake acknowledgement
// (connection-status frame with the assigned id) is written synchronously
// before the writer pump starts; if that write fails the handle is discarded
// and nothing is registered.
func (r *ConnectionRegistry) Connect(ws *websocket.Conn, remoteAddr, userAgent string) (*Connection, error) {
	id := uuid.NewString()
	conn := newConnection(id, ws, r.clock, r.sendBufferSize, remoteAddr, userAgent)

	frame := models.MBroadcastMessage{
		Type:      models.MessageTypeConnStatus,
		Data:      models.MConnStatusPayload{ConnectionID: id, Status: "connected"},
		Timestamp: r.clock.Now().UnixMilli(),
	}
	payload, err := json.Marshal(frame)
	if err == nil {
		ws.SetWriteDeadline(r.clock.Now().Add(writeWait))
		err = ws.WriteMessage(websocket.TextMessage, payload)
	}
	if err != nil {
		ws.Close()
		return nil, &HandshakeError{ConnectionID: id, Cause: err}
	}

	if !conn.compareAndSwapState(StateConnecting, StateOpen) {
		ws.Close()
		return nil, ErrConnectionClosed
	}

	r.mu.Lock()
	r.conns[id] = conn
	r.mu.Unlock()

	conn.startWriter(func(err error) {
		r.logger.Warning("Write failed on connection %s: %v", id, err)
		r.Disconnect(id, ReasonSendError)
	})

	metrics.ActiveConnections.Inc()
	r.logger.Info("Connection %s opened (%s)", id, remoteAddr)
	return conn, nil
}

// -----------------------------------------------------------------------------

// Disconnect tears down a connection and purges its subscriptions and rate
// window. Idempotent: concurrent callers from the send-failure, timeout and
// shutdown paths are all safe, later callers observe a no-op.
func (r *ConnectionRegistry) Disconnect(id string, reason string) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.index.Purge(id)
	r.limiter.Forget(id)
	conn.close(reason)

	metrics.ActiveConnections.Dec()
	r.logger.Info("Connection %s closed (%s)", id, reason)
}

// -----------------------------------------------------------------------------

func (r *ConnectionRegistry) Get(id string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// -----------------------------------------------------------------------------

// All returns a snapshot of the live connections. Safe to iterate while
// connections come and go.
func (r *ConnectionRegistry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}

// -----------------------------------------------------------------------------

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// -----------------------------------------------------------------------------

// Send serializes and queues a frame for one connection. A failure (closed
// connection or a send buffer that will not drain) disconnects the offending
// connection immediately so the registry never holds a half-broken entry.
func (r *ConnectionRegistry) Send(id string, msg *models.MBroadcastMessage) error {
	conn := r.Get(id)
	if conn == nil {
		return ErrConnectionClosed
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := conn.Send(payload); err != nil {
		r.stats.errors.Add(1)
		metrics.SendErrors.Inc()
		r.Disconnect(id, ReasonSendError)
		return err
	}

	r.stats.messagesSent.Add(1)
	metrics.MessagesSent.Inc()
	return nil
}

// -----------------------------------------------------------------------------

// CloseAll disconnects every live connection, used at shutdown.
func (r *ConnectionRegistry) CloseAll(reason string) {
	for _, conn := range r.All() {
		r.Disconnect(conn.ID, reason)
	}
}
