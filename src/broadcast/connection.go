package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

// -----------------------------------------------------------------------------
// Connection State Machine
// -----------------------------------------------------------------------------

type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// -----------------------------------------------------------------------------

const (
	writeWait = 10 * time.Second
)

// -----------------------------------------------------------------------------

// Connection is one accepted client session. The registry is the sole owner;
// everything else refers to it by id.
type Connection struct {
	ID         string
	RemoteAddr string
	UserAgent  string
	OpenedAt   time.Time

	ws    *websocket.Conn
	clock clockwork.Clock

	state         atomic.Int32
	lastHeartbeat atomic.Int64 // unix nanos
	messagesSent  atomic.Int64
	errorCount    atomic.Int64

	send chan []byte
	ping chan struct{}
	done chan struct{}

	closeReason string
	stopOnce    sync.Once
}

// -----------------------------------------------------------------------------

func newConnection(id string, ws *websocket.Conn, clock clockwork.Clock, sendBufferSize int, remoteAddr, userAgent string) *Connection {
	c := &Connection{
		ID:         id,
		RemoteAddr: remoteAddr,
		UserAgent:  userAgent,
		OpenedAt:   clock.Now(),
		ws:         ws,
		clock:      clock,
		send:       make(chan []byte, sendBufferSize),
		ping:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	c.lastHeartbeat.Store(clock.Now().UnixNano())

	// Pong control frames count as heartbeats. The handler fires from the
	// read loop, so this is safe to install before the writer starts.
	ws.SetPongHandler(func(string) error {
		c.TouchHeartbeat()
		return nil
	})

	return c
}

// -----------------------------------------------------------------------------

func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// compareAndSwapState transitions the state machine atomically.
func (c *Connection) compareAndSwapState(from, to ConnState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// -----------------------------------------------------------------------------

// Send queues a serialized frame for the writer pump. Non-blocking: a full
// buffer means the client is not draining fast enough and the frame is
// rejected rather than stalling the caller.
func (c *Connection) Send(payload []byte) error {
	if c.State() != StateOpen {
		return ErrConnectionClosed
	}

	select {
	case c.send <- payload:
		c.messagesSent.Add(1)
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.errorCount.Add(1)
		return ErrSendBufferFull
	}
}

// -----------------------------------------------------------------------------

// Ping requests a websocket ping control frame. Collapses when one is
// already pending.
func (c *Connection) Ping() error {
	if c.State() != StateOpen {
		return ErrConnectionClosed
	}

	select {
	case c.ping <- struct{}{}:
	default:
	}
	return nil
}

// -----------------------------------------------------------------------------

// TouchHeartbeat records client liveness. Called on pong control frames and
// on JSON heartbeat/ping messages; nothing else mutates lastHeartbeat after
// creation.
func (c *Connection) TouchHeartbeat() {
	c.lastHeartbeat.Store(c.clock.Now().UnixNano())
}

func (c *Connection) LastHeartbeat() time.Time {
	return time.Unix(0, c.lastHeartbeat.Load())
}

// -----------------------------------------------------------------------------

func (c *Connection) MessagesSent() int64 {
	return c.messagesSent.Load()
}

func (c *Connection) ErrorCount() int64 {
	return c.errorCount.Load()
}

// -----------------------------------------------------------------------------

// startWriter runs the single writer pump for this connection. All frames go
// through here so the websocket never sees concurrent writes. onFailure is
// invoked at most once, after the connection has left the OPEN state.
func (c *Connection) startWriter(onFailure func(err error)) {
	go func() {
		for {
			select {
			case payload := <-c.send:
				c.ws.SetWriteDeadline(c.clock.Now().Add(writeWait))
				if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					c.errorCount.Add(1)
					if c.compareAndSwapState(StateOpen, StateClosing) {
						onFailure(err)
					}
					return
				}

			case <-c.ping:
				c.ws.SetWriteDeadline(c.clock.Now().Add(writeWait))
				if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.errorCount.Add(1)
					if c.compareAndSwapState(StateOpen, StateClosing) {
						onFailure(err)
					}
					return
				}

			case <-c.done:
				return
			}
		}
	}()
}

// -----------------------------------------------------------------------------

// close finalizes the connection. Idempotent; the reason of the first caller
// wins. A best-effort close frame is written before the socket is torn down
// so clients see a reason code instead of a silent hang.
func (c *Connection) close(reason string) {
	c.stopOnce.Do(func() {
		// Normal path: OPEN -> CLOSING. The writer pump may already have
		// moved us to CLOSING on a write error; either way we end CLOSED.
		c.compareAndSwapState(StateOpen, StateClosing)
		c.compareAndSwapState(StateConnecting, StateClosing)

		c.closeReason = reason
		close(c.done)

		c.ws.SetWriteDeadline(c.clock.Now().Add(writeWait))
		c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
		c.ws.Close()

		c.state.Store(int32(StateClosed))
	})
}

// CloseReason returns the reason recorded when the connection was torn down.
func (c *Connection) CloseReason() string {
	return c.closeReason
}
