package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"stock-pulse/src/broadcast"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const maxMessageSize = 64 * 1024 // Inbound commands are small JSON frames

// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced by the HTTP middleware
	},
}

// -----------------------------------------------------------------------------
// handleWebSocket - upgrades the request and runs the read pump.
// The read pump acts as a watchdog for the connection: outbound frames go
// through the service's writer pump, inbound frames land here.
// -----------------------------------------------------------------------------

func (s *Server) handleWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Warning("WebSocket upgrade failed: %v", err)
		return
	}

	conn, err := s.Service.Connect(ws, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		s.Logger.Warning("WebSocket handshake failed: %v", err)
		return
	}

	s.readPump(conn, ws)
}

// -----------------------------------------------------------------------------

func (s *Server) readPump(conn *broadcast.Connection, ws *websocket.Conn) {
	defer s.Service.Disconnect(conn.ID, broadcast.ReasonClientClose)

	ws.SetReadLimit(maxMessageSize)

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.Logger.Info("WebSocket error on %s: %v", conn.ID, err)
			}
			return
		}
		s.Service.HandleMessage(conn.ID, message)
	}
}
