package broadcast

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"stock-pulse/src/logger"
)

// -----------------------------------------------------------------------------

// HeartbeatMonitor pings every open connection on a fixed interval. Pong
// replies refresh the connection's last-heartbeat timestamp; connections that
// stop answering are reaped by the cleanup sweeper.
type HeartbeatMonitor struct {
	registry *ConnectionRegistry
	interval time.Duration
	clock    clockwork.Clock
	logger   *logger.Logger
}

// -----------------------------------------------------------------------------

func NewHeartbeatMonitor(registry *ConnectionRegistry, interval time.Duration, clock clockwork.Clock, log *logger.Logger) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		registry: registry,
		interval: interval,
		clock:    clock,
		logger:   log,
	}
}

// -----------------------------------------------------------------------------

// Run sends pings until ctx is cancelled.
func (hm *HeartbeatMonitor) Run(ctx context.Context) {
	hm.logger.Info("Heartbeat loop started (interval %s)", hm.interval)

	ticker := hm.clock.NewTicker(hm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hm.logger.Info("Heartbeat loop stopped")
			return
		case <-ticker.Chan():
			hm.pingAll()
		}
	}
}

// -----------------------------------------------------------------------------

// pingAll requests a ping frame on every open connection. The writer pump
// handles a failed ping exactly like a failed send: the connection is
// disconnected, nobody else is affected.
func (hm *HeartbeatMonitor) pingAll() {
	for _, conn := range hm.registry.All() {
		if conn.State() != StateOpen {
			continue
		}
		conn.Ping()
	}
}
