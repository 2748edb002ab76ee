package broadcast

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"stock-pulse/src/logger"
	"stock-pulse/src/metrics"
)

// -----------------------------------------------------------------------------

// CleanupSweeper periodically evicts connections whose last heartbeat is
// older than the timeout and drops dangling subscription keys.
type CleanupSweeper struct {
	registry *ConnectionRegistry
	index    *SubscriptionIndex
	timeout  time.Duration
	interval time.Duration
	clock    clockwork.Clock
	logger   *logger.Logger
}

// -----------------------------------------------------------------------------

func NewCleanupSweeper(registry *ConnectionRegistry, index *SubscriptionIndex, timeout, interval time.Duration, clock clockwork.Clock, log *logger.Logger) *CleanupSweeper {
	return &CleanupSweeper{
		registry: registry,
		index:    index,
		timeout:  timeout,
		interval: interval,
		clock:    clock,
		logger:   log,
	}
}

// -----------------------------------------------------------------------------

// Run sweeps until ctx is cancelled.
func (cs *CleanupSweeper) Run(ctx context.Context) {
	cs.logger.Info("Cleanup loop started (interval %s, timeout %s)", cs.interval, cs.timeout)

	ticker := cs.clock.NewTicker(cs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cs.logger.Info("Cleanup loop stopped")
			return
		case <-ticker.Chan():
			cs.Sweep()
		}
	}
}

// -----------------------------------------------------------------------------

// Sweep runs one eviction pass.
func (cs *CleanupSweeper) Sweep() {
	now := cs.clock.Now()

	for _, conn := range cs.registry.All() {
		if conn.State() != StateOpen {
			continue
		}
		if now.Sub(conn.LastHeartbeat()) > cs.timeout {
			cs.logger.Warning("Connection %s missed heartbeats (last %s ago)", conn.ID, now.Sub(conn.LastHeartbeat()))
			metrics.HeartbeatTimeouts.Inc()
			cs.registry.Disconnect(conn.ID, ReasonHeartbeatTimeout)
		}
	}

	// Defensive: purge paths already keep the index consistent.
	if dropped := cs.index.DropEmptyKeys(); dropped > 0 {
		cs.logger.Warning("Dropped %d dangling subscription keys", dropped)
	}
}
