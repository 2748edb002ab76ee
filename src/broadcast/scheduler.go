package broadcast

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"stock-pulse/src/logger"
	"stock-pulse/src/metrics"
	"stock-pulse/src/models"
)

// -----------------------------------------------------------------------------

// queueItem is one pending broadcast. key is the coalescing key: a newer
// update with the same key replaces the pending one in place, keeping its
// queue position so per-key order is preserved.
type queueItem struct {
	key string
	msg *models.MBroadcastMessage
}

// -----------------------------------------------------------------------------

// BroadcastScheduler decouples update production from fan-out. A slow or
// stalled subscriber can never block ingestion of new prices: enqueue is
// non-blocking, the queue is bounded, and sends go to buffered per-connection
// channels.
type BroadcastScheduler struct {
	mu      sync.Mutex
	queue   []*queueItem
	pending map[string]*queueItem
	maxSize int
	notify  chan struct{}

	registry *ConnectionRegistry
	index    *SubscriptionIndex
	limiter  *RateLimiter
	stats    *Stats
	clock    clockwork.Clock
	logger   *logger.Logger
}

// -----------------------------------------------------------------------------

func NewBroadcastScheduler(registry *ConnectionRegistry, index *SubscriptionIndex, limiter *RateLimiter, stats *Stats, maxSize int, clock clockwork.Clock, log *logger.Logger) *BroadcastScheduler {
	return &BroadcastScheduler{
		pending:  make(map[string]*queueItem),
		maxSize:  maxSize,
		notify:   make(chan struct{}, 1),
		registry: registry,
		index:    index,
		limiter:  limiter,
		stats:    stats,
		clock:    clock,
		logger:   log,
	}
}

// -----------------------------------------------------------------------------

// EnqueuePrice queues a price update for fan-out, superseding any pending
// undelivered update for the same symbol.
func (bs *BroadcastScheduler) EnqueuePrice(update models.MPriceUpdate) {
	bs.enqueue(update.Symbol, &models.MBroadcastMessage{
		Type:          models.MessageTypePriceUpdate,
		Channel:       update.Symbol,
		Data:          update,
		Timestamp:     bs.clock.Now().UnixMilli(),
		CorrelationID: uuid.NewString(),
	})
}

// -----------------------------------------------------------------------------

// EnqueueMarketStatus queues a market-status category broadcast. Coalesced
// like price updates: only the newest pending status matters.
func (bs *BroadcastScheduler) EnqueueMarketStatus(payload models.MMarketStatusPayload) {
	bs.enqueue(CategoryMarketStatus, &models.MBroadcastMessage{
		Type:          models.MessageTypeMarketStatus,
		Channel:       CategoryMarketStatus,
		Data:          payload,
		Timestamp:     bs.clock.Now().UnixMilli(),
		CorrelationID: uuid.NewString(),
	})
}

// -----------------------------------------------------------------------------

// enqueue pushes a message without ever blocking the producer. A pending
// entry with the same key is replaced in place. When the queue is full the
// oldest pending entry is dropped: staleness is acceptable, unbounded
// queueing is not.
func (bs *BroadcastScheduler) enqueue(key string, msg *models.MBroadcastMessage) {
	bs.mu.Lock()

	if item, ok := bs.pending[key]; ok {
		item.msg = msg
		metrics.SupersededUpdates.Inc()
		bs.mu.Unlock()
		return
	}

	if len(bs.queue) >= bs.maxSize {
		oldest := bs.queue[0]
		bs.queue = bs.queue[1:]
		delete(bs.pending, oldest.key)
		bs.logger.Warning("Broadcast queue full, dropped oldest pending entry (%s)", oldest.key)
	}

	item := &queueItem{key: key, msg: msg}
	bs.queue = append(bs.queue, item)
	bs.pending[key] = item
	metrics.QueueDepth.Set(float64(len(bs.queue)))
	bs.mu.Unlock()

	select {
	case bs.notify <- struct{}{}:
	default:
	}
}

// -----------------------------------------------------------------------------

func (bs *BroadcastScheduler) dequeue() *models.MBroadcastMessage {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if len(bs.queue) == 0 {
		return nil
	}

	item := bs.queue[0]
	bs.queue = bs.queue[1:]
	delete(bs.pending, item.key)
	metrics.QueueDepth.Set(float64(len(bs.queue)))
	return item.msg
}

// -----------------------------------------------------------------------------

// QueueDepth returns the number of pending broadcasts.
func (bs *BroadcastScheduler) QueueDepth() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return len(bs.queue)
}

// -----------------------------------------------------------------------------

// Run is the single-consumer dispatch loop. It exits when ctx is cancelled.
func (bs *BroadcastScheduler) Run(ctx context.Context) {
	bs.logger.Info("Broadcast dispatch loop started")

	for {
		msg := bs.dequeue()
		if msg == nil {
			select {
			case <-ctx.Done():
				bs.logger.Info("Broadcast dispatch loop stopped")
				return
			case <-bs.notify:
				continue
			}
		}

		select {
		case <-ctx.Done():
			bs.logger.Info("Broadcast dispatch loop stopped")
			return
		default:
		}

		bs.dispatch(msg)
	}
}

// -----------------------------------------------------------------------------

// dispatch fans one message out to its subscriber set. Sends are issued
// concurrently and independently: one failing subscriber is disconnected by
// the registry without aborting delivery to the rest.
func (bs *BroadcastScheduler) dispatch(msg *models.MBroadcastMessage) {
	ids := bs.subscribersFor(msg)
	if len(ids) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		if !bs.limiter.Allow(id) {
			bs.stats.rateLimited.Add(1)
			metrics.RateLimitSuppressions.Inc()
			continue
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			bs.registry.Send(id, msg)
		}(id)
	}
	wg.Wait()
}

// -----------------------------------------------------------------------------

// subscribersFor resolves the target set for one message. Price updates go to
// the symbol's subscribers unioned with the all-symbols category; category
// broadcasts go to the category's subscribers only.
func (bs *BroadcastScheduler) subscribersFor(msg *models.MBroadcastMessage) []string {
	if msg.Type != models.MessageTypePriceUpdate {
		return bs.index.SubscribersFor(msg.Channel)
	}

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, id := range bs.index.SubscribersFor(msg.Channel) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range bs.index.SubscribersFor(CategoryAllSymbols) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
