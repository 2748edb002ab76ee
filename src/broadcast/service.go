package broadcast

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"stock-pulse/src/interfaces"
	"stock-pulse/src/logger"
	"stock-pulse/src/models"
	"stock-pulse/src/utils"
)

// -----------------------------------------------------------------------------

// Service is the real-time broadcast subsystem: one explicit instance owning
// the registry, subscription index, rate limiter, price cache and the four
// background loops (dispatch, heartbeat, cleanup, poll). Start/Stop bound
// every goroutine it creates; tests can run several isolated instances.
type Service struct {
	cfg    *models.MConfig
	clock  clockwork.Clock
	logger *logger.Logger

	Registry  *ConnectionRegistry
	Index     *SubscriptionIndex
	Limiter   *RateLimiter
	Cache     *PriceCache
	Scheduler *BroadcastScheduler
	Heartbeat *HeartbeatMonitor
	Sweeper   *CleanupSweeper
	Poller    *UpdatePoller

	stats     *Stats
	db        interfaces.IDatabase
	startedAt time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// -----------------------------------------------------------------------------

// NewService wires the broadcast components together. db may be nil (no
// persistence, no cache warm).
func NewService(cfg *models.MConfig, provider interfaces.IStockDataProvider, db interfaces.IDatabase, clock clockwork.Clock, log *logger.Logger) *Service {
	stats := NewStats()
	index := NewSubscriptionIndex()
	limiter := NewRateLimiter(
		time.Duration(cfg.Broadcast.RateLimitWindowSeconds)*time.Second,
		cfg.Broadcast.RateLimitBudget,
		clock,
	)
	registry := NewConnectionRegistry(index, limiter, stats, clock, cfg.Broadcast.SendBufferSize, log.Named("registry"))
	cache := NewPriceCache(cfg.Broadcast.HistorySize)
	scheduler := NewBroadcastScheduler(registry, index, limiter, stats, cfg.Broadcast.QueueSize, clock, log.Named("scheduler"))
	heartbeat := NewHeartbeatMonitor(registry,
		time.Duration(cfg.Broadcast.HeartbeatIntervalSeconds)*time.Second, clock, log.Named("heartbeat"))
	sweeper := NewCleanupSweeper(registry, index,
		time.Duration(cfg.Broadcast.HeartbeatTimeoutSeconds)*time.Second,
		time.Duration(cfg.Broadcast.SweepIntervalSeconds)*time.Second, clock, log.Named("sweeper"))
	market := utils.NewMarketScheduler(cfg.DataSource.Symbols, log.Named("market"))
	poller := NewUpdatePoller(provider, cache, scheduler, index, db, market, stats, cfg, clock, log.Named("poller"))

	return &Service{
		cfg:       cfg,
		clock:     clock,
		logger:    log,
		Registry:  registry,
		Index:     index,
		Limiter:   limiter,
		Cache:     cache,
		Scheduler: scheduler,
		Heartbeat: heartbeat,
		Sweeper:   sweeper,
		Poller:    poller,
		stats:     stats,
		db:        db,
	}
}

// -----------------------------------------------------------------------------

// Start warms the price cache from storage and launches the background loops.
func (s *Service) Start() {
	if s.db != nil {
		if latest, err := s.db.LoadLatestPrices(); err != nil {
			s.logger.Warning("Cache warm from storage failed: %v", err)
		} else if len(latest) > 0 {
			s.Cache.Warm(latest)
			s.logger.Info("Warmed price cache with %d symbols from storage", len(latest))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.startedAt = s.clock.Now()

	for _, loop := range []func(context.Context){
		s.Scheduler.Run,
		s.Heartbeat.Run,
		s.Sweeper.Run,
		s.Poller.Run,
	} {
		s.wg.Add(1)
		go func(run func(context.Context)) {
			defer s.wg.Done()
			run(ctx)
		}(loop)
	}

	s.logger.Info("Broadcast service started")
}

// -----------------------------------------------------------------------------

// Stop cancels the background loops, waits for them to exit, then closes all
// connections with reason "server-shutdown".
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.Registry.CloseAll(ReasonServerShutdown)
	s.logger.Info("Broadcast service stopped")
}

// -----------------------------------------------------------------------------

// Connect registers an upgraded websocket with the registry.
func (s *Service) Connect(ws *websocket.Conn, remoteAddr, userAgent string) (*Connection, error) {
	return s.Registry.Connect(ws, remoteAddr, userAgent)
}

// Disconnect tears one connection down.
func (s *Service) Disconnect(id, reason string) {
	s.Registry.Disconnect(id, reason)
}

// -----------------------------------------------------------------------------

// Subscribe adds channels for a connection. Symbol keys with cached data are
// replayed immediately so the client does not wait for the next poll.
func (s *Service) Subscribe(id string, channels []string) error {
	conn := s.Registry.Get(id)
	if conn == nil || conn.State() != StateOpen {
		return ErrConnectionClosed
	}

	added := s.Index.Subscribe(id, channels)
	for _, key := range added {
		if IsCategory(key) {
			continue
		}

		s.Poller.market.TrackSymbol(key)

		update, ok := s.Cache.Get(key)
		if !ok {
			continue
		}
		if !s.Limiter.Allow(id) {
			s.stats.rateLimited.Add(1)
			continue
		}
		s.Registry.Send(id, &models.MBroadcastMessage{
			Type:          models.MessageTypePriceUpdate,
			Channel:       key,
			Data:          update,
			Timestamp:     s.clock.Now().UnixMilli(),
			CorrelationID: uuid.NewString(),
		})
	}
	return nil
}

// Unsubscribe removes channels for a connection.
func (s *Service) Unsubscribe(id string, channels []string) {
	s.Index.Unsubscribe(id, channels)
}

// -----------------------------------------------------------------------------

// HandleMessage processes one inbound client frame. Malformed input is
// answered with an error frame, never by dropping the connection.
func (s *Service) HandleMessage(id string, raw []byte) {
	conn := s.Registry.Get(id)
	if conn == nil {
		return
	}

	var cmd models.MClientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.sendError(id, "invalid-json", "message is not valid JSON")
		return
	}

	switch strings.ToLower(cmd.Type) {
	case "subscribe":
		if len(cmd.Channels) == 0 {
			s.sendError(id, "invalid-request", "subscribe requires a non-empty channels list")
			return
		}
		if err := s.Subscribe(id, cmd.Channels); err != nil {
			s.sendError(id, "subscribe-failed", err.Error())
		}

	case "unsubscribe":
		s.Unsubscribe(id, cmd.Channels)

	case "heartbeat":
		conn.TouchHeartbeat()

	case "ping":
		conn.TouchHeartbeat()
		s.Registry.Send(id, &models.MBroadcastMessage{
			Type:      models.MessageTypeHeartbeat,
			Timestamp: s.clock.Now().UnixMilli(),
		})

	default:
		s.sendError(id, "unknown-type", "unknown message type: "+cmd.Type)
	}
}

// -----------------------------------------------------------------------------

func (s *Service) sendError(id, errorType, message string) {
	s.stats.errors.Add(1)
	s.Registry.Send(id, &models.MBroadcastMessage{
		Type:      models.MessageTypeError,
		Data:      models.MErrorPayload{ErrorType: errorType, Message: message},
		Timestamp: s.clock.Now().UnixMilli(),
	})
}

// -----------------------------------------------------------------------------

// BroadcastMarketStatus queues a market-status category broadcast, callable
// from the admin surface.
func (s *Service) BroadcastMarketStatus(payload models.MMarketStatusPayload) {
	if payload.ChangedAt == 0 {
		payload.ChangedAt = s.clock.Now().UnixMilli()
	}
	s.Scheduler.EnqueueMarketStatus(payload)
}

// UpdateSymbols replaces the base polled symbol set, callable from the admin
// surface.
func (s *Service) UpdateSymbols(symbols []string) {
	s.Poller.UpdateSymbols(symbols)
}

// -----------------------------------------------------------------------------

// GetStats returns the operational snapshot for the stats endpoint.
func (s *Service) GetStats() models.MServiceStats {
	uptime := 0.0
	if !s.startedAt.IsZero() {
		uptime = s.clock.Since(s.startedAt).Seconds()
	}

	return models.MServiceStats{
		ConnectionCount:    s.Registry.Count(),
		SubscriptionCounts: s.Index.Counts(),
		MessagesSent:       s.stats.MessagesSent(),
		RateLimited:        s.stats.RateLimited(),
		Errors:             s.stats.Errors(),
		UptimeSeconds:      uptime,
		MarketOpen:         s.Poller.MarketOpen(),
	}
}
