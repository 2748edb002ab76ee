package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"stock-pulse/src/interfaces"
	"stock-pulse/src/logger"
	"stock-pulse/src/metrics"
	"stock-pulse/src/models"
	"stock-pulse/src/utils"
)

// -----------------------------------------------------------------------------

// requestStagger spaces provider calls inside one cycle so batches do not
// land on the upstream as a single burst.
const requestStagger = 10 * time.Millisecond

// retention cleanup runs at most once per day
const cleanupEvery = 24 * time.Hour

// -----------------------------------------------------------------------------

type symbolCooldown struct {
	failures int
	until    time.Time
}

// -----------------------------------------------------------------------------

// UpdatePoller bridges the external price provider into the broadcast
// pipeline. It polls the active symbol set on a schedule, applies per-symbol
// exponential cooldown on failure, and lengthens its interval when every
// tracked market is closed.
type UpdatePoller struct {
	provider  interfaces.IStockDataProvider
	cache     *PriceCache
	scheduler *BroadcastScheduler
	index     *SubscriptionIndex
	db        interfaces.IDatabase // optional, may be nil
	market    *utils.MarketScheduler
	stats     *Stats
	clock     clockwork.Clock
	logger    *logger.Logger

	mu          sync.Mutex
	baseSymbols []string
	cooldowns   map[string]*symbolCooldown
	marketOpen  bool
	lastCleanup time.Time

	openInterval   time.Duration
	closedInterval time.Duration
	cooldownBase   time.Duration
	cooldownCap    time.Duration
	concurrency    int
}

// -----------------------------------------------------------------------------

func NewUpdatePoller(provider interfaces.IStockDataProvider, cache *PriceCache, scheduler *BroadcastScheduler, index *SubscriptionIndex, db interfaces.IDatabase, market *utils.MarketScheduler, stats *Stats, cfg *models.MConfig, clock clockwork.Clock, log *logger.Logger) *UpdatePoller {
	concurrency := cfg.Network.ConcurrentRequests
	if concurrency <= 0 {
		concurrency = 4
	}

	return &UpdatePoller{
		provider:       provider,
		cache:          cache,
		scheduler:      scheduler,
		index:          index,
		db:             db,
		market:         market,
		stats:          stats,
		clock:          clock,
		logger:         log,
		baseSymbols:    append([]string(nil), cfg.DataSource.Symbols...),
		cooldowns:      make(map[string]*symbolCooldown),
		marketOpen:     market.AnyMarketOpen(),
		lastCleanup:    clock.Now(),
		openInterval:   time.Duration(cfg.DataSource.PollIntervalSeconds) * time.Second,
		closedInterval: time.Duration(cfg.DataSource.ClosedPollIntervalSeconds) * time.Second,
		cooldownBase:   time.Duration(cfg.DataSource.CooldownBaseSeconds) * time.Second,
		cooldownCap:    time.Duration(cfg.DataSource.CooldownCapSeconds) * time.Second,
		concurrency:    concurrency,
	}
}

// -----------------------------------------------------------------------------

// Run polls until ctx is cancelled.
func (p *UpdatePoller) Run(ctx context.Context) {
	p.logger.Info("Poller started (%d base symbols, interval %s open / %s closed)",
		len(p.BaseSymbols()), p.openInterval, p.closedInterval)

	for {
		p.checkMarketTransition()
		p.pollOnce(ctx)

		interval := p.openInterval
		if !p.MarketOpen() {
			interval = p.closedInterval
		}

		select {
		case <-ctx.Done():
			p.logger.Info("Poller stopped")
			return
		case <-p.clock.After(interval):
		}
	}
}

// -----------------------------------------------------------------------------

// pollOnce fetches every active symbol not in cooldown, with bounded
// concurrency. Each symbol succeeds or fails on its own: a failing symbol
// goes into cooldown and never delays a healthy one.
func (p *UpdatePoller) pollOnce(ctx context.Context) {
	start := p.clock.Now()
	symbols := p.pollableSymbols()
	if len(symbols) == 0 {
		return
	}

	var (
		wg      sync.WaitGroup
		batchMu sync.Mutex
		batch   []models.MPriceUpdate
	)
	sem := make(chan struct{}, p.concurrency)

	for i, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			time.Sleep(requestStagger)
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			update, err := p.provider.GetCurrentPrice(ctx, symbol)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.ProviderErrors.Inc()
				p.stats.errors.Add(1)
				delay := p.bumpCooldown(symbol)
				p.logger.Warning("Fetch failed for %s, cooling down %s: %v", symbol, delay, err)
				return
			}

			p.clearCooldown(symbol)
			if update.MarketStatus == "" {
				update.MarketStatus = p.marketStatusTag()
			}

			p.cache.Put(symbol, update)
			p.cache.AppendHistory(symbol, update)
			p.scheduler.EnqueuePrice(update)

			batchMu.Lock()
			batch = append(batch, update)
			batchMu.Unlock()
		}(symbol)
	}

	wg.Wait()
	metrics.PollDuration.Observe(p.clock.Since(start).Seconds())

	p.persist(batch)
}

// -----------------------------------------------------------------------------

// pollableSymbols is the union of the configured base set and every symbol
// with at least one subscriber, minus symbols currently in cooldown.
func (p *UpdatePoller) pollableSymbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	seen := make(map[string]struct{})
	out := make([]string, 0, len(p.baseSymbols))

	consider := func(symbol string) {
		if _, ok := seen[symbol]; ok {
			return
		}
		seen[symbol] = struct{}{}
		if cd, ok := p.cooldowns[symbol]; ok && now.Before(cd.until) {
			return
		}
		out = append(out, symbol)
	}

	for _, symbol := range p.baseSymbols {
		consider(symbol)
	}
	for _, symbol := range p.index.SymbolKeys() {
		consider(symbol)
	}
	return out
}

// -----------------------------------------------------------------------------

// bumpCooldown doubles the symbol's retry delay on each consecutive failure,
// up to the cap. Returns the applied delay.
func (p *UpdatePoller) bumpCooldown(symbol string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	cd, ok := p.cooldowns[symbol]
	if !ok {
		cd = &symbolCooldown{}
		p.cooldowns[symbol] = cd
	}
	cd.failures++

	delay := p.cooldownBase
	for i := 1; i < cd.failures; i++ {
		delay *= 2
		if delay >= p.cooldownCap {
			delay = p.cooldownCap
			break
		}
	}
	if delay > p.cooldownCap {
		delay = p.cooldownCap
	}

	cd.until = p.clock.Now().Add(delay)
	return delay
}

// clearCooldown resets the symbol's failure state after one success.
func (p *UpdatePoller) clearCooldown(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cooldowns, symbol)
}

// cooldownUntil reports when polling of symbol resumes (zero if no cooldown).
func (p *UpdatePoller) cooldownUntil(symbol string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cd, ok := p.cooldowns[symbol]; ok {
		return cd.until
	}
	return time.Time{}
}

// -----------------------------------------------------------------------------

// checkMarketTransition broadcasts a market-status frame when the tracked
// markets move between open and closed.
func (p *UpdatePoller) checkMarketTransition() {
	open := p.market.AnyMarketOpen()

	p.mu.Lock()
	changed := open != p.marketOpen
	p.marketOpen = open
	p.mu.Unlock()

	if !changed {
		return
	}

	status := "closed"
	if open {
		status = "open"
	}
	p.logger.Info("Market transition: %s", status)
	p.scheduler.EnqueueMarketStatus(models.MMarketStatusPayload{
		Status:    status,
		ChangedAt: p.clock.Now().UnixMilli(),
	})
}

// MarketOpen reports whether any tracked market was open at the last check.
func (p *UpdatePoller) MarketOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.marketOpen
}

func (p *UpdatePoller) marketStatusTag() string {
	if p.MarketOpen() {
		return "open"
	}
	return "closed"
}

// -----------------------------------------------------------------------------

// persist stores the cycle's updates and runs daily retention cleanup.
// Storage failures are logged, never fatal: the broadcast path does not
// depend on persistence.
func (p *UpdatePoller) persist(batch []models.MPriceUpdate) {
	if p.db == nil || len(batch) == 0 {
		return
	}

	if err := p.db.SavePriceUpdates(batch); err != nil {
		p.logger.Error("Failed to persist %d price updates: %v", len(batch), err)
	}

	p.mu.Lock()
	due := p.clock.Since(p.lastCleanup) >= cleanupEvery
	if due {
		p.lastCleanup = p.clock.Now()
	}
	p.mu.Unlock()

	if due {
		if err := p.db.CleanupOldData(); err != nil {
			p.logger.Error("Retention cleanup failed: %v", err)
		}
	}
}

// -----------------------------------------------------------------------------

// UpdateSymbols replaces the base symbol set and remaps market calendars.
func (p *UpdatePoller) UpdateSymbols(symbols []string) {
	p.mu.Lock()
	p.baseSymbols = append([]string(nil), symbols...)
	p.mu.Unlock()

	p.market.UpdateSymbols(symbols)
	p.logger.Info("Base symbol set updated (%d symbols)", len(symbols))
}

// BaseSymbols returns a copy of the configured base symbol set.
func (p *UpdatePoller) BaseSymbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.baseSymbols...)
}
