package broadcast

import (
	"sync"

	"stock-pulse/src/models"
	"stock-pulse/src/utils"
)

// -----------------------------------------------------------------------------

// PriceCache holds the last known update and a bounded rolling history per
// symbol. Last-writer-wins: the poller is the only steady-state writer and
// handles one symbol at a time.
type PriceCache struct {
	mu          sync.RWMutex
	latest      map[string]models.MPriceUpdate
	history     map[string]*utils.PriceRing
	historySize int
}

// -----------------------------------------------------------------------------

func NewPriceCache(historySize int) *PriceCache {
	return &PriceCache{
		latest:      make(map[string]models.MPriceUpdate),
		history:     make(map[string]*utils.PriceRing),
		historySize: historySize,
	}
}

// -----------------------------------------------------------------------------

// Get returns the most recent update for symbol, if any.
func (pc *PriceCache) Get(symbol string) (models.MPriceUpdate, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	update, ok := pc.latest[symbol]
	return update, ok
}

// -----------------------------------------------------------------------------

// Put stores the latest update for a symbol.
func (pc *PriceCache) Put(symbol string, update models.MPriceUpdate) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.latest[symbol] = update
}

// -----------------------------------------------------------------------------

// AppendHistory records the update in the symbol's rolling history ring,
// evicting the oldest entry when full.
func (pc *PriceCache) AppendHistory(symbol string, update models.MPriceUpdate) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	ring, ok := pc.history[symbol]
	if !ok {
		ring = utils.NewPriceRing(pc.historySize)
		pc.history[symbol] = ring
	}
	ring.Append(update)
}

// -----------------------------------------------------------------------------

// History returns up to n recent updates for symbol, oldest first.
func (pc *PriceCache) History(symbol string, n int) []models.MPriceUpdate {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	ring, ok := pc.history[symbol]
	if !ok {
		return []models.MPriceUpdate{}
	}
	return ring.Latest(n)
}

// -----------------------------------------------------------------------------

// Warm seeds the cache from persisted state at startup so early subscribers
// get replay data before the first poll completes.
func (pc *PriceCache) Warm(updates map[string]models.MPriceUpdate) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	for symbol, update := range updates {
		if _, ok := pc.latest[symbol]; !ok {
			pc.latest[symbol] = update
		}
	}
}

// -----------------------------------------------------------------------------

// Symbols returns the symbols with a cached latest update.
func (pc *PriceCache) Symbols() []string {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	out := make([]string, 0, len(pc.latest))
	for symbol := range pc.latest {
		out = append(out, symbol)
	}
	return out
}
