package utils

import (
	"sync"
	"time"

	"stock-pulse/src/logger"
)

// MarketScheduler tracks the trading calendars of the monitored symbols and
// answers whether any of their markets is currently open.
type MarketScheduler struct {
	calendars map[string]*TradingCalendar
	logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(symbols []string, l *logger.Logger) *MarketScheduler {
	ms := &MarketScheduler{
		calendars: make(map[string]*TradingCalendar),
		logger:    l,
	}
	ms.UpdateSymbols(symbols)
	return ms
}

// -----------------------------------------------------------------------------

// UpdateSymbols replaces the tracked symbol set and remaps calendars.
func (ms *MarketScheduler) UpdateSymbols(symbols []string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.calendars = make(map[string]*TradingCalendar)
	for _, symbol := range symbols {
		if cal := GetCalendar(symbol); cal != nil {
			ms.calendars[symbol] = cal
		}
	}

	ms.logger.Info("MarketScheduler: mapped %d symbols to %d unique calendars",
		len(symbols), len(ms.uniqueCalendars()))
}

// -----------------------------------------------------------------------------

// TrackSymbol adds one symbol's calendar without touching the rest.
func (ms *MarketScheduler) TrackSymbol(symbol string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.calendars[symbol]; ok {
		return
	}
	if cal := GetCalendar(symbol); cal != nil {
		ms.calendars[symbol] = cal
	}
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if ANY tracked market is currently open.
func (ms *MarketScheduler) AnyMarketOpen() bool {
	return ms.AnyMarketOpenAt(time.Now().UTC())
}

// AnyMarketOpenAt is AnyMarketOpen for an arbitrary instant (testable).
func (ms *MarketScheduler) AnyMarketOpenAt(now time.Time) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for cal := range ms.uniqueCalendars() {
		if cal.IsOpenOnMinute(now) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// caller must hold at least a read lock
func (ms *MarketScheduler) uniqueCalendars() map[*TradingCalendar]struct{} {
	unique := make(map[*TradingCalendar]struct{}, len(ms.calendars))
	for _, cal := range ms.calendars {
		unique[cal] = struct{}{}
	}
	return unique
}
