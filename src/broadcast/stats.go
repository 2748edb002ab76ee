package broadcast

import "sync/atomic"

// -----------------------------------------------------------------------------

// Stats holds the service-wide operational counters backing GetStats. These
// are independent of the prometheus collectors so the stats endpoint does not
// depend on a scrape.
type Stats struct {
	messagesSent atomic.Int64
	rateLimited  atomic.Int64
	errors       atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

// -----------------------------------------------------------------------------

func (s *Stats) MessagesSent() int64 { return s.messagesSent.Load() }
func (s *Stats) RateLimited() int64  { return s.rateLimited.Load() }
func (s *Stats) Errors() int64       { return s.errors.Load() }
