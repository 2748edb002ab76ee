package broadcast

import (
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Broadcast categories. Any other key is treated as a concrete symbol.
// -----------------------------------------------------------------------------

const (
	CategoryAllSymbols   = "all-symbols"
	CategoryMarketStatus = "market-status"
)

// IsCategory reports whether key is a broadcast category rather than a symbol.
func IsCategory(key string) bool {
	return key == CategoryAllSymbols || key == CategoryMarketStatus
}

// -----------------------------------------------------------------------------

// SubscriptionIndex maps subscription keys to subscriber ids and back. Both
// directions are mutated under one lock so no caller can ever observe them
// inconsistent.
type SubscriptionIndex struct {
	mu     sync.RWMutex
	byKey  map[string]map[string]struct{}
	byConn map[string]map[string]struct{}
}

// -----------------------------------------------------------------------------

func NewSubscriptionIndex() *SubscriptionIndex {
	return &SubscriptionIndex{
		byKey:  make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------

// Subscribe adds id to each key's subscriber set. Returns the normalized keys
// that were newly added for this connection (already-subscribed keys and
// blank keys are skipped).
func (s *SubscriptionIndex) Subscribe(id string, keys []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]string, 0, len(keys))
	for _, raw := range keys {
		key := strings.TrimSpace(raw)
		if key == "" {
			continue
		}

		if s.byConn[id] == nil {
			s.byConn[id] = make(map[string]struct{})
		}
		if _, ok := s.byConn[id][key]; ok {
			continue
		}

		s.byConn[id][key] = struct{}{}
		if s.byKey[key] == nil {
			s.byKey[key] = make(map[string]struct{})
		}
		s.byKey[key][id] = struct{}{}
		added = append(added, key)
	}
	return added
}

// -----------------------------------------------------------------------------

// Unsubscribe removes id from each key. Keys left without subscribers are
// removed entirely.
func (s *SubscriptionIndex) Unsubscribe(id string, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, raw := range keys {
		key := strings.TrimSpace(raw)
		s.removeLocked(id, key)
	}
}

// -----------------------------------------------------------------------------

// Purge removes id from every key it was subscribed to. Used on disconnect.
func (s *SubscriptionIndex) Purge(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.byConn[id] {
		s.removeLocked(id, key)
	}
	delete(s.byConn, id)
}

// caller must hold the write lock
func (s *SubscriptionIndex) removeLocked(id, key string) {
	if conns, ok := s.byKey[key]; ok {
		delete(conns, id)
		if len(conns) == 0 {
			delete(s.byKey, key)
		}
	}
	if keys, ok := s.byConn[id]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.byConn, id)
		}
	}
}

// -----------------------------------------------------------------------------

// SubscribersFor returns a snapshot of the ids subscribed to key.
func (s *SubscriptionIndex) SubscribersFor(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := s.byKey[key]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// -----------------------------------------------------------------------------

// Keys returns a snapshot of the keys one connection is subscribed to.
func (s *SubscriptionIndex) Keys(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byConn[id]
	out := make([]string, 0, len(keys))
	for key := range keys {
		out = append(out, key)
	}
	return out
}

// -----------------------------------------------------------------------------

// SymbolKeys returns every concrete symbol key with at least one subscriber,
// excluding broadcast categories. The poller unions this with its base set.
func (s *SubscriptionIndex) SymbolKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byKey))
	for key := range s.byKey {
		if !IsCategory(key) {
			out = append(out, key)
		}
	}
	return out
}

// -----------------------------------------------------------------------------

// DropEmptyKeys removes keys without subscribers. Normally a no-op: removal
// paths already delete empty entries. The sweeper calls it defensively.
func (s *SubscriptionIndex) DropEmptyKeys() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for key, conns := range s.byKey {
		if len(conns) == 0 {
			delete(s.byKey, key)
			dropped++
		}
	}
	return dropped
}

// -----------------------------------------------------------------------------

// Counts returns subscriber counts per key, for the stats surface.
func (s *SubscriptionIndex) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(s.byKey))
	for key, conns := range s.byKey {
		out[key] = len(conns)
	}
	return out
}
