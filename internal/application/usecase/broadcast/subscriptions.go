package broadcast

import (
	"sync"

	"tickcast/internal/domain"
)

// Subscriptions is the per-user set of symbols of interest.
// Every member is guaranteed to be in the catalog.
type Subscriptions struct {
	catalog *domain.Catalog

	mu   sync.RWMutex
	sets map[int64]map[string]struct{}
}

func NewSubscriptions(catalog *domain.Catalog) *Subscriptions {
	return &Subscriptions{
		catalog: catalog,
		sets:    make(map[int64]map[string]struct{}),
	}
}

// Ensure creates an empty set for userID if it has none yet.
func (s *Subscriptions) Ensure(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sets[userID] == nil {
		s.sets[userID] = make(map[string]struct{})
	}
}

// Subscribe adds symbol to the user's set and returns the resulting set.
// A symbol outside the catalog leaves the set untouched and returns
// domain.ErrUnknownSymbol along with the current set.
func (s *Subscriptions) Subscribe(userID int64, symbol string) ([]string, error) {
	sym := domain.NormalizeSymbol(symbol)
	if !s.catalog.Contains(sym) {
		return s.Get(userID), domain.ErrUnknownSymbol
	}

	s.mu.Lock()
	set := s.sets[userID]
	if set == nil {
		set = make(map[string]struct{})
		s.sets[userID] = set
	}
	set[sym] = struct{}{}
	out := s.ordered(set)
	s.mu.Unlock()
	return out, nil
}

// Unsubscribe removes symbol from the user's set and returns the resulting set.
func (s *Subscriptions) Unsubscribe(userID int64, symbol string) ([]string, error) {
	sym := domain.NormalizeSymbol(symbol)
	if !s.catalog.Contains(sym) {
		return s.Get(userID), domain.ErrUnknownSymbol
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[userID]
	if set == nil {
		return []string{}, nil
	}
	delete(set, sym)
	return s.ordered(set), nil
}

// Get returns the user's set in catalog order; unknown users get an empty set.
func (s *Subscriptions) Get(userID int64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ordered(s.sets[userID])
}

// caller holds mu
func (s *Subscriptions) ordered(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	if len(set) == 0 {
		return out
	}
	for _, sym := range s.catalog.Symbols() {
		if _, ok := set[sym]; ok {
			out = append(out, sym)
		}
	}
	return out
}
