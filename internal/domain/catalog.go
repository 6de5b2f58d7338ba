package domain

import (
	"errors"
	"strings"
)

var (
	ErrEmptyCatalog  = errors.New("ticker catalog is empty")
	ErrUnknownSymbol = errors.New("symbol not in catalog")
)

// Catalog is the fixed set of tradable symbols known at startup.
// It is immutable once built and safe for concurrent reads.
type Catalog struct {
	order []string
	set   map[string]struct{}
}

func NewCatalog(symbols []string) (*Catalog, error) {
	order := make([]string, 0, len(symbols))
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		u := NormalizeSymbol(s)
		if u == "" {
			continue
		}
		if _, ok := set[u]; ok {
			continue
		}
		set[u] = struct{}{}
		order = append(order, u)
	}
	if len(order) == 0 {
		return nil, ErrEmptyCatalog
	}
	return &Catalog{order: order, set: set}, nil
}

func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func (c *Catalog) Contains(symbol string) bool {
	_, ok := c.set[NormalizeSymbol(symbol)]
	return ok
}

// Symbols returns the catalog in its configured order.
func (c *Catalog) Symbols() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Catalog) Len() int { return len(c.order) }
