package domain

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Direction represents the price movement direction
type Direction int

const (
	DirectionSame Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

// Compare returns the direction of movement from prev to next.
func Compare(prev, next float64) Direction {
	switch {
	case next > prev:
		return DirectionUp
	case next < prev:
		return DirectionDown
	default:
		return DirectionSame
	}
}

// Projection maps a subscribed symbol to its quote rendered with two decimals.
type Projection map[string]string

// FormatPrice renders a quote with exactly two decimal digits, rounding half away from zero.
func FormatPrice(price float64) string {
	return decimal.NewFromFloat(price).StringFixed(2)
}

// PriceBook holds the current quote of every catalog symbol.
type PriceBook struct {
	mu    sync.RWMutex
	order []string
	px    map[string]float64
}

func NewPriceBook(symbols []string, initial func(symbol string) float64) *PriceBook {
	order := make([]string, 0, len(symbols))
	px := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if _, ok := px[s]; ok {
			continue
		}
		order = append(order, s)
		px[s] = initial(s)
	}
	return &PriceBook{order: order, px: px}
}

// Apply replaces every quote with fn(symbol, current) under the write lock.
func (b *PriceBook) Apply(fn func(symbol string, price float64) float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.order {
		b.px[s] = fn(s, b.px[s])
	}
}

func (b *PriceBook) Get(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.px[symbol]
	return p, ok
}

func (b *PriceBook) Symbols() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

func (b *PriceBook) Snapshot() map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]float64, len(b.px))
	for k, v := range b.px {
		out[k] = v
	}
	return out
}

// Project restricts the book to symbols. Unknown symbols are skipped.
func (b *PriceBook) Project(symbols []string) Projection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(Projection, len(symbols))
	for _, s := range symbols {
		p, ok := b.px[s]
		if !ok {
			continue
		}
		out[s] = FormatPrice(p)
	}
	return out
}
