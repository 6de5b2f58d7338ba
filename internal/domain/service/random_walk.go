package service

import (
	"errors"
	"fmt"
	"math"

	"tickcast/internal/domain"
)

// Rand is the random source used by the walk; *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// RandomWalk moves every quote by a factor drawn uniformly from [1-maxChange, 1+maxChange].
type RandomWalk struct {
	maxChange float64
	rnd       Rand
}

func NewRandomWalk(maxChange float64, rnd Rand) (*RandomWalk, error) {
	if !(maxChange > 0 && maxChange < 1) {
		return nil, fmt.Errorf("max change %v out of range (0, 1)", maxChange)
	}
	if rnd == nil {
		return nil, errors.New("random source is nil")
	}
	return &RandomWalk{maxChange: maxChange, rnd: rnd}, nil
}

func (w *RandomWalk) MaxChange() float64 { return w.maxChange }

// Step returns the next quote for price. A non-finite or non-positive
// result means the source or the arithmetic is broken, so Step panics
// rather than let a bad quote reach subscribers.
func (w *RandomWalk) Step(price float64) float64 {
	r := (w.rnd.Float64()*2 - 1) * w.maxChange
	next := price * (1 + r)
	if math.IsNaN(next) || math.IsInf(next, 0) || next <= 0 {
		panic(fmt.Sprintf("random walk produced invalid price %v from %v (r=%v)", next, price, r))
	}
	return next
}

// Advance mutates every entry of the book exactly once.
func (w *RandomWalk) Advance(book *domain.PriceBook) {
	book.Apply(func(_ string, price float64) float64 {
		return w.Step(price)
	})
}
