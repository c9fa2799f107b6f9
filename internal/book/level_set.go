// Package book implements the aggregation engine: ordered per-side level
// collections, the aggregated order book, and the book registry.
package book

import (
	"slices"

	"github.com/rickgao/book-aggregator/internal/model"
)

// LevelSet is an ordered collection of levels for one side of a book,
// iterating best-first: descending price for bids, ascending price for
// asks, with an ascending-quantity tie-break in the comparator.
//
// Equality is price-only: inserting a level whose price already exists in
// the set keeps the existing record and drops the new one, regardless of
// venue or quantity. Distinct orders at the same price therefore collapse
// to whichever arrived first.
//
// LevelSet is not internally locked; the owning book guards it.
type LevelSet struct {
	side   model.Side
	levels []model.Level
}

// NewLevelSet creates an empty set ordered for the given side.
func NewLevelSet(side model.Side) *LevelSet {
	return &LevelSet{side: side}
}

// compare orders two levels best-first for the set's side. It returns 0
// exactly when the prices are equal, which is what makes equality
// price-only: the nominal ascending-quantity tie-break never separates two
// records, because equal prices collide before it applies.
func (s *LevelSet) compare(a, b model.Level) int {
	if a.Price == b.Price {
		return 0
	}

	better := a.Price > b.Price // bids: higher price is better
	if s.side == model.Ask {
		better = a.Price < b.Price // asks: lower price is better
	}

	if better {
		return -1
	}
	return 1
}

// Insert places a level into the set. Returns false if a level at the same
// price already exists; the existing record survives.
func (s *LevelSet) Insert(level model.Level) bool {
	pos, found := slices.BinarySearchFunc(s.levels, level, s.compare)
	if found {
		return false
	}
	s.levels = slices.Insert(s.levels, pos, level)
	return true
}

// Len returns the number of stored levels.
func (s *LevelSet) Len() int {
	return len(s.levels)
}

// Clear removes every level.
func (s *LevelSet) Clear() {
	s.levels = s.levels[:0]
}

// Levels returns the stored levels best-first. The returned slice is a
// copy and safe to hold across a refresh.
func (s *LevelSet) Levels() []model.Level {
	out := make([]model.Level, len(s.levels))
	copy(out, s.levels)
	return out
}

// SumPrices returns the sum of all stored level prices.
func (s *LevelSet) SumPrices() float64 {
	var total float64
	for _, l := range s.levels {
		total += l.Price
	}
	return total
}
