// Package timeseries provides a bounded, key-ordered in-memory container
// for historical samples.
package timeseries

import (
	"cmp"
	"errors"
	"iter"
	"slices"
)

// ErrKeyExists is returned by Insert when the key collides with an entry
// already stored at a non-append position. No mutation is performed.
var ErrKeyExists = errors.New("key already exists")

// DefaultCapacity is the element bound used by New.
const DefaultCapacity = 100000

// Array holds parallel key/value sequences with keys kept non-decreasing
// after every successful insert. Capacity is bounded below by 1; once full,
// inserting evicts the oldest entry first, so insertion never fails for
// lack of space.
//
// Array is not safe for concurrent use; callers that share one across
// goroutines must serialize access externally.
type Array[K cmp.Ordered, V any] struct {
	keys     []K
	values   []V
	capacity int
}

// New creates an Array with the default capacity.
func New[K cmp.Ordered, V any]() *Array[K, V] {
	return NewWithCapacity[K, V](DefaultCapacity)
}

// NewWithCapacity creates an Array bounded to at most max elements,
// clamped below to 1.
func NewWithCapacity[K cmp.Ordered, V any](max int) *Array[K, V] {
	if max < 1 {
		max = 1
	}
	return &Array[K, V]{
		keys:     make([]K, 0),
		values:   make([]V, 0),
		capacity: max,
	}
}

// Len returns the number of stored entries.
func (a *Array[K, V]) Len() int {
	return len(a.keys)
}

// Cap returns the configured element bound.
func (a *Array[K, V]) Cap() int {
	return a.capacity
}

// Insert stores a key/value pair. Keys at or above the current maximum
// append in constant time; appends are not checked for duplicates, so a
// key equal to the current maximum silently coexists with it. Keys below
// the current maximum are placed by binary search and fail with
// ErrKeyExists on an exact match.
func (a *Array[K, V]) Insert(key K, value V) error {
	if len(a.keys) >= a.capacity {
		a.evictOldest()
	}

	if n := len(a.keys); n == 0 || key >= a.keys[n-1] {
		a.keys = append(a.keys, key)
		a.values = append(a.values, value)
		return nil
	}

	pos, found := slices.BinarySearch(a.keys, key)
	if found {
		return ErrKeyExists
	}

	a.keys = slices.Insert(a.keys, pos, key)
	a.values = slices.Insert(a.values, pos, value)
	return nil
}

// FindKey returns the value stored under an exact key.
func (a *Array[K, V]) FindKey(key K) (V, bool) {
	if i, found := slices.BinarySearch(a.keys, key); found {
		return a.values[i], true
	}
	var zero V
	return zero, false
}

// LastValueAtOrBefore returns the entry with the greatest key less than or
// equal to key, or false if every stored key is greater.
func (a *Array[K, V]) LastValueAtOrBefore(key K) (K, V, bool) {
	i, found := slices.BinarySearch(a.keys, key)
	if !found {
		if i == 0 {
			var zeroK K
			var zeroV V
			return zeroK, zeroV, false
		}
		i--
	}
	return a.keys[i], a.values[i], true
}

// RangeQuery returns a lazy, restartable sequence of the stored pairs with
// lower <= key < upper in ascending key order. Degenerate or out-of-range
// bounds yield an empty sequence. The sequence reads the live backing
// storage, so it must not straddle a mutation.
func (a *Array[K, V]) RangeQuery(lower, upper K) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		lo, _ := slices.BinarySearch(a.keys, lower)
		hi, _ := slices.BinarySearch(a.keys, upper)
		if hi > len(a.keys) {
			hi = len(a.keys)
		}
		if lo >= len(a.keys) || lo >= hi {
			return
		}
		for i := lo; i < hi; i++ {
			if !yield(a.keys[i], a.values[i]) {
				return
			}
		}
	}
}

// evictOldest drops the entry with the smallest key.
func (a *Array[K, V]) evictOldest() {
	if len(a.keys) == 0 {
		return
	}
	a.keys = a.keys[1:]
	a.values = a.values[1:]
}
