package venue

import "sync/atomic"

// Correlation id space shared by both venue dialects. Ids below the floor
// are reserved for fixed protocol traffic (auth, heartbeats).
const (
	idFloor   = 10000
	idCeiling = 1000000
)

// IDCounter allocates correlation ids for one connector instance. Ids are
// monotonically increasing from the floor and wrap back to it once above
// the ceiling, so uniqueness holds only within a bounded in-flight window:
// a request still outstanding after ~990,000 subsequent allocations can
// collide with a reused id. With the 500ms polling budget that window is
// never approached in practice.
type IDCounter struct {
	curr atomic.Uint64
}

// NewIDCounter creates a counter seeded at the floor.
func NewIDCounter() *IDCounter {
	c := &IDCounter{}
	c.curr.Store(idFloor)
	return c
}

// Next returns a fresh correlation id.
func (c *IDCounter) Next() uint64 {
	for {
		old := c.curr.Load()
		next := old + 1
		if old > idCeiling {
			next = idFloor
		}
		if c.curr.CompareAndSwap(old, next) {
			return next
		}
	}
}
