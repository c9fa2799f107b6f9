package model

import (
	"time"

	"github.com/google/uuid"
)

// MetricsSample is the derived-metrics record produced for one book by one
// refresh cycle. Samples are what the optional history writer persists;
// the books themselves never leave memory.
type MetricsSample struct {
	CycleID    uuid.UUID // Refresh cycle this sample belongs to
	Handle     uint64    // Registry handle of the sampled book
	Instrument Instrument
	VenueCount int       // Venues merged into the snapshot
	Imbalance  float64   // Σ bid prices / Σ ask prices
	BestBid    *Level    // nil when the bid side is empty
	BestAsk    *Level    // nil when the ask side is empty
	BookTime   time.Time // Server timestamp of the snapshot
	SampledAt  time.Time // Local time the sample was taken
}

// ImbalancePoint is one historical imbalance reading keyed by book server
// time.
type ImbalancePoint struct {
	Time      time.Time
	Imbalance float64
}
