package book

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/book-aggregator/internal/model"
	"github.com/rickgao/book-aggregator/internal/venue"
)

// DefaultDepth is how many levels per side a refresh requests from each
// venue.
const DefaultDepth = 10

// AggregatedOrderBook merges top-of-book snapshots from one or more venue
// connectors into ordered bid/ask collections for a single instrument.
// Books are created once per instrument/subscription set at startup and
// live for the process lifetime; teardown happens by stopping the
// underlying connectors.
//
// The bid and ask collections are guarded independently. Refresh acquires
// both before mutating; readers acquire only what they need. Concurrent
// Refresh calls on the same book are not serialized against each other;
// callers needing single-flight semantics must add it externally.
type AggregatedOrderBook struct {
	instrument model.Instrument
	connectors []venue.Connector
	depth      int
	logger     *slog.Logger

	bidMu sync.Mutex
	bids  *LevelSet

	askMu sync.Mutex
	asks  *LevelSet

	lastMu     sync.Mutex
	lastUpdate time.Time
}

// New creates a book for an instrument subscribed to the given connectors.
func New(instrument model.Instrument, connectors []venue.Connector, logger *slog.Logger) *AggregatedOrderBook {
	if logger == nil {
		logger = slog.Default()
	}
	subs := make([]venue.Connector, len(connectors))
	copy(subs, connectors)

	return &AggregatedOrderBook{
		instrument: instrument,
		connectors: subs,
		depth:      DefaultDepth,
		logger:     logger.With("instrument", instrument.String()),
		bids:       NewLevelSet(model.Bid),
		asks:       NewLevelSet(model.Ask),
	}
}

// NewWithDepth creates a book that requests a specific number of levels per
// side from each venue on refresh. Depths below 1 fall back to DefaultDepth.
func NewWithDepth(instrument model.Instrument, connectors []venue.Connector, depth int, logger *slog.Logger) *AggregatedOrderBook {
	b := New(instrument, connectors, logger)
	if depth >= 1 {
		b.depth = depth
	}
	return b
}

// Instrument returns the book's instrument.
func (b *AggregatedOrderBook) Instrument() model.Instrument {
	return b.instrument
}

// Venues returns the venue tags of the subscribed connectors.
func (b *AggregatedOrderBook) Venues() []model.Venue {
	venues := make([]model.Venue, 0, len(b.connectors))
	for _, c := range b.connectors {
		venues = append(venues, c.Venue())
	}
	return venues
}

// Refresh clears both collections, then pulls a fresh top-of-book from
// each subscribed connector in turn and merges the results. If any single
// connector fails, the whole refresh fails and its error propagates; the
// collections were already cleared, so a failed refresh leaves the book
// visibly empty until the next successful cycle. There is no partial-merge
// fallback.
func (b *AggregatedOrderBook) Refresh(ctx context.Context) error {
	b.bidMu.Lock()
	defer b.bidMu.Unlock()
	b.askMu.Lock()
	defer b.askMu.Unlock()

	b.bids.Clear()
	b.asks.Clear()

	for _, conn := range b.connectors {
		bids, asks, serverTime, err := conn.PullTopOfBook(ctx, b.depth, b.instrument)
		if err != nil {
			return fmt.Errorf("refresh %s from %s: %w", b.instrument, conn.Venue(), err)
		}

		for _, bid := range bids {
			b.bids.Insert(bid)
		}
		for _, ask := range asks {
			b.asks.Insert(ask)
		}

		b.lastMu.Lock()
		b.lastUpdate = serverTime
		b.lastMu.Unlock()
	}

	b.logger.Debug("book refreshed",
		"bids", b.bids.Len(),
		"asks", b.asks.Len(),
	)

	return nil
}

// Imbalance returns the ratio of the sum of bid prices to the sum of ask
// prices over the current snapshot. Price-weighted only, not
// price-times-quantity.
func (b *AggregatedOrderBook) Imbalance() float64 {
	b.bidMu.Lock()
	bidTotal := b.bids.SumPrices()
	b.bidMu.Unlock()

	b.askMu.Lock()
	askTotal := b.asks.SumPrices()
	b.askMu.Unlock()

	return bidTotal / askTotal
}

// LevelPair pairs the n-th best bid with the n-th best ask. The shorter
// side is nil-padded.
type LevelPair struct {
	Bid *model.Level
	Ask *model.Level
}

// BestLevels pairs the n-th best bid with the n-th best ask for every rank
// up to the deeper side's length.
func (b *AggregatedOrderBook) BestLevels() []LevelPair {
	b.bidMu.Lock()
	bids := b.bids.Levels()
	b.bidMu.Unlock()

	b.askMu.Lock()
	asks := b.asks.Levels()
	b.askMu.Unlock()

	rows := max(len(bids), len(asks))
	pairs := make([]LevelPair, rows)
	for i := 0; i < rows; i++ {
		if i < len(bids) {
			pairs[i].Bid = &bids[i]
		}
		if i < len(asks) {
			pairs[i].Ask = &asks[i]
		}
	}
	return pairs
}

// Snapshot renders the paired best levels as aligned text rows, blank
// padding the shorter side. Pure formatting over BestLevels.
func (b *AggregatedOrderBook) Snapshot() string {
	imbalance := b.Imbalance()
	pairs := b.BestLevels()

	out := fmt.Sprintf("Instrument: %s\n\n", b.instrument)
	out += fmt.Sprintf("Bid/Ask Imbalance: %v\n\n", imbalance)
	out += fmt.Sprintf("%-40s %-40s\n",
		"Bids (Venue - Price - Qty)", "Asks (Venue - Price - Qty)")
	out += fmt.Sprintf("%s\n", dashes(80))

	for _, pair := range pairs {
		out += fmt.Sprintf("%-40s %-40s\n", formatLevel(pair.Bid), formatLevel(pair.Ask))
	}

	return out
}

func formatLevel(l *model.Level) string {
	if l == nil {
		return ""
	}
	return fmt.Sprintf("%s - %.6f - %.6f", l.Venue, l.Price, l.Quantity)
}

func dashes(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = '-'
	}
	return string(out)
}

// LastUpdateTime returns the server timestamp recorded by the most recent
// successful refresh.
func (b *AggregatedOrderBook) LastUpdateTime() time.Time {
	b.lastMu.Lock()
	defer b.lastMu.Unlock()
	return b.lastUpdate
}
