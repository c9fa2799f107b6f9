package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rickgao/book-aggregator/internal/model"
	"github.com/rickgao/book-aggregator/internal/venue"
)

// depthTiers are the book depths Deribit serves, ascending. Requests are
// snapped down to the nearest tier.
var depthTiers = []int{1, 5, 10, 20, 50, 100, 1000, 10000}

// snapDepth maps an arbitrary depth to the nearest supported tier at or
// below it, bottoming out at 1.
func snapDepth(depth int) int {
	snapped := depthTiers[0]
	for _, tier := range depthTiers {
		if depth >= tier {
			snapped = tier
		}
	}
	return snapped
}

// bookParams is the payload of a get_order_book request.
type bookParams struct {
	InstrumentName string `json:"instrument_name"`
	Depth          int    `json:"depth"`
}

// bookResult is the correlated reply to a get_order_book request.
// Price/quantity pairs arrive as numbers and the timestamp as epoch
// milliseconds.
type bookResult struct {
	Result struct {
		Timestamp int64       `json:"timestamp"`
		Bids      [][]float64 `json:"bids"`
		Asks      [][]float64 `json:"asks"`
	} `json:"result"`
}

// PullTopOfBook requests up to depth levels per side. Depth is snapped to
// Deribit's supported tiers. The returned timestamp is the server's.
func (c *Connector) PullTopOfBook(ctx context.Context, depth int, instrument model.Instrument) ([]model.Level, []model.Level, time.Time, error) {
	depth = snapDepth(depth)
	reqID := c.ids.Next()

	err := c.send(request{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "public/get_order_book",
		Params:  bookParams{InstrumentName: instrumentName(instrument), Depth: depth},
	})
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("send book request: %w", err)
	}

	for attempt := 0; attempt < venue.PollAttempts; attempt++ {
		if payload, ok := c.pending.Get(reqID); ok {
			bids, asks, serverTime, err := c.decodeBook(payload, instrument)
			if err != nil {
				return nil, nil, time.Time{}, err
			}
			c.pending.Remove(reqID)
			return bids, asks, serverTime, nil
		}

		if !c.alive.Load() {
			return nil, nil, time.Time{}, venue.ErrSessionStopped
		}

		select {
		case <-ctx.Done():
			return nil, nil, time.Time{}, ctx.Err()
		case <-time.After(venue.PollInterval):
		}
	}

	// A late response, if it ever arrives, is left orphaned in the table.
	return nil, nil, time.Time{}, fmt.Errorf("deribit book request %d: %w", reqID, venue.ErrCorrelationTimeout)
}

// decodeBook converts a correlated book payload into typed levels. Decode
// failures surface to the caller; this is the direct request path.
func (c *Connector) decodeBook(payload []byte, instrument model.Instrument) ([]model.Level, []model.Level, time.Time, error) {
	var resp bookResult
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, nil, time.Time{}, &venue.DecodeError{Venue: model.VenueDeribit, Cause: err}
	}

	bids := convertLevels(resp.Result.Bids, instrument, model.Bid)
	asks := convertLevels(resp.Result.Asks, instrument, model.Ask)
	serverTime := time.UnixMilli(resp.Result.Timestamp)
	return bids, asks, serverTime, nil
}

// convertLevels decodes numeric [price, quantity] pairs into typed
// records, skipping malformed pairs.
func convertLevels(pairs [][]float64, instrument model.Instrument, side model.Side) []model.Level {
	levels := make([]model.Level, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			continue
		}
		levels = append(levels, model.Level{
			Instrument: instrument,
			Venue:      model.VenueDeribit,
			Side:       side,
			Quantity:   pair[1],
			Price:      pair[0],
		})
	}
	return levels
}
