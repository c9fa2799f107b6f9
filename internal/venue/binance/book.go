package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rickgao/book-aggregator/internal/model"
	"github.com/rickgao/book-aggregator/internal/venue"
)

// depthParams is the payload of a depth request.
type depthParams struct {
	Symbol string `json:"symbol"`
	Limit  int    `json:"limit"`
}

// depthResponse is the correlated reply to a depth request. Price/quantity
// pairs arrive as strings.
type depthResponse struct {
	Result struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	} `json:"result"`
}

// PullTopOfBook requests up to depth levels per side. Depth is clamped to
// MaxDepth. Binance supplies no server timestamp on this call, so the
// local receive time stands in.
func (c *Connector) PullTopOfBook(ctx context.Context, depth int, instrument model.Instrument) ([]model.Level, []model.Level, time.Time, error) {
	if depth > MaxDepth {
		depth = MaxDepth
	}

	reqID := c.ids.Next()

	if err := c.sendDepthRequest(reqID, instrumentName(instrument), depth); err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("send depth request: %w", err)
	}

	for attempt := 0; attempt < venue.PollAttempts; attempt++ {
		if payload, ok := c.pending.Get(reqID); ok {
			bids, asks, err := c.decodeDepth(payload, instrument)
			if err != nil {
				return nil, nil, time.Time{}, err
			}
			c.pending.Remove(reqID)
			return bids, asks, time.Now(), nil
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
	return nil, nil, time.Time{}, fmt.Errorf("binance depth request %d: %w", reqID, venue.ErrCorrelationTimeout)
}

// sendDepthRequest encodes and sends a depth request under a correlation id.
func (c *Connector) sendDepthRequest(id uint64, symbol string, depth int) error {
	params, err := json.Marshal(depthParams{Symbol: symbol, Limit: depth})
	if err != nil {
		return err
	}
	msg, err := json.Marshal(envelope{
		ID:     strconv.FormatUint(id, 10),
		Method: "depth",
		Params: params,
	})
	if err != nil {
		return err
	}
	return c.client.Send(msg)
}

// decodeDepth converts a correlated depth payload into typed levels.
// This is the direct request path, so decode failures surface to the
// caller instead of being swallowed.
func (c *Connector) decodeDepth(payload []byte, instrument model.Instrument) ([]model.Level, []model.Level, error) {
	var resp depthResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, nil, &venue.DecodeError{Venue: model.VenueBinance, Cause: err}
	}

	bids := convertLevels(resp.Result.Bids, instrument, model.Bid)
	asks := convertLevels(resp.Result.Asks, instrument, model.Ask)
	return bids, asks, nil
}

// convertLevels decodes string [price, quantity] pairs into typed records.
// Malformed pairs are skipped rather than failing the whole book.
func convertLevels(pairs [][]string, instrument model.Instrument, side model.Side) []model.Level {
	levels := make([]model.Level, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			continue
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			continue
		}
		levels = append(levels, model.Level{
			Instrument: instrument,
			Venue:      model.VenueBinance,
			Side:       side,
			Quantity:   qty,
			Price:      price,
		})
	}
	return levels
}
