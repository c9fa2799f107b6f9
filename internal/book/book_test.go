package book

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/book-aggregator/internal/model"
	"github.com/rickgao/book-aggregator/internal/venue"
)

// fakeConnector serves a canned snapshot.
type fakeConnector struct {
	venue      model.Venue
	bids       []model.Level
	asks       []model.Level
	serverTime time.Time
	err        error
	pulls      int
}

func (c *fakeConnector) Venue() model.Venue { return c.venue }

func (c *fakeConnector) PullTopOfBook(ctx context.Context, depth int, instrument model.Instrument) ([]model.Level, []model.Level, time.Time, error) {
	c.pulls++
	if c.err != nil {
		return nil, nil, time.Time{}, c.err
	}
	return c.bids, c.asks, c.serverTime, nil
}

func (c *fakeConnector) Stop() {}

func mkLevels(v model.Venue, side model.Side, pairs ...float64) []model.Level {
	out := make([]model.Level, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, model.Level{
			Instrument: model.BtcUsdt,
			Venue:      v,
			Side:       side,
			Price:      pairs[i],
			Quantity:   pairs[i+1],
		})
	}
	return out
}

func TestBook_Refresh_MergesVenues(t *testing.T) {
	serverTime := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	binance := &fakeConnector{
		venue:      model.VenueBinance,
		bids:       mkLevels(model.VenueBinance, model.Bid, 100, 1, 99, 2),
		asks:       mkLevels(model.VenueBinance, model.Ask, 101, 1, 102, 2),
		serverTime: serverTime,
	}
	deribit := &fakeConnector{
		venue:      model.VenueDeribit,
		bids:       mkLevels(model.VenueDeribit, model.Bid, 100.5, 3),
		asks:       mkLevels(model.VenueDeribit, model.Ask, 101.5, 3),
		serverTime: serverTime.Add(time.Millisecond),
	}

	b := New(model.BtcUsdt, []venue.Connector{binance, deribit}, slog.Default())

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	pairs := b.BestLevels()
	if len(pairs) != 3 {
		t.Fatalf("BestLevels() rows = %d, want 3", len(pairs))
	}
	if pairs[0].Bid == nil || pairs[0].Bid.Price != 100.5 {
		t.Errorf("best bid = %+v, want 100.5 from deribit", pairs[0].Bid)
	}
	if pairs[0].Ask == nil || pairs[0].Ask.Price != 101 {
		t.Errorf("best ask = %+v, want 101 from binance", pairs[0].Ask)
	}

	if got := b.LastUpdateTime(); !got.Equal(deribit.serverTime) {
		t.Errorf("LastUpdateTime() = %v, want the last connector's server time %v", got, deribit.serverTime)
	}
}

func TestBook_Refresh_SamePriceAcrossVenuesCollapses(t *testing.T) {
	first := &fakeConnector{
		venue:      model.VenueBinance,
		bids:       mkLevels(model.VenueBinance, model.Bid, 100, 1, 100, 2),
		serverTime: time.Now(),
	}
	second := &fakeConnector{
		venue:      model.VenueDeribit,
		bids:       mkLevels(model.VenueDeribit, model.Bid, 105, 3),
		serverTime: time.Now(),
	}

	b := New(model.BtcUsdt, []venue.Connector{first, second}, slog.Default())

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	// Three records arrived but two share a price.
	pairs := b.BestLevels()
	if len(pairs) != 2 {
		t.Fatalf("rows = %d, want 2", len(pairs))
	}
	if pairs[0].Bid.Price != 105 {
		t.Errorf("best bid price = %v, want 105", pairs[0].Bid.Price)
	}
	if pairs[1].Bid.Quantity != 1 {
		t.Errorf("colliding price kept quantity %v, want first record's 1", pairs[1].Bid.Quantity)
	}
}

func TestBook_Refresh_FailureLeavesBookEmpty(t *testing.T) {
	healthy := &fakeConnector{
		venue:      model.VenueBinance,
		bids:       mkLevels(model.VenueBinance, model.Bid, 100, 1),
		asks:       mkLevels(model.VenueBinance, model.Ask, 101, 1),
		serverTime: time.Now(),
	}
	b := New(model.BtcUsdt, []venue.Connector{healthy}, slog.Default())

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	if len(b.BestLevels()) == 0 {
		t.Fatal("expected populated book after first refresh")
	}

	pullErr := errors.New("correlation timed out")
	healthy.err = pullErr

	err := b.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected Refresh() to fail")
	}
	if !errors.Is(err, pullErr) {
		t.Errorf("error = %v, want wrapped %v", err, pullErr)
	}

	// The clear happened before the pull, so the failed refresh leaves
	// the book empty rather than stale.
	if got := len(b.BestLevels()); got != 0 {
		t.Errorf("rows after failed refresh = %d, want 0", got)
	}
}

func TestBook_Imbalance(t *testing.T) {
	conn := &fakeConnector{
		venue:      model.VenueBinance,
		bids:       mkLevels(model.VenueBinance, model.Bid, 10, 1, 20, 1),
		asks:       mkLevels(model.VenueBinance, model.Ask, 15, 1, 25, 1),
		serverTime: time.Now(),
	}
	b := New(model.BtcUsdt, []venue.Connector{conn}, slog.Default())

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	// (10 + 20) / (15 + 25)
	if got := b.Imbalance(); got != 0.75 {
		t.Errorf("Imbalance() = %v, want 0.75", got)
	}
}

func TestBook_BestLevels_PadsShorterSide(t *testing.T) {
	conn := &fakeConnector{
		venue:      model.VenueBinance,
		bids:       mkLevels(model.VenueBinance, model.Bid, 100, 1, 99, 1, 98, 1),
		asks:       mkLevels(model.VenueBinance, model.Ask, 101, 1),
		serverTime: time.Now(),
	}
	b := New(model.BtcUsdt, []venue.Connector{conn}, slog.Default())

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	pairs := b.BestLevels()
	if len(pairs) != 3 {
		t.Fatalf("rows = %d, want 3", len(pairs))
	}
	if pairs[1].Ask != nil || pairs[2].Ask != nil {
		t.Error("expected nil asks past the shorter side's depth")
	}
	if pairs[2].Bid == nil || pairs[2].Bid.Price != 98 {
		t.Errorf("last bid = %+v, want price 98", pairs[2].Bid)
	}
}

func TestBook_Snapshot(t *testing.T) {
	conn := &fakeConnector{
		venue:      model.VenueBinance,
		bids:       mkLevels(model.VenueBinance, model.Bid, 100, 1),
		asks:       mkLevels(model.VenueBinance, model.Ask, 101, 2),
		serverTime: time.Now(),
	}
	b := New(model.BtcUsdt, []venue.Connector{conn}, slog.Default())

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	out := b.Snapshot()
	if !strings.Contains(out, "Instrument: BTC_USDT") {
		t.Errorf("snapshot missing instrument header:\n%s", out)
	}
	if !strings.Contains(out, "binance - 100.000000 - 1.000000") {
		t.Errorf("snapshot missing bid row:\n%s", out)
	}
	if !strings.Contains(out, "binance - 101.000000 - 2.000000") {
		t.Errorf("snapshot missing ask row:\n%s", out)
	}
}

func TestBook_Venues(t *testing.T) {
	b := New(model.BtcUsdt, []venue.Connector{
		&fakeConnector{venue: model.VenueBinance},
		&fakeConnector{venue: model.VenueDeribit},
	}, slog.Default())

	venues := b.Venues()
	if len(venues) != 2 {
		t.Fatalf("Venues() len = %d, want 2", len(venues))
	}
	if venues[0] != model.VenueBinance || venues[1] != model.VenueDeribit {
		t.Errorf("Venues() = %v", venues)
	}
}
