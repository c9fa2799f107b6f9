package writer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/book-aggregator/internal/config"
	"github.com/rickgao/book-aggregator/internal/model"
)

func testWriterConfig() config.WriterConfig {
	return config.WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
	}
}

func TestMetricsWriter_Transform(t *testing.T) {
	cycleID := uuid.New()
	bookTime := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	sampledAt := bookTime.Add(50 * time.Millisecond)

	sample := model.MetricsSample{
		CycleID:    cycleID,
		Handle:     1001,
		Instrument: model.BtcUsdt,
		VenueCount: 2,
		Imbalance:  0.75,
		BestBid: &model.Level{
			Instrument: model.BtcUsdt,
			Venue:      model.VenueBinance,
			Side:       model.Bid,
			Price:      64000.5,
			Quantity:   1.25,
		},
		BestAsk: &model.Level{
			Instrument: model.BtcUsdt,
			Venue:      model.VenueDeribit,
			Side:       model.Ask,
			Price:      64001.0,
			Quantity:   0.5,
		},
		BookTime:  bookTime,
		SampledAt: sampledAt,
	}

	row := transform(sample)

	if row.CycleID != cycleID.String() {
		t.Errorf("CycleID = %s, want %s", row.CycleID, cycleID)
	}
	if row.Handle != 1001 {
		t.Errorf("Handle = %d, want 1001", row.Handle)
	}
	if row.Instrument != "BTC_USDT" {
		t.Errorf("Instrument = %s, want BTC_USDT", row.Instrument)
	}
	if row.VenueCount != 2 {
		t.Errorf("VenueCount = %d, want 2", row.VenueCount)
	}
	if row.Imbalance != 0.75 {
		t.Errorf("Imbalance = %v, want 0.75", row.Imbalance)
	}
	if row.BestBidVenue == nil || *row.BestBidVenue != "binance" {
		t.Errorf("BestBidVenue = %v, want binance", row.BestBidVenue)
	}
	if row.BestBidPrice == nil || *row.BestBidPrice != 64000.5 {
		t.Errorf("BestBidPrice = %v, want 64000.5", row.BestBidPrice)
	}
	if row.BestAskVenue == nil || *row.BestAskVenue != "deribit" {
		t.Errorf("BestAskVenue = %v, want deribit", row.BestAskVenue)
	}
	if row.BestAskQty == nil || *row.BestAskQty != 0.5 {
		t.Errorf("BestAskQty = %v, want 0.5", row.BestAskQty)
	}
	if row.BookTime != bookTime.UnixMicro() {
		t.Errorf("BookTime = %d, want %d", row.BookTime, bookTime.UnixMicro())
	}
	if row.SampledAt != sampledAt.UnixMicro() {
		t.Errorf("SampledAt = %d, want %d", row.SampledAt, sampledAt.UnixMicro())
	}
}

func TestMetricsWriter_Transform_EmptySides(t *testing.T) {
	sample := model.MetricsSample{
		CycleID:    uuid.New(),
		Handle:     1002,
		Instrument: model.EthBtc,
		SampledAt:  time.Now(),
	}

	row := transform(sample)

	if row.BestBidVenue != nil {
		t.Errorf("BestBidVenue = %v, want nil for empty side", *row.BestBidVenue)
	}
	if row.BestBidPrice != nil {
		t.Errorf("BestBidPrice = %v, want nil for empty side", *row.BestBidPrice)
	}
	if row.BestAskVenue != nil {
		t.Errorf("BestAskVenue = %v, want nil for empty side", *row.BestAskVenue)
	}
}

func TestMetricsWriter_HandleSample_AddsToBatch(t *testing.T) {
	w := NewMetricsWriter(testWriterConfig(), nil, nil)

	sample := model.MetricsSample{
		CycleID:    uuid.New(),
		Handle:     1001,
		Instrument: model.BtcUsdt,
		Imbalance:  1.1,
		SampledAt:  time.Now(),
	}

	if err := w.HandleSample(sample); err != nil {
		t.Fatalf("HandleSample() error = %v", err)
	}

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestMetricsWriter_Lifecycle(t *testing.T) {
	cfg := config.WriterConfig{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	w := NewMetricsWriter(cfg, nil, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestMetricsWriter_Stats(t *testing.T) {
	w := NewMetricsWriter(testWriterConfig(), nil, nil)

	stats := w.Stats()

	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}
	if stats.Flushes != 0 {
		t.Errorf("initial Flushes = %d, want 0", stats.Flushes)
	}
}
