package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/book-aggregator/internal/config"
	"github.com/rickgao/book-aggregator/internal/model"
)

// metricsRow is the flattened form of a sample for the book_metrics table.
type metricsRow struct {
	CycleID      string
	Handle       int64
	Instrument   string
	VenueCount   int32
	Imbalance    float64
	BestBidVenue *string
	BestBidPrice *float64
	BestBidQty   *float64
	BestAskVenue *string
	BestAskPrice *float64
	BestAskQty   *float64
	BookTime     int64
	SampledAt    int64
}

// WriterMetrics tracks insert counters for one writer.
type WriterMetrics struct {
	Inserts int64
	Errors  int64
	Flushes int64
}

// MetricsWriter batches metrics samples and writes them via COPY.
type MetricsWriter struct {
	cfg    config.WriterConfig
	logger *slog.Logger

	db *pgxpool.Pool

	batch       []metricsRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewMetricsWriter creates a MetricsWriter over an open pool.
func NewMetricsWriter(cfg config.WriterConfig, db *pgxpool.Pool, logger *slog.Logger) *MetricsWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		batch:  make([]metricsRow, 0, cfg.BatchSize),
	}
}

// Start begins the periodic flush loop.
func (w *MetricsWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("metrics writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *MetricsWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping metrics writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("metrics writer stopped")
	case <-ctx.Done():
		w.logger.Warn("metrics writer stop timed out")
	}

	// Final flush
	w.flush(context.Background())

	return nil
}

// Stats returns current counters.
func (w *MetricsWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// HandleSample adds a sample to the batch, flushing when full. It
// implements sampler.SampleHandler.
func (w *MetricsWriter) HandleSample(sample model.MetricsSample) error {
	row := transform(sample)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
	return nil
}

// flushLoop periodically flushes the batch.
func (w *MetricsWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// transform flattens a sample into a row.
func transform(sample model.MetricsSample) metricsRow {
	row := metricsRow{
		CycleID:    sample.CycleID.String(),
		Handle:     int64(sample.Handle),
		Instrument: sample.Instrument.String(),
		VenueCount: int32(sample.VenueCount),
		Imbalance:  sample.Imbalance,
		BookTime:   sample.BookTime.UnixMicro(),
		SampledAt:  sample.SampledAt.UnixMicro(),
	}
	if l := sample.BestBid; l != nil {
		venue := string(l.Venue)
		row.BestBidVenue = &venue
		row.BestBidPrice = &l.Price
		row.BestBidQty = &l.Quantity
	}
	if l := sample.BestAsk; l != nil {
		venue := string(l.Venue)
		row.BestAskVenue = &venue
		row.BestAskPrice = &l.Price
		row.BestAskQty = &l.Quantity
	}
	return row
}

// flush writes the current batch to the database.
func (w *MetricsWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]metricsRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.copyRows(ctx, batch); err != nil {
		w.logger.Error("copy failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed metrics",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

var metricsColumns = []string{
	"cycle_id", "handle", "instrument", "venue_count", "imbalance",
	"best_bid_venue", "best_bid_price", "best_bid_qty",
	"best_ask_venue", "best_ask_price", "best_ask_qty",
	"book_ts", "sampled_at",
}

// copyRows bulk-inserts rows using the COPY protocol.
func (w *MetricsWriter) copyRows(ctx context.Context, rows []metricsRow) error {
	_, err := w.db.CopyFrom(
		ctx,
		pgx.Identifier{"book_metrics"},
		metricsColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				r.CycleID, r.Handle, r.Instrument, r.VenueCount, r.Imbalance,
				r.BestBidVenue, r.BestBidPrice, r.BestBidQty,
				r.BestAskVenue, r.BestAskPrice, r.BestAskQty,
				r.BookTime, r.SampledAt,
			}, nil
		}),
	)
	return err
}
