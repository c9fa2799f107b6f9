// Package sampler drives the refresh cadence: on a fixed interval it fans
// a refresh out across every registered book, records the resulting
// imbalance into a bounded per-book history, and hands derived-metrics
// samples to an optional handler.
package sampler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/book-aggregator/internal/book"
	"github.com/rickgao/book-aggregator/internal/model"
	"github.com/rickgao/book-aggregator/internal/timeseries"
)

// SampleHandler receives the sample produced for each refreshed book.
type SampleHandler interface {
	HandleSample(sample model.MetricsSample) error
}

// SampleHandlerFunc is a function adapter for SampleHandler.
type SampleHandlerFunc func(model.MetricsSample) error

func (f SampleHandlerFunc) HandleSample(s model.MetricsSample) error {
	return f(s)
}

// Config holds sampler configuration.
type Config struct {
	Interval        time.Duration // Refresh interval (default: 1s)
	Concurrency     int           // Max concurrent book refreshes (default: 4)
	HistoryCapacity int           // Per-book history bound (default: 100000)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:        time.Second,
		Concurrency:     4,
		HistoryCapacity: timeseries.DefaultCapacity,
	}
}

// Sampler periodically refreshes every book in a registry.
type Sampler struct {
	cfg      Config
	registry *book.Registry
	handler  SampleHandler
	logger   *slog.Logger

	// Per-book imbalance history keyed by book server time (epoch
	// milliseconds). The arrays are not internally locked; histMu
	// serializes every access.
	histMu    sync.Mutex
	histories map[uint64]*timeseries.Array[int64, float64]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Sampler over a registry. handler may be nil.
func New(cfg Config, registry *book.Registry, handler SampleHandler, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		cfg:       cfg,
		registry:  registry,
		handler:   handler,
		logger:    logger,
		histories: make(map[uint64]*timeseries.Array[int64, float64]),
	}
}

// Start begins the sampling loop.
func (s *Sampler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("sampler started",
		"interval", s.cfg.Interval,
		"concurrency", s.cfg.Concurrency,
		"books", s.registry.Len(),
	)

	return nil
}

// Stop gracefully shuts down the sampler.
func (s *Sampler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sampler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main sampling loop.
func (s *Sampler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Sample immediately on start.
	s.sampleAll()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sampleAll()
		}
	}
}

// sampleAll refreshes every registered book with bounded concurrency. A
// failed book is logged and skipped; it does not stop the other books'
// refreshes for the cycle.
func (s *Sampler) sampleAll() {
	start := time.Now()
	cycleID := uuid.New()

	handles := s.registry.Handles()
	if len(handles) == 0 {
		s.logger.Debug("no books registered")
		return
	}

	var refreshed, failed atomic.Int64

	g, ctx := errgroup.WithContext(s.ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, handle := range handles {
		b, ok := s.registry.Get(handle)
		if !ok {
			continue
		}

		g.Go(func() error {
			if err := s.sampleBook(ctx, cycleID, handle, b); err != nil {
				s.logger.Warn("failed to sample book",
					"handle", handle,
					"instrument", b.Instrument().String(),
					"err", err,
				)
				failed.Add(1)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}

	g.Wait()

	s.logger.Info("sample cycle complete",
		"cycle", cycleID,
		"books", len(handles),
		"refreshed", refreshed.Load(),
		"failed", failed.Load(),
		"duration", time.Since(start),
	)
}

// sampleBook refreshes one book, records its imbalance, and hands the
// sample off.
func (s *Sampler) sampleBook(ctx context.Context, cycleID uuid.UUID, handle uint64, b *book.AggregatedOrderBook) error {
	if err := b.Refresh(ctx); err != nil {
		return err
	}

	sample := model.MetricsSample{
		CycleID:    cycleID,
		Handle:     handle,
		Instrument: b.Instrument(),
		VenueCount: len(b.Venues()),
		Imbalance:  b.Imbalance(),
		BookTime:   b.LastUpdateTime(),
		SampledAt:  time.Now(),
	}
	if pairs := b.BestLevels(); len(pairs) > 0 {
		sample.BestBid = pairs[0].Bid
		sample.BestAsk = pairs[0].Ask
	}

	s.record(handle, sample)

	if s.handler != nil {
		if err := s.handler.HandleSample(sample); err != nil {
			return err
		}
	}

	return nil
}

// record appends the sample's imbalance to the book's history.
func (s *Sampler) record(handle uint64, sample model.MetricsSample) {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	hist, ok := s.histories[handle]
	if !ok {
		hist = timeseries.NewWithCapacity[int64, float64](s.cfg.HistoryCapacity)
		s.histories[handle] = hist
	}

	key := sample.BookTime.UnixMilli()
	if err := hist.Insert(key, sample.Imbalance); err != nil {
		if errors.Is(err, timeseries.ErrKeyExists) {
			// Venue clock went backwards onto an already-stored key.
			s.logger.Debug("history key collision, sample dropped",
				"handle", handle,
				"key", key,
			)
			return
		}
		s.logger.Warn("failed to record history", "handle", handle, "err", err)
	}
}

// ImbalanceAt returns the recorded imbalance at or before the given book
// time for a handle.
func (s *Sampler) ImbalanceAt(handle uint64, at time.Time) (float64, bool) {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	hist, ok := s.histories[handle]
	if !ok {
		return 0, false
	}
	_, v, ok := hist.LastValueAtOrBefore(at.UnixMilli())
	return v, ok
}

// ImbalanceRange returns the recorded (book time, imbalance) pairs with
// lower <= t < upper for a handle, ascending.
func (s *Sampler) ImbalanceRange(handle uint64, lower, upper time.Time) []model.ImbalancePoint {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	hist, ok := s.histories[handle]
	if !ok {
		return nil
	}

	var points []model.ImbalancePoint
	for k, v := range hist.RangeQuery(lower.UnixMilli(), upper.UnixMilli()) {
		points = append(points, model.ImbalancePoint{
			Time:      time.UnixMilli(k),
			Imbalance: v,
		})
	}
	return points
}
