package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dxtools/quotetap/internal/feed"
	"github.com/dxtools/quotetap/internal/model"
)

// Config holds batching settings for the quote recorder.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns default recorder settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     1000,
		FlushInterval: 5 * time.Second,
	}
}

// Metrics counts recorder activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// QuoteWriter consumes decoded quotes from a buffer and batch-inserts them
// into the quotes table.
type QuoteWriter struct {
	cfg    Config
	logger *slog.Logger

	// Input queue fed by subscription listeners
	input *feed.GrowableBuffer[model.Quote]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []quoteRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// quoteRow is the flattened database row for a quote event.
type quoteRow struct {
	ReceivedAt      int64 // µs since epoch
	Symbol          string
	Sequence        int64
	BidTime         int64 // ms since epoch (feed clock)
	BidExchangeCode string
	BidPrice        float64
	BidSize         float64
	AskTime         int64
	AskExchangeCode string
	AskPrice        float64
	AskSize         float64
	Scope           string
}

// NewQuoteWriter creates a new QuoteWriter.
func NewQuoteWriter(
	cfg Config,
	input *feed.GrowableBuffer[model.Quote],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *QuoteWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]quoteRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming quotes and writing to the database.
func (w *QuoteWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("quote recorder started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder, flushing what remains.
func (w *QuoteWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping quote recorder")

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
		w.logger.Info("quote recorder stopped")
	case <-ctx.Done():
		w.logger.Warn("quote recorder stop timed out")
	}

	// Drain whatever is still queued, then flush with the caller's
	// context; w.ctx is already canceled at this point.
	for _, q := range w.input.DrainTo(0) {
		row := w.transform(q)
		w.batchMu.Lock()
		w.batch = append(w.batch, row)
		w.batchMu.Unlock()
	}
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *QuoteWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *QuoteWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			q, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			w.handleQuote(q)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *QuoteWriter) flushLoop() {
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

// handleQuote transforms and adds a quote to the batch.
func (w *QuoteWriter) handleQuote(q model.Quote) {
	row := w.transform(q)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a Quote to a quoteRow.
func (w *QuoteWriter) transform(q model.Quote) quoteRow {
	return quoteRow{
		ReceivedAt:      q.ReceivedAt.UnixMicro(),
		Symbol:          q.Symbol,
		Sequence:        q.Sequence,
		BidTime:         q.BidTime,
		BidExchangeCode: q.BidExchangeCode,
		BidPrice:        q.BidPrice,
		BidSize:         q.BidSize,
		AskTime:         q.AskTime,
		AskExchangeCode: q.AskExchangeCode,
		AskPrice:        q.AskPrice,
		AskSize:         q.AskSize,
		Scope:           q.Scope.Wire(),
	}
}

// flush writes the current batch to the database.
func (w *QuoteWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 || w.db == nil {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]quoteRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed quotes",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *QuoteWriter) batchInsert(ctx context.Context, rows []quoteRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO quotes (received_at, symbol, sequence, bid_time, bid_exchange_code, bid_price, bid_size, ask_time, ask_exchange_code, ask_price, ask_size, scope)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (symbol, sequence) DO NOTHING
		`, r.ReceivedAt, r.Symbol, r.Sequence, r.BidTime, r.BidExchangeCode, r.BidPrice, r.BidSize, r.AskTime, r.AskExchangeCode, r.AskPrice, r.AskSize, r.Scope)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
