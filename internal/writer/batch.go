package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/kucoin-data/internal/metrics"
	"github.com/rickgao/kucoin-data/internal/router"
)

// table describes how inputs of type T become rows of type R in one table.
type table[T, R any] struct {
	name      string
	transform func(T) (R, error)
	insertSQL string
	args      func(R) []any
}

// batcher is the consume/flush engine shared by all writers.
type batcher[T, R any] struct {
	table   table[T, R]
	cfg     WriterConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Input from the event sink or poller
	input *router.GrowableBuffer[T]

	// Database
	db DB

	// Batching
	batch       []R
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// flushMu serializes flushes so rows reach the database in input order.
	flushMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats WriterMetrics
}

func newBatcher[T, R any](t table[T, R], cfg WriterConfig, input *router.GrowableBuffer[T], db DB, m *metrics.Metrics, logger *slog.Logger) *batcher[T, R] {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &batcher[T, R]{
		table:   t,
		cfg:     cfg,
		input:   input,
		db:      db,
		metrics: m,
		logger:  logger.With("table", t.name),
		batch:   make([]R, 0, cfg.BatchSize),
	}
}

// Start begins consuming inputs and writing to the database.
func (w *batcher[T, R]) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts the writer down, drains what is already buffered and flushes.
func (w *batcher[T, R]) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

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
	case <-ctx.Done():
		w.logger.Warn("writer stop timed out")
		return ctx.Err()
	}

	for {
		item, ok := w.input.TryReceive()
		if !ok {
			break
		}
		w.add(item)
	}
	w.flush()

	w.logger.Info("writer stopped", "stats", w.Stats())
	return nil
}

// Stats returns a copy of the writer counters.
func (w *batcher[T, R]) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

func (w *batcher[T, R]) consumeLoop() {
	defer w.wg.Done()

	for {
		item, ok := w.input.Receive(w.ctx)
		if !ok {
			return
		}
		if w.add(item) {
			w.flush()
		}
		w.metrics.SetBufferDepth(w.table.name, w.input.Len())
	}
}

func (w *batcher[T, R]) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// add transforms item and appends it to the batch. It reports whether the
// batch is full.
func (w *batcher[T, R]) add(item T) bool {
	row, err := w.table.transform(item)
	if err != nil {
		w.logger.Debug("skipping input", "error", err)
		w.batchMu.Lock()
		w.stats.Skipped++
		w.batchMu.Unlock()
		return false
	}

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// flush writes the current batch to the database.
func (w *batcher[T, R]) flush() {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]R, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.metrics.WriteError(w.table.name)
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	inserted := len(batch) - conflicts
	w.metrics.RowsInserted(w.table.name, inserted)

	w.batchMu.Lock()
	w.stats.Inserts += int64(inserted)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed rows",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using one pgx.Batch. Rows skipped by
// ON CONFLICT DO NOTHING are counted as conflicts.
func (w *batcher[T, R]) batchInsert(rows []R) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(w.table.insertSQL, w.table.args(r)...)
	}

	// The writer context is already cancelled during the final flush.
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
	defer cancel()

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
