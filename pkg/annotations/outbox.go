package annotations

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Kode-Rex/weave/pkg/kafka"
	"github.com/Kode-Rex/weave/pkg/metrics"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// Outbox entry statuses.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Entry is one sync intent recorded in the same transaction as the
// primary-store write it mirrors.
type Entry struct {
	ID          string     `db:"id" json:"id"`
	RecordType  string     `db:"record_type" json:"record_type"`
	RecordID    string     `db:"record_id" json:"record_id"`
	Operation   string     `db:"operation" json:"operation"`
	Status      string     `db:"status" json:"status"`
	Attempts    int        `db:"attempts" json:"attempts"`
	LastError   *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// OutboxStore persists sync intents. Enqueue participates in the caller's
// transaction when one is open on the context.
type OutboxStore interface {
	Enqueue(ctx context.Context, entry *Entry) error
	ListPending(ctx context.Context, limit int) ([]*Entry, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
	CountPending(ctx context.Context) (int, error)
}

// EventProducer publishes the record event emitted after each dispatch.
// Satisfied by the Kafka producer.
type EventProducer interface {
	PublishRecordEvent(ctx context.Context, event *kafka.RecordEvent) error
}

// WorkerConfig tunes the outbox worker loop.
type WorkerConfig struct {
	// Interval between drain passes. Defaults to 5s.
	Interval time.Duration

	// BatchSize caps entries claimed per pass. Defaults to 100.
	BatchSize int
}

// Worker drains the outbox in the background, dispatching each pending
// entry and recording the outcome. Dropping the drain loop out of the
// request path keeps primary-store writes fast and makes sync retryable.
type Worker struct {
	store      OutboxStore
	dispatcher *Dispatcher
	producer   EventProducer
	logger     ectologger.Logger
	interval   time.Duration
	batchSize  int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorker wires an outbox worker. producer may be nil when no event bus
// is configured.
func NewWorker(store OutboxStore, dispatcher *Dispatcher, producer EventProducer, logger ectologger.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	return &Worker{
		store:      store,
		dispatcher: dispatcher,
		producer:   producer,
		logger:     logger,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
	}
}

// Start launches the drain loop. It returns an error when already running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("outbox worker is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.WithContext(ctx).WithField("interval", w.interval.String()).Info("Outbox worker started")
	return nil
}

// Stop halts the drain loop and waits for the in-flight pass to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.cancel()
	w.wg.Wait()
	w.running = false

	w.logger.Info("Outbox worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil {
				w.logger.WithContext(ctx).WithError(err).Error("Outbox drain failed")
			}
		}
	}
}

// Drain processes one batch of pending entries and returns how many it
// handled. Exported so the sync CLI verb and tests can run a single pass.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "annotations.Worker.Drain")
	defer span.End()

	entries, err := w.store.ListPending(ctx, w.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "list pending outbox entries")
	}

	for _, entry := range entries {
		w.process(ctx, entry)
	}

	if pending, err := w.store.CountPending(ctx); err == nil {
		metrics.OutboxPending.Set(float64(pending))
	}

	return len(entries), nil
}

func (w *Worker) process(ctx context.Context, entry *Entry) {
	err := w.dispatcher.DispatchByID(ctx, entry.Operation, entry.RecordType, entry.RecordID)
	if err != nil {
		w.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_type": entry.RecordType,
			"record_id":   entry.RecordID,
			"operation":   entry.Operation,
		}).Error("Outbox dispatch failed")

		if markErr := w.store.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
			w.logger.WithContext(ctx).WithError(markErr).WithField("entry_id", entry.ID).Error("Failed to mark outbox entry failed")
		}
		metrics.OutboxProcessedTotal.WithLabelValues(StatusFailed).Inc()
		w.publishEvent(ctx, entry, err)
		return
	}

	if markErr := w.store.MarkProcessed(ctx, entry.ID); markErr != nil {
		w.logger.WithContext(ctx).WithError(markErr).WithField("entry_id", entry.ID).Error("Failed to mark outbox entry processed")
	}
	metrics.OutboxProcessedTotal.WithLabelValues(StatusProcessed).Inc()
	w.publishEvent(ctx, entry, nil)
}

// publishEvent emits the record event for observers. Publish failures are
// logged and dropped so event-bus trouble cannot stall the outbox.
func (w *Worker) publishEvent(ctx context.Context, entry *Entry, dispatchErr error) {
	if w.producer == nil {
		return
	}

	event := &kafka.RecordEvent{
		EventType:  kafka.EventRecordSynced,
		RecordType: entry.RecordType,
		RecordID:   entry.RecordID,
		Operation:  entry.Operation,
		Timestamp:  time.Now().UTC(),
	}
	if dispatchErr != nil {
		event.EventType = kafka.EventRecordSyncFailed
		event.Error = dispatchErr.Error()
	}

	if err := w.producer.PublishRecordEvent(ctx, event); err != nil {
		w.logger.WithContext(ctx).WithError(err).WithField("record_type", entry.RecordType).Warn("Failed to publish record event")
	}
}
