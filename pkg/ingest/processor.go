// Package ingest replays record changes and content documents from Kafka.
// Record envelopes upsert through the repositories so every change lands in
// the outbox; content documents are buffered and bulk-written to the
// retrieval indices.
package ingest

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Kode-Rex/weave/pkg/kafka"
	"github.com/Kode-Rex/weave/pkg/metrics"
	"github.com/Kode-Rex/weave/pkg/search"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// ChangeHandler applies one record change envelope.
type ChangeHandler func(ctx context.Context, change *kafka.ChangeMessage) error

// BulkIndexer writes content documents to the retrieval indices. Satisfied by
// the search client.
type BulkIndexer interface {
	BulkIndex(ctx context.Context, docs []search.BulkDoc) error
}

const defaultBatchSize = 50

// Processor routes consumed messages to the per-record-type handlers and the
// document batch buffer.
type Processor struct {
	logger    ectologger.Logger
	bulk      BulkIndexer
	handlers  map[string]ChangeHandler
	batchSize int

	mu      sync.Mutex
	pending []search.BulkDoc
}

// NewProcessor creates a new ingest processor. batchSize caps the document
// buffer before a bulk write; values below 1 fall back to the default.
func NewProcessor(logger ectologger.Logger, bulk BulkIndexer, batchSize int) *Processor {
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	return &Processor{
		logger:    logger,
		bulk:      bulk,
		handlers:  make(map[string]ChangeHandler),
		batchSize: batchSize,
	}
}

// RegisterHandler binds a change handler to a record type.
func (p *Processor) RegisterHandler(recordType string, handler ChangeHandler) {
	p.handlers[recordType] = handler
}

// ProcessMessage handles one consumed message. Malformed or unrecognized
// payloads are logged and skipped so the consumer never wedges on them.
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.ReceivedMessage) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Processor.ProcessMessage")
	defer span.End()

	if msg.Change != nil && msg.Change.RecordType != "" {
		return p.handleChange(ctx, msg)
	}

	if doc, err := kafka.ParseDocumentMessage(msg.Value); err == nil && doc.Index != "" {
		return p.handleDocument(ctx, msg.Topic, doc)
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":  msg.Topic,
		"offset": msg.Offset,
	}).Warn("Unrecognized message payload, skipping")
	metrics.KafkaMessagesConsumed.WithLabelValues(msg.Topic, "skipped").Inc()
	return nil
}

func (p *Processor) handleChange(ctx context.Context, msg *kafka.ReceivedMessage) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Processor.handleChange")
	defer span.End()

	change := msg.Change
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"record_type": change.RecordType,
		"record_id":   change.RecordID,
		"operation":   change.Operation,
	})

	handler, ok := p.handlers[change.RecordType]
	if !ok {
		log.Warn("No handler registered for record type, skipping")
		metrics.KafkaMessagesConsumed.WithLabelValues(msg.Topic, "skipped").Inc()
		return nil
	}

	if err := handler(ctx, change); err != nil {
		log.WithError(err).Error("Failed to apply record change")
		metrics.KafkaMessagesConsumed.WithLabelValues(msg.Topic, "failed").Inc()
		return err
	}

	metrics.KafkaMessagesConsumed.WithLabelValues(msg.Topic, "processed").Inc()
	return nil
}

func (p *Processor) handleDocument(ctx context.Context, topic string, doc *kafka.DocumentMessage) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Processor.handleDocument")
	defer span.End()

	if doc.ID == "" {
		p.logger.WithContext(ctx).WithField("index", doc.Index).Warn("Document message missing id, skipping")
		metrics.KafkaMessagesConsumed.WithLabelValues(topic, "skipped").Inc()
		return nil
	}

	body := map[string]any{"content": doc.Content}
	if doc.Meta != nil {
		body["meta"] = doc.Meta
	}
	if !doc.Timestamp.IsZero() {
		body["timestamp"] = doc.Timestamp
	}

	p.mu.Lock()
	p.pending = append(p.pending, search.BulkDoc{Index: doc.Index, ID: doc.ID, Doc: body})
	full := len(p.pending) >= p.batchSize
	p.mu.Unlock()

	metrics.KafkaMessagesConsumed.WithLabelValues(topic, "processed").Inc()

	if full {
		return p.Flush(ctx)
	}
	return nil
}

// Flush writes any buffered documents. The serve loop calls it on shutdown so
// a partial batch is not stranded.
func (p *Processor) Flush(ctx context.Context) error {
	p.mu.Lock()
	docs := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(docs) == 0 {
		return nil
	}

	if err := p.bulk.BulkIndex(ctx, docs); err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to bulk index %d documents", len(docs))
		return err
	}

	p.logger.WithContext(ctx).WithField("count", len(docs)).Debug("Flushed document batch")
	return nil
}

// PendingDocuments returns the number of buffered documents.
func (p *Processor) PendingDocuments() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
