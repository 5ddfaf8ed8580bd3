package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Kode-Rex/weave/pkg/metrics"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// compressionCodecs maps config names to kafka-go codecs. Unknown names fall
// back to snappy.
var compressionCodecs = map[string]kafka.Compression{
	"none":   0,
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

// Producer publishes record events to the event topic. Events are keyed by
// record ID so consumers see changes to one record in order.
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// NewProducer builds a writer with the configured batching and compression.
// Nothing is sent until the first publish.
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	cfg = withProducerDefaults(cfg)

	codec, ok := compressionCodecs[cfg.Compression]
	if !ok {
		codec = kafka.Snappy
	}

	return &Producer{
		logger: logger,
		topic:  cfg.Topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchSize:              cfg.BatchSize,
			BatchTimeout:           cfg.BatchTimeout,
			RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:            codec,
			AllowAutoTopicCreation: true,
		},
	}
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishRecordEvent publishes a single record event.
func (p *Producer) PublishRecordEvent(ctx context.Context, event *RecordEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRecordEvent")
	defer span.End()

	msg, err := p.eventMessage(ctx, event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error")
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish record event")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success")

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":  event.EventType,
		"record_id":   event.RecordID,
		"record_type": event.RecordType,
	}).Debug("Published record event")

	return nil
}

// PublishRecordEvents publishes a batch in a single write. The batch fails
// as a unit, so callers retry the whole slice.
func (p *Producer) PublishRecordEvents(ctx context.Context, events []*RecordEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRecordEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		msg, err := p.eventMessage(ctx, event)
		if err != nil {
			return err
		}
		messages[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error")
		p.logger.WithContext(ctx).WithError(err).
			WithField("batch_size", len(events)).
			Error("Failed to publish record event batch")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success")

	p.logger.WithContext(ctx).
		WithField("batch_size", len(events)).
		Debug("Published record event batch")

	return nil
}

// eventMessage serializes one event, keyed by record id for partition
// affinity, with filter headers and the current trace context stamped on so
// consumers can skip and correlate without unmarshalling the payload.
func (p *Producer) eventMessage(ctx context.Context, event *RecordEvent) (kafka.Message, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	headers := MessageHeaders{
		EventType:   event.EventType,
		RecordType:  event.RecordType,
		Operation:   event.Operation,
		TraceParent: tracing.GetTraceParent(ctx),
		TraceState:  tracing.GetTraceState(ctx),
	}

	kafkaHeaders := make([]kafka.Header, 0, 5)
	for _, h := range headers.ToKafkaHeaders() {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: h.Key, Value: h.Value})
	}

	return kafka.Message{
		Topic:   p.topic,
		Key:     []byte(event.RecordID),
		Value:   data,
		Headers: kafkaHeaders,
		Time:    event.Timestamp,
	}, nil
}
