package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/Kode-Rex/weave/pkg/tracing"
)

// MessageHandler processes one consumed message.
type MessageHandler func(ctx context.Context, msg *ReceivedMessage) error

// ReceivedMessage is one consumed message with its payload parsed up front,
// so handlers never touch raw bytes.
type ReceivedMessage struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   MessageHeaders

	// Change is set when the payload carries a record_type.
	Change *ChangeMessage

	// Data is the payload parsed as a generic map.
	Data map[string]any
}

// Consumer reads one ingest topic and hands every message to its handler.
// Offsets commit after handling regardless of the outcome: a message that
// cannot be parsed or processed is logged and skipped rather than wedging
// the partition.
type Consumer struct {
	config ConsumerConfig
	reader *kafka.Reader
	logger ectologger.Logger

	mu      sync.Mutex
	running bool
	handler MessageHandler
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewConsumer validates the config, applies tuning defaults and builds the
// reader. The brokers are not touched until Start.
func NewConsumer(config ConsumerConfig, logger ectologger.Logger) (*Consumer, error) {
	switch {
	case len(config.Brokers) == 0:
		return nil, errors.New("at least one broker is required")
	case config.Topic == "":
		return nil, errors.New("topic is required")
	case config.GroupID == "":
		return nil, errors.New("group ID is required")
	}
	config = withConsumerDefaults(config)

	return &Consumer{
		config: config,
		logger: logger,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           config.Brokers,
			Topic:             config.Topic,
			GroupID:           config.GroupID,
			MinBytes:          config.MinBytes,
			MaxBytes:          config.MaxBytes,
			MaxWait:           config.MaxWait,
			CommitInterval:    config.CommitInterval,
			StartOffset:       config.StartOffset,
			SessionTimeout:    config.SessionTimeout,
			HeartbeatInterval: config.HeartbeatInterval,
			RebalanceTimeout:  config.RebalanceTimeout,
			ErrorLogger: kafka.LoggerFunc(func(format string, args ...any) {
				logger.Errorf("kafka reader: "+format, args...)
			}),
		}),
	}, nil
}

// Start launches the consume loop. It returns an error when already running.
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.New("consumer is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.handler = handler
	c.running = true

	c.wg.Add(1)
	go c.run(ctx)

	c.logger.WithFields(map[string]any{
		"topic":    c.config.Topic,
		"group_id": c.config.GroupID,
	}).Info("Kafka consumer started")
	return nil
}

// Stop halts the consume loop, waits for the in-flight message and closes
// the reader.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	c.cancel()
	c.wg.Wait()
	c.running = false

	if err := c.reader.Close(); err != nil {
		return errors.Wrap(err, "close kafka reader")
	}

	c.logger.WithField("topic", c.config.Topic).Info("Kafka consumer stopped")
	return nil
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()

	for ctx.Err() == nil {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.WithError(err).Error("Failed to fetch message")
			continue
		}

		c.dispatch(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.WithError(err).Errorf("Failed to commit message at offset %d", msg.Offset)
		}
	}
}

// dispatch parses one fetched message and runs the handler on a context that
// resumes the trace the producer stamped into the headers. Parse and handler
// failures are logged; the loop commits either way.
func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) {
	received, err := decodeMessage(msg)
	if err != nil {
		c.logger.WithError(err).Errorf("Failed to parse message at offset %d", msg.Offset)
		return
	}

	ctx = tracing.WithRemoteTrace(ctx, received.Headers.TraceParent, received.Headers.TraceState)
	if err := c.handler(ctx, received); err != nil {
		c.logger.WithError(err).Errorf("Handler failed for message at offset %d", msg.Offset)
	}
}

func decodeMessage(msg kafka.Message) (*ReceivedMessage, error) {
	received := &ReceivedMessage{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
	}

	if err := json.Unmarshal(msg.Value, &received.Data); err != nil {
		return nil, errors.Wrap(err, "parse message payload")
	}

	headers := make([]Header, len(msg.Headers))
	for i, h := range msg.Headers {
		headers[i] = Header{Key: h.Key, Value: h.Value}
	}
	received.Headers = ExtractHeaders(headers)

	if change, err := ParseChangeMessage(msg.Value); err == nil && change.RecordType != "" {
		received.Change = change
	}

	return received, nil
}
