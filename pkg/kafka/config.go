package kafka

import (
	"time"
)

// Offset constants for ConsumerConfig.StartOffset.
const (
	FirstOffset int64 = -2 // oldest available message
	LastOffset  int64 = -1 // only messages produced after the group joins
)

// ConsumerConfig configures one ingest topic consumer. Zero tunables pick up
// the defaults applied by NewConsumer; Brokers, Topic and GroupID are
// required.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string

	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	CommitInterval    time.Duration
	StartOffset       int64
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	RebalanceTimeout  time.Duration
}

func withConsumerDefaults(cfg ConsumerConfig) ConsumerConfig {
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10e6 // 10MB
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 3 * time.Second
	}
	if cfg.CommitInterval <= 0 {
		cfg.CommitInterval = time.Second
	}
	if cfg.StartOffset == 0 {
		cfg.StartOffset = LastOffset
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 3 * time.Second
	}
	if cfg.RebalanceTimeout <= 0 {
		cfg.RebalanceTimeout = 30 * time.Second
	}
	return cfg
}

// ProducerConfig configures the record event producer.
type ProducerConfig struct {
	Brokers []string
	Topic   string

	BatchSize    int
	BatchTimeout time.Duration

	// RequiredAcks: 0 none, 1 leader, -1 all replicas.
	RequiredAcks int

	// Compression: none, gzip, snappy, lz4 or zstd.
	Compression string
}

func withProducerDefaults(cfg ProducerConfig) ProducerConfig {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.Compression == "" {
		cfg.Compression = "snappy"
	}
	return cfg
}
