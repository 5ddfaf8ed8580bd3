package config

import "time"

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"weave-api"`
	Environment                   string `env:"ENVIRONMENT" env-default:"development"`
	Port                          int    `env:"PORT" env-default:"8000"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int    `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Auth
	MCPAPIKey string `env:"MCP_API_KEY" env-default:""`

	// PostgreSQL (Primary Store)
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"weave"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"migrations"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Graph Database (Neo4j)
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	// Elasticsearch (Search + Retrieval Indices)
	ElasticsearchAddresses []string `env:"ELASTICSEARCH_ADDRESSES" env-default:"http://localhost:9200"`
	ElasticsearchUser      string   `env:"ELASTICSEARCH_USER" env-default:""`
	ElasticsearchPassword  string   `env:"ELASTICSEARCH_PASSWORD" env-default:""`

	// Redis (Response Cache)
	RedisHost       string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort       int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword   string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB         int    `env:"REDIS_DB" env-default:"0"`
	CacheTTLSeconds int    `env:"CACHE_TTL" env-default:"3600"`

	// Retrieval
	RetrievalIndices      []string `env:"RETRIEVAL_INDICES" env-default:"google_drive_files,slack_messages,web_pages"`
	RetrievalMaxDocuments int      `env:"RETRIEVAL_MAX_DOCUMENTS" env-default:"5"`

	// Kafka Consumer (source system changes - ingestion)
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaRecordsTopic    string   `env:"KAFKA_RECORDS_TOPIC" env-default:"record-changes"`
	KafkaDocumentsTopic  string   `env:"KAFKA_DOCUMENTS_TOPIC" env-default:"content-documents"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"weave-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`
	IngestBatchSize      int      `env:"INGEST_BATCH_SIZE" env-default:"50"`

	// Kafka Producer (record events)
	KafkaEventsTopic  string `env:"KAFKA_EVENTS_TOPIC" env-default:"record-events"`
	KafkaBatchSize    int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Outbox Worker
	OutboxWorkerEnabled bool          `env:"OUTBOX_WORKER_ENABLED" env-default:"true"`
	OutboxInterval      time.Duration `env:"OUTBOX_INTERVAL" env-default:"5s"`
	OutboxBatchSize     int           `env:"OUTBOX_BATCH_SIZE" env-default:"100"`
	OutboxMaxAttempts   int           `env:"OUTBOX_MAX_ATTEMPTS" env-default:"5"`

	// Tracing
	TraceExporter string `env:"TRACE_EXPORTER" env-default:"console"` // "otlp" or "console"
	OTLPEndpoint  string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol  string `env:"OTLP_PROTOCOL" env-default:"grpc"` // "grpc" or "http"
	OTLPInsecure  bool   `env:"OTLP_INSECURE" env-default:"true"`
}
