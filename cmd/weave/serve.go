package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/database"
	"github.com/Kode-Rex/weave/pkg/ingest"
	"github.com/Kode-Rex/weave/pkg/kafka"
	"github.com/Kode-Rex/weave/pkg/middleware"
	"github.com/Kode-Rex/weave/pkg/routes/contextapi"
	"github.com/Kode-Rex/weave/pkg/routes/health"
	"github.com/Kode-Rex/weave/pkg/routes/recordsearch"
	"github.com/Kode-Rex/weave/pkg/routes/recordsync"
	slackuserroute "github.com/Kode-Rex/weave/pkg/routes/slackuser"
	"github.com/Kode-Rex/weave/pkg/startup"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, outbox worker and Kafka consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// server holds the serve-only moving parts on top of the shared app wiring.
type server struct {
	app    *app
	cancel context.CancelFunc

	echo      *echo.Echo
	checker   *health.Checker
	producer  *kafka.Producer
	worker    *annotations.Worker
	processor *ingest.Processor
	consumers []*kafka.Consumer
}

func runServe() error {
	a, closeLogs, err := newApp()
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTracing, err := tracing.Init(runCtx, tracing.Config{
		ServiceName:  a.cfg.AppName,
		Environment:  a.cfg.Environment,
		Exporter:     a.cfg.TraceExporter,
		OTLPEndpoint: a.cfg.OTLPEndpoint,
		OTLPProtocol: a.cfg.OTLPProtocol,
		OTLPInsecure: a.cfg.OTLPInsecure,
	})
	if err != nil {
		return errors.Wrap(err, "init tracing")
	}
	defer func() {
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelFlush()
		if err := shutdownTracing(flushCtx); err != nil {
			a.logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	s := &server{app: a, cancel: cancel}

	boot := startup.New(a.logger, a.cfg.StartupMaxAttempts)
	boot.AddDependency(startup.Func{Name: "database", StartFunc: s.startDatabase, StopFunc: s.stopDatabase})
	boot.AddDependency(startup.Func{Name: "redis", StartFunc: a.connectCache, StopFunc: s.stopCache})
	boot.AddDependency(startup.Func{Name: "elasticsearch", StartFunc: a.connectSearch})
	boot.AddDependency(startup.Func{Name: "neo4j", StartFunc: a.connectGraph, StopFunc: s.stopGraph})
	boot.AddDependency(startup.Func{
		Name:      "core",
		Needs:     []string{"database", "redis", "elasticsearch", "neo4j"},
		StartFunc: s.startCore,
	})
	boot.AddDependency(startup.Func{Name: "outbox-worker", Needs: []string{"core"}, StartFunc: s.startWorker, StopFunc: s.stopWorker})
	boot.AddDependency(startup.Func{Name: "kafka-consumer", Needs: []string{"core"}, StartFunc: s.startConsumers, StopFunc: s.stopConsumers})
	boot.AddDependency(startup.Func{Name: "http-server", Needs: []string{"core"}, StartFunc: s.startHTTP, StopFunc: s.stopHTTP})

	if err := boot.Start(runCtx); err != nil {
		return err
	}
	s.checker.SetReady(true)
	a.logger.Infof("Weave is up on %s", a.addr())

	<-runCtx.Done()
	a.logger.Info("Shutting down")

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	return boot.Stop(stopCtx)
}

// startDatabase connects the primary store and applies pending relational
// migrations before anything else touches the schema.
func (s *server) startDatabase(ctx context.Context) error {
	if err := s.app.connectDatabase(ctx); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(s.app.db.Unsafe().DB, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "create migration driver")
	}

	ms := database.NewMigrationService(s.app.logger, &database.MigrationConfig{
		MigrationFolderPath: s.app.cfg.DatabaseMigrationFolderPath,
		Version:             uint(s.app.cfg.DatabaseMigrationVersion),
		Force:               s.app.cfg.DatabaseMigrationForce,
		AutoRollback:        s.app.cfg.DatabaseMigrationAutoRollback,
	})
	return ms.Migrate(s.app.cfg.DatabaseName, driver)
}

func (s *server) stopDatabase(ctx context.Context) error {
	if s.app.db == nil {
		return nil
	}
	return s.app.db.Close()
}

func (s *server) stopCache(ctx context.Context) error {
	if s.app.cacheClient == nil {
		return nil
	}
	return s.app.cacheClient.Close()
}

func (s *server) stopGraph(ctx context.Context) error {
	if s.app.graphClient == nil {
		return nil
	}
	return s.app.graphClient.Close(ctx)
}

func (s *server) startCore(ctx context.Context) error {
	if err := s.app.buildCore(); err != nil {
		return err
	}
	return s.app.registerDI()
}

// startWorker drains the sync outbox in the background and publishes record
// events for downstream observers.
func (s *server) startWorker(ctx context.Context) error {
	if !s.app.cfg.OutboxWorkerEnabled {
		s.app.logger.Info("Outbox worker disabled, skipping")
		return nil
	}

	s.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      s.app.cfg.KafkaBrokers,
		Topic:        s.app.cfg.KafkaEventsTopic,
		BatchSize:    s.app.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(s.app.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: s.app.cfg.KafkaRequiredAcks,
		Compression:  s.app.cfg.KafkaCompression,
	}, s.app.logger)

	s.worker = annotations.NewWorker(s.app.outboxRepo, s.app.dispatcher, s.producer, s.app.logger, annotations.WorkerConfig{
		Interval:  s.app.cfg.OutboxInterval,
		BatchSize: s.app.cfg.OutboxBatchSize,
	})
	return s.worker.Start(ctx)
}

func (s *server) stopWorker(ctx context.Context) error {
	var firstErr error
	if s.worker != nil {
		if err := s.worker.Stop(); err != nil {
			firstErr = err
		}
	}
	if s.producer != nil {
		if err := s.producer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// startConsumers runs one consumer per ingest topic, all feeding the shared
// processor so record changes and content documents use the same handler
// registry and batch buffer.
func (s *server) startConsumers(ctx context.Context) error {
	if !s.app.cfg.KafkaConsumerEnabled {
		s.app.logger.Info("Kafka consumer disabled, skipping")
		return nil
	}

	s.processor = ingest.NewProcessor(s.app.logger, s.app.esClient, s.app.cfg.IngestBatchSize)
	ingest.RegisterRepositoryHandlers(s.processor, s.app.slackUsers, s.app.slackChannels, s.app.meshUsers, s.app.logger)

	topics := []string{s.app.cfg.KafkaRecordsTopic, s.app.cfg.KafkaDocumentsTopic}
	consumers := make([]*kafka.Consumer, 0, len(topics))
	for _, topic := range topics {
		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: s.app.cfg.KafkaBrokers,
			Topic:   topic,
			GroupID: s.app.cfg.KafkaConsumerGroup,
		}, s.app.logger)
		if err != nil {
			return errors.Wrapf(err, "create consumer for %s", topic)
		}
		consumers = append(consumers, consumer)
	}

	for i, consumer := range consumers {
		if err := consumer.Start(ctx, s.processor.ProcessMessage); err != nil {
			return errors.Wrapf(err, "start consumer for %s", topics[i])
		}
		s.consumers = append(s.consumers, consumer)
	}
	return nil
}

// stopConsumers stops the consumers then flushes the processor so a partial
// document batch is not stranded.
func (s *server) stopConsumers(ctx context.Context) error {
	var firstErr error
	for _, consumer := range s.consumers {
		if err := consumer.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.consumers = nil

	if s.processor != nil {
		if err := s.processor.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *server) startHTTP(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(s.app.logger)
	e.Use(middleware.Context())
	e.Use(otelecho.Middleware(s.app.cfg.AppName))
	e.Use(middleware.Logger(s.app.logger))

	s.checker = health.NewChecker(s.app.db, s.app.cacheClient, s.app.esClient, s.app.graphClient, Version)
	s.checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	guard := middleware.APIKey(s.app.logger, s.app.cfg.MCPAPIKey)
	contextapi.Register(e.Group("/context", guard))

	api := e.Group("/api/v1", guard)
	recordsearch.Register(api.Group("/search"))
	recordsync.Register(api.Group("/sync"))
	slackuserroute.Register(api.Group("/slack-users"))

	httpSrv := &http.Server{
		Addr:           s.app.addr(),
		ReadTimeout:    time.Duration(s.app.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(s.app.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(s.app.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes: s.app.cfg.MaxHeaderBytes,
	}

	s.echo = e
	go func() {
		if err := e.StartServer(httpSrv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.app.logger.WithError(err).Error("HTTP server stopped unexpectedly")
			s.cancel()
		}
	}()

	s.app.logger.Infof("HTTP server listening on %s", s.app.addr())
	return nil
}

func (s *server) stopHTTP(ctx context.Context) error {
	if s.checker != nil {
		s.checker.SetReady(false)
	}
	if s.echo == nil {
		return nil
	}
	return s.echo.Shutdown(ctx)
}
