package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/Kode-Rex/weave/config"
	"github.com/Kode-Rex/weave/internal/repositories/conversation"
	"github.com/Kode-Rex/weave/internal/repositories/meshuser"
	"github.com/Kode-Rex/weave/internal/repositories/message"
	"github.com/Kode-Rex/weave/internal/repositories/outbox"
	"github.com/Kode-Rex/weave/internal/repositories/slackchannel"
	"github.com/Kode-Rex/weave/internal/repositories/slackuser"
	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/backfill"
	"github.com/Kode-Rex/weave/pkg/cache"
	"github.com/Kode-Rex/weave/pkg/database"
	"github.com/Kode-Rex/weave/pkg/graph"
	"github.com/Kode-Rex/weave/pkg/logging"
	"github.com/Kode-Rex/weave/pkg/models"
	"github.com/Kode-Rex/weave/pkg/retrieval"
	"github.com/Kode-Rex/weave/pkg/search"
)

// app carries the wired stores and services shared by the serve, mcp and
// sync commands. Connections are opened by the connect helpers; buildCore
// assembles everything above them.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger

	db          database.DB
	cacheClient *cache.Client
	esClient    *search.Client
	graphClient *graph.Client

	registry      *annotations.Registry
	outboxRepo    *outbox.Repository
	slackUsers    *slackuser.Repository
	slackChannels *slackchannel.Repository
	meshUsers     *meshuser.Repository
	conversations *conversation.Repository
	messages      *message.Repository

	graphSyncer  *annotations.GraphSyncer
	searchSyncer *annotations.SearchSyncer
	dispatcher   *annotations.Dispatcher
	backfiller   *backfill.Service
	resolver     *retrieval.Resolver
	retriever    *retrieval.Service
}

// loadConfig reads .env when present and binds the environment onto the
// config struct.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return nil, errors.Wrap(err, "bind environment config")
	}
	return cfg, nil
}

// newApp loads config and builds the logger. The returned cleanup flushes
// buffered log output.
func newApp() (*app, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, closeLogs, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "build logger")
	}

	return &app{cfg: cfg, logger: logger}, closeLogs, nil
}

func (a *app) databaseConfig() database.Config {
	return database.Config{
		Driver:          a.cfg.DatabaseDriver,
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		UserName:        a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}
}

func (a *app) connectDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, a.databaseConfig(), a.logger)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func (a *app) connectCache(ctx context.Context) error {
	client, err := cache.NewClient(cache.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	a.cacheClient = client
	return nil
}

func (a *app) connectSearch(ctx context.Context) error {
	client, err := search.NewClient(search.Config{
		Addresses: a.cfg.ElasticsearchAddresses,
		Username:  a.cfg.ElasticsearchUser,
		Password:  a.cfg.ElasticsearchPassword,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		return errors.Wrap(err, "ping elasticsearch")
	}
	a.esClient = client
	return nil
}

func (a *app) connectGraph(ctx context.Context) error {
	client, err := graph.NewClient(graph.Config{
		Host:     a.cfg.GraphDBHost,
		Port:     a.cfg.GraphDBPort,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		return errors.Wrap(err, "verify neo4j connectivity")
	}
	a.graphClient = client
	return nil
}

// buildCore wires the repositories, registry, syncers, dispatcher, backfill
// sources and retrieval services. Every store connection must already be up.
func (a *app) buildCore() error {
	a.outboxRepo = outbox.NewRepository(a.db, a.logger, a.cfg.OutboxMaxAttempts)
	a.slackUsers = slackuser.NewRepository(a.db, a.outboxRepo, a.logger)
	a.slackChannels = slackchannel.NewRepository(a.db, a.outboxRepo, a.logger)
	a.meshUsers = meshuser.NewRepository(a.db, a.outboxRepo, a.logger)
	a.conversations = conversation.NewRepository(a.db, a.outboxRepo, a.logger)
	a.messages = message.NewRepository(a.db, a.logger)

	a.registry = annotations.NewRegistry()
	if err := models.RegisterAll(a.registry, models.Loaders{
		SlackUser:    a.slackUsers.Load,
		SlackChannel: a.slackChannels.Load,
		MeshUser:     a.meshUsers.Load,
		Conversation: a.conversations.Load,
	}); err != nil {
		return errors.Wrap(err, "register record types")
	}

	a.graphSyncer = annotations.NewGraphSyncer(a.registry, a.graphClient, a.logger)
	a.searchSyncer = annotations.NewSearchSyncer(a.registry, a.esClient, a.logger)
	a.dispatcher = annotations.NewDispatcher(a.registry, a.graphSyncer, a.searchSyncer, a.logger)

	a.backfiller = backfill.NewService(a.dispatcher, a.logger)
	a.backfiller.Register(models.KeySlackUser, backfill.SourceFunc(func(ctx context.Context, page, pageSize int) ([]any, int, error) {
		resp, err := a.slackUsers.List(ctx, true, page, pageSize)
		if err != nil {
			return nil, 0, err
		}
		records := make([]any, len(resp.Items))
		for i := range resp.Items {
			records[i] = &resp.Items[i]
		}
		return records, resp.TotalCount, nil
	}))
	a.backfiller.Register(models.KeySlackChannel, backfill.SourceFunc(func(ctx context.Context, page, pageSize int) ([]any, int, error) {
		resp, err := a.slackChannels.List(ctx, true, page, pageSize)
		if err != nil {
			return nil, 0, err
		}
		records := make([]any, len(resp.Items))
		for i := range resp.Items {
			records[i] = &resp.Items[i]
		}
		return records, resp.TotalCount, nil
	}))
	a.backfiller.Register(models.KeyMeshUser, backfill.SourceFunc(func(ctx context.Context, page, pageSize int) ([]any, int, error) {
		resp, err := a.meshUsers.List(ctx, page, pageSize)
		if err != nil {
			return nil, 0, err
		}
		records := make([]any, len(resp.Items))
		for i := range resp.Items {
			records[i] = &resp.Items[i]
		}
		return records, resp.TotalCount, nil
	}))
	a.backfiller.Register(models.KeyConversation, backfill.SourceFunc(func(ctx context.Context, page, pageSize int) ([]any, int, error) {
		resp, err := a.conversations.List(ctx, page, pageSize)
		if err != nil {
			return nil, 0, err
		}
		records := make([]any, len(resp.Items))
		for i := range resp.Items {
			records[i] = &resp.Items[i]
		}
		return records, resp.TotalCount, nil
	}))

	a.resolver = retrieval.NewResolver(a.slackUsers, a.meshUsers, a.logger)
	a.retriever = retrieval.NewService(a.esClient, a.cacheClient, a.logger, retrieval.Config{
		Indices:  a.cfg.RetrievalIndices,
		Size:     a.cfg.RetrievalMaxDocuments,
		CacheTTL: time.Duration(a.cfg.CacheTTLSeconds) * time.Second,
	})

	return nil
}

// registerDI publishes the request-scoped services to the default DI
// container resolved by the HTTP handlers.
func (a *app) registerDI() error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return errors.Wrap(err, "create DI container")
	}
	if err := ectoinject.RegisterInstance[*retrieval.Resolver](container, a.resolver); err != nil {
		return errors.Wrap(err, "register identity resolver")
	}
	if err := ectoinject.RegisterInstance[*retrieval.Service](container, a.retriever); err != nil {
		return errors.Wrap(err, "register retrieval service")
	}
	if err := ectoinject.RegisterInstance[*annotations.SearchSyncer](container, a.searchSyncer); err != nil {
		return errors.Wrap(err, "register search syncer")
	}
	if err := ectoinject.RegisterInstance[*annotations.Dispatcher](container, a.dispatcher); err != nil {
		return errors.Wrap(err, "register dispatcher")
	}
	if err := ectoinject.RegisterInstance[*backfill.Service](container, a.backfiller); err != nil {
		return errors.Wrap(err, "register backfill service")
	}
	if err := ectoinject.RegisterInstance[*slackuser.Repository](container, a.slackUsers); err != nil {
		return errors.Wrap(err, "register slack user repository")
	}
	return nil
}

// closeStores shuts the store connections down in reverse connect order.
// Each close is best effort; a failed close must not mask the others.
func (a *app) closeStores(ctx context.Context) {
	if a.graphClient != nil {
		if err := a.graphClient.Close(ctx); err != nil {
			a.logger.WithError(err).Warn("Failed to close neo4j connection")
		}
	}
	if a.cacheClient != nil {
		if err := a.cacheClient.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close redis connection")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close database connection")
		}
	}
}

// addr returns the HTTP listen address.
func (a *app) addr() string {
	return fmt.Sprintf(":%d", a.cfg.Port)
}
