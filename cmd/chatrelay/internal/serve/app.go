package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocql/gocql"

	"chatrelay/internal/app/commands"
	"chatrelay/internal/app/handlers/messaging"
	"chatrelay/internal/app/middleware"
	"chatrelay/internal/app/outbox"
	"chatrelay/internal/app/policies"
	"chatrelay/internal/app/queries"
	"chatrelay/internal/app/realtime"
	"chatrelay/internal/domain/auth"
	"chatrelay/internal/domain/messages"
	"chatrelay/internal/infra/broker/kafka"
	"chatrelay/internal/infra/config"
	mongodb "chatrelay/internal/infra/db/mongo"
	"chatrelay/internal/infra/db/scylla"
	"chatrelay/internal/infra/db/sqlite"
	ginserver "chatrelay/internal/infra/http/gin"
	"chatrelay/internal/infra/obs"
	infraoutbox "chatrelay/internal/infra/outbox"
	"chatrelay/internal/infra/security"
	"chatrelay/internal/infra/storage/memory"
	"chatrelay/internal/infra/storage/s3"
	"chatrelay/internal/infra/ws"
)

type application struct {
	handlers ginserver.Handlers
	health   obs.HealthHandlers
	hub      *realtime.Hub
	commands commands.Bus
	queries  queries.Bus
	workers  []func(ctx context.Context) error
	closers  []func(ctx context.Context) error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.close(logger)
		}
	}()

	var mongoClient *mongodb.Client
	if cfg.NeedsMongo() {
		mongoClient, err = mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, mongoClient.Close)
		logger.Info("mongo connected", "database", cfg.Mongo.Database)
	}

	repo, err := app.messageRepository(ctx, cfg, mongoClient, logger)
	if err != nil {
		return nil, err
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled() {
		producer, err = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, nil)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func(context.Context) error { return producer.Close() })
	}

	box, err := app.eventOutbox(ctx, cfg, mongoClient, producer, logger)
	if err != nil {
		return nil, err
	}

	idempotency, err := idempotencyStore(ctx, cfg, mongoClient)
	if err != nil {
		return nil, err
	}

	resolver, err := sessionResolver(cfg, mongoClient)
	if err != nil {
		return nil, err
	}

	var uploader policies.ImageUploader
	if cfg.S3.Enabled() {
		s3Uploader, err := s3.NewUploader(cfg.S3, logger)
		if err != nil {
			return nil, err
		}
		uploader = s3Uploader
	}

	hub := realtime.NewHub(realtime.NewRegistry(), nil, logger)
	commandBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()
	messaging.Register(commandBus, queryBus, messaging.Dependencies{
		Messages: repo,
		Pusher:   hub,
		Uploader: uploader,
		Outbox:   box,
		Encoder:  outbox.JSONEventEncoder{},
		Logger:   logger,
	})

	app.commands = middleware.ChainCommands(
		commandBus,
		middleware.Logging(logger),
		middleware.Authorization(middleware.ActorAuthorizer{}),
		middleware.Idempotency(idempotency, middleware.JSONResultCodec{}, logger),
		middleware.OutboxFlush(box, logger),
	)
	app.queries = middleware.ChainQueries(
		queryBus,
		middleware.QueryLogging(logger),
		middleware.QueryAuthorization(middleware.ActorAuthorizer{}),
	)
	hub.SetCommandBus(app.commands)
	app.hub = hub

	app.health = obs.HealthHandlers{Ready: repo.Ping, Timeout: 2 * time.Second}
	app.handlers = ginserver.Handlers{
		Messages: ginserver.MessageHandler{Commands: app.commands, Queries: app.queries, Logger: logger},
		Presence: ginserver.PresenceHandler{Source: hub},
		Socket: ginserver.SocketHandler{
			Hub:      hub,
			Upgrader: ws.NewUpgrader(cfg.CORSOrigins),
			Options: ws.Options{
				SendBuffer:   cfg.WS.SendBuffer,
				PingInterval: cfg.WS.PingInterval,
				WriteTimeout: cfg.WS.WriteTimeout,
				ReadLimit:    cfg.WS.ReadLimit,
				Logger:       logger,
			},
			Logger: logger,
		},
		AuthMiddleware: ginserver.AuthMiddleware{
			Resolver:    resolver,
			TrustHeader: cfg.Auth.Mode == config.AuthHeader,
			Logger:      logger,
		}.Handle,
	}
	return app, nil
}

func (a *application) messageRepository(ctx context.Context, cfg config.Config, mongoClient *mongodb.Client, logger *slog.Logger) (messages.Repository, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return repo.Close() })
		return repo, nil
	case config.DriverMongo:
		repo := mongodb.NewMessageRepository(mongoClient.DB)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	case config.DriverScylla:
		session, err := scylla.NewSession(ctx, cfg.Scylla, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeSession(session))
		return scylla.NewMessageRepository(session, logger), nil
	case config.DriverMemory:
		return memory.NewMessageRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// eventOutbox picks where domain events wait before reaching Kafka: the Mongo
// outbox drained by a worker when both are available, otherwise an in-memory
// buffer flushed after each command.
func (a *application) eventOutbox(ctx context.Context, cfg config.Config, mongoClient *mongodb.Client, producer *kafka.Producer, logger *slog.Logger) (outbox.Outbox, error) {
	if producer == nil {
		return memory.NewOutbox(nil, memory.WithOutboxLogger(logger)), nil
	}
	if cfg.StoreDriver == config.DriverMongo {
		store := mongodb.NewOutboxStore(mongoClient.DB)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		worker := &infraoutbox.Worker{
			Store:       store,
			Producer:    producer,
			Interval:    cfg.Kafka.OutboxPollInterval,
			TopicPrefix: cfg.Kafka.TopicPrefix,
			Source:      infraoutbox.DefaultSource,
			Backoff:     cfg.Kafka.OutboxBackoff,
			Logger:      logger,
		}
		a.workers = append(a.workers, worker.Run)
		return store, nil
	}
	return memory.NewOutbox(infraoutbox.Publisher{
		Producer:    producer,
		TopicPrefix: cfg.Kafka.TopicPrefix,
		Source:      infraoutbox.DefaultSource,
	}, memory.WithOutboxLogger(logger)), nil
}

func idempotencyStore(ctx context.Context, cfg config.Config, mongoClient *mongodb.Client) (middleware.IdempotencyStore, error) {
	if cfg.StoreDriver != config.DriverMongo {
		return memory.NewIdempotencyStore(cfg.IdempotencyTTL), nil
	}
	store := mongodb.NewIdempotencyStore(mongoClient.DB, cfg.IdempotencyTTL)
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func sessionResolver(cfg config.Config, mongoClient *mongodb.Client) (auth.Resolver, error) {
	switch cfg.Auth.Mode {
	case config.AuthHeader:
		return security.HeaderResolver{}, nil
	case config.AuthStatic:
		return security.NewStaticResolver(cfg.Auth.Tokens), nil
	case config.AuthMongo:
		return mongodb.NewSessionResolver(mongoClient.DB, cfg.Auth.SessionCollection), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

func closeSession(s *gocql.Session) func(context.Context) error {
	return func(context.Context) error {
		s.Close()
		return nil
	}
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		logger.Warn("shutdown cleanup failed", "error", err)
	}
}
