package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/omnimsg/omnigate/internal/apikeys"
	"github.com/omnimsg/omnigate/internal/cache"
	"github.com/omnimsg/omnigate/internal/chat"
	"github.com/omnimsg/omnigate/internal/config"
	"github.com/omnimsg/omnigate/internal/db"
	"github.com/omnimsg/omnigate/internal/events"
	"github.com/omnimsg/omnigate/internal/handlers"
	"github.com/omnimsg/omnigate/internal/identifier"
	"github.com/omnimsg/omnigate/internal/ingest"
	"github.com/omnimsg/omnigate/internal/logger"
	"github.com/omnimsg/omnigate/internal/message"
	"github.com/omnimsg/omnigate/internal/routes"
	"github.com/omnimsg/omnigate/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideSchemes,
			providePublisher,
			provideValidationCache,
			provideAPIKeyStore,
			provideUsageRecorder,
			provideAPIKeyService,
			provideChatStore,
			provideChatService,
			provideMessageStore,
			provideMessageService,
			provideIngestService,
			provideRouteStore,
			provideRouteResolver,
			provideRouteService,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideChatsHandler),
			provideServerHandler(provideMessagesHandler),
			provideServerHandler(provideIngestHandler),
			provideServerHandler(provideAPIKeysHandler),
			provideServerHandler(provideRoutesHandler),
			provideServerHandler(provideStatsHandler),
			provideServer,
		),
		fx.Invoke(
			runMigrations,
			startUsageFlush,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideSchemes() *identifier.Registry { return identifier.Default() }

func providePublisher(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (events.Publisher, error) {
	if cfg.Events.URL == "" {
		log.Warn("no event broker configured, events will be dropped")
		return events.NewNoop(log), nil
	}
	pub, err := events.NewRabbit(context.Background(), log, events.DialOptions{URL: cfg.Events.URL}, cfg.Events.Exchange)
	if err != nil {
		return nil, fmt.Errorf("event broker connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return pub.Close() }})
	return pub, nil
}

func provideValidationCache(lc fx.Lifecycle, cfg config.Config) *cache.Cache[apikeys.Key] {
	c := cache.New[apikeys.Key](cache.Config{
		DefaultTTL:    cfg.Cache.TTL(),
		MaxSize:       cfg.Cache.MaxSize,
		SweepInterval: cfg.Cache.Sweep(),
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { c.StartSweep(); return nil },
		OnStop:  func(ctx context.Context) error { c.Close(); return nil },
	})
	return c
}

func provideAPIKeyStore(conn *pgxpool.Pool) apikeys.Store { return apikeys.NewPostgresStore(conn) }

func provideUsageRecorder(log *slog.Logger, store apikeys.Store) *apikeys.UsageRecorder {
	return apikeys.NewUsageRecorder(log, store)
}

func provideAPIKeyService(log *slog.Logger, store apikeys.Store, keyCache *cache.Cache[apikeys.Key], recorder *apikeys.UsageRecorder) *apikeys.Service {
	return apikeys.NewService(log, store, keyCache, recorder)
}

func provideChatStore(conn *pgxpool.Pool) chat.Store { return chat.NewPostgresStore(conn) }

func provideChatService(log *slog.Logger, store chat.Store, schemes *identifier.Registry, publisher events.Publisher) *chat.Service {
	return chat.NewService(log, store, schemes, publisher)
}

func provideMessageStore(conn *pgxpool.Pool) message.Store { return message.NewPostgresStore(conn) }

func provideMessageService(log *slog.Logger, store message.Store, publisher events.Publisher) *message.Service {
	return message.NewService(log, store, publisher)
}

func provideIngestService(log *slog.Logger, chats *chat.Service, messages *message.Service, schemes *identifier.Registry) *ingest.Service {
	return ingest.NewService(log, chats, messages, schemes)
}

func provideRouteStore(conn *pgxpool.Pool) routes.Store { return routes.NewPostgresStore(conn) }

func provideRouteResolver(log *slog.Logger, store routes.Store) *routes.Resolver {
	return routes.NewResolver(log, store)
}

func provideRouteService(log *slog.Logger, store routes.Store, resolver *routes.Resolver) *routes.Service {
	return routes.NewService(log, store, resolver)
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log)
}

func provideChatsHandler(log *slog.Logger, chats *chat.Service) *handlers.ChatsHandler {
	return handlers.NewChatsHandler(log, chats)
}

func provideMessagesHandler(log *slog.Logger, messages *message.Service) *handlers.MessagesHandler {
	return handlers.NewMessagesHandler(log, messages)
}

func provideIngestHandler(log *slog.Logger, svc *ingest.Service) *handlers.IngestHandler {
	return handlers.NewIngestHandler(log, svc)
}

func provideAPIKeysHandler(log *slog.Logger, keys *apikeys.Service) *handlers.APIKeysHandler {
	return handlers.NewAPIKeysHandler(log, keys)
}

func provideRoutesHandler(log *slog.Logger, svc *routes.Service, resolver *routes.Resolver) *handlers.RoutesHandler {
	return handlers.NewRoutesHandler(log, svc, resolver)
}

func provideStatsHandler(log *slog.Logger, keyCache *cache.Cache[apikeys.Key], resolver *routes.Resolver) *handlers.StatsHandler {
	return handlers.NewStatsHandler(log, map[string]handlers.StatsProvider{
		"api_keys": keyCache,
		"routes":   resolverStatsAdapter{resolver},
	})
}

// resolverStatsAdapter bridges the route resolver's metrics to the
// generic cache stats shape.
type resolverStatsAdapter struct{ resolver *routes.Resolver }

func (a resolverStatsAdapter) Stats() cache.Stats {
	m := a.resolver.Metrics()
	return cache.Stats{Hits: m.Hits, Misses: m.Misses, Size: m.CacheSize}
}

func (a resolverStatsAdapter) HitRate() float64 { return a.resolver.Metrics().HitRate }

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	APIKeys        *apikeys.Service
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(
		params.Logger,
		params.Config.Server.Addr,
		params.Config.Auth.JWTSecret,
		params.APIKeys,
		params.ServerHandlers,
	)
}

func runMigrations(cfg config.Config, log *slog.Logger) error {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return err
	}
	log.Info("database migrations applied")
	return nil
}

func startUsageFlush(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, recorder *apikeys.UsageRecorder) error {
	schedule := cfg.APIKeys.FlushSchedule
	if schedule == "" {
		schedule = config.DefaultFlushSchedule
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := recorder.Flush(context.Background()); err != nil {
			log.Warn("scheduled usage flush failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("usage flush schedule %q: %w", schedule, err)
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { c.Start(); return nil },
		OnStop: func(ctx context.Context) error {
			<-c.Stop().Done()
			// One last flush so counters recorded since the final
			// tick are not lost.
			return recorder.Flush(ctx)
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config, keys *apikeys.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			info, err := keys.EnsurePrimary(ctx, cfg.APIKeys.PrimaryKey)
			if err != nil {
				return fmt.Errorf("ensure primary api key: %w", err)
			}
			if info.IsNew {
				log.Info("primary api key generated, store it now; it will not be shown again",
					slog.String("api_key", info.DisplayKey))
			} else {
				log.Info("primary api key ready", slog.String("api_key", info.DisplayKey))
			}
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
