// Package app composes the server with fx.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/admin"
	"github.com/ZUXXSU/chathubserver/internal/analytics"
	"github.com/ZUXXSU/chathubserver/internal/blob"
	"github.com/ZUXXSU/chathubserver/internal/cache"
	"github.com/ZUXXSU/chathubserver/internal/chat"
	"github.com/ZUXXSU/chathubserver/internal/config"
	"github.com/ZUXXSU/chathubserver/internal/db"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/logging"
	"github.com/ZUXXSU/chathubserver/internal/middleware"
	"github.com/ZUXXSU/chathubserver/internal/notify"
	"github.com/ZUXXSU/chathubserver/internal/realtime"
	"github.com/ZUXXSU/chathubserver/internal/server"
	"github.com/ZUXXSU/chathubserver/internal/user"
	"github.com/ZUXXSU/chathubserver/internal/web"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module returns every provider plus the lifecycle hooks for cfg.
func Module(cfg config.Config) fx.Option {
	return fx.Options(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		components(cfg),
	)
}

func components(cfg config.Config) fx.Option {
	return fx.Module("chathub",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideDatabase,
			provideRedis,
			provideIdentity,
			provideResponder,
			provideBlobs,
			providePusher,

			user.NewRepository,
			chat.NewRepository,
			admin.NewRepository,
			analytics.NewRepository,
			provideProfileCache,
			provideNotifier,

			realtime.NewRegistry,
			realtime.NewPresence,
			realtime.NewDispatcher,
			providePipeline,
			provideHub,

			provideUserService,
			provideChatService,
			provideAdminService,

			provideHandlers,
			provideAuth,
			provideRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogLevel, cfg.Development())
}

func provideDatabase(cfg config.Config, logger *zap.Logger) (*sql.DB, *db.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.NewDatabase(ctx, cfg.DatabaseDSN, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.AutoMigrate(ctx); err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("database ready")
	return database.Conn, database, nil
}

// provideRedis does not fail startup: the profile cache falls back to the
// database when Redis is unreachable.
func provideRedis(cfg config.Config, logger *zap.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, profile cache degraded", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	} else {
		logger.Info("redis ready", zap.String("addr", cfg.RedisAddr))
	}
	return rdb
}

func provideIdentity(cfg config.Config) *identity.Resolver {
	return identity.NewResolver(cfg.JWTSecret, cfg.TokenTTL)
}

func provideResponder(cfg config.Config, logger *zap.Logger) *web.Responder {
	return web.NewResponder(cfg.Development(), logger.Named("http"))
}

func provideBlobs(cfg config.Config, logger *zap.Logger) (*blob.DiskStore, error) {
	return blob.NewDiskStore(cfg.UploadDir, cfg.PublicBaseURL, logger)
}

func providePusher(cfg config.Config, logger *zap.Logger) (notify.Pusher, error) {
	if cfg.FirebaseCredentialsJSON == "" {
		logger.Info("no firebase credentials, push notifications are logged only")
		return notify.NewLogPusher(logger), nil
	}
	return notify.NewFCMPusher(context.Background(), cfg.FirebaseCredentialsJSON)
}

func provideProfileCache(cfg config.Config, rdb *redis.Client, repo *user.Repository, logger *zap.Logger) *cache.ProfileCache {
	return cache.NewProfileCache(rdb, repo, cfg.ProfileCacheTTL, logger)
}

func provideNotifier(cfg config.Config, profiles *cache.ProfileCache, pusher notify.Pusher, logger *zap.Logger) *notify.Dispatcher {
	return notify.NewDispatcher(profiles, pusher, cfg.PushTimeout, cfg.PushConcurrency, logger)
}

func providePipeline(cfg config.Config, fanout *realtime.Dispatcher, registry *realtime.Registry, repo *chat.Repository, blobs *blob.DiskStore, notifier *notify.Dispatcher, logger *zap.Logger) *chat.Pipeline {
	return chat.NewPipeline(fanout, registry, repo, blobs, notifier, cfg.StoreTimeout, logger)
}

func provideHub(registry *realtime.Registry, presence *realtime.Presence, dispatcher *realtime.Dispatcher, pipeline *chat.Pipeline, logger *zap.Logger) *realtime.Hub {
	return realtime.NewHub(registry, presence, dispatcher, pipeline, logger)
}

func provideUserService(repo *user.Repository, chats *chat.Repository, dispatcher *realtime.Dispatcher, profiles *cache.ProfileCache, tokens *identity.Resolver, blobs *blob.DiskStore, logger *zap.Logger) *user.Service {
	return user.NewService(repo, chats, dispatcher, profiles, tokens, blobs, logger)
}

func provideChatService(repo *chat.Repository, dispatcher *realtime.Dispatcher, blobs *blob.DiskStore, logger *zap.Logger) *chat.Service {
	return chat.NewService(repo, dispatcher, blobs, logger)
}

func provideAdminService(cfg config.Config, repo *admin.Repository, visitors *analytics.Repository, accounts *user.Repository, tokens *identity.Resolver, logger *zap.Logger) *admin.Service {
	return admin.NewService(repo, visitors, accounts, tokens, cfg.AdminSecretKey, logger)
}

func provideHandlers(
	cfg config.Config,
	users *user.Service,
	chats *chat.Service,
	pipeline *chat.Pipeline,
	admins *admin.Service,
	visits *analytics.Repository,
	hub *realtime.Hub,
	profiles *cache.ProfileCache,
	responder *web.Responder,
	logger *zap.Logger,
) server.Handlers {
	return server.Handlers{
		User:      user.NewHandler(users, responder),
		Chat:      chat.NewHandler(chats, pipeline, responder),
		Admin:     admin.NewHandler(admins, responder),
		Analytics: analytics.NewHandler(visits, responder),
		Realtime:  realtime.NewHandler(hub, profiles, cfg.Origins(), responder, logger),
	}
}

func provideAuth(resolver *identity.Resolver, responder *web.Responder) *middleware.AuthMiddleware {
	return middleware.NewAuthMiddleware(resolver, responder)
}

func provideRouter(cfg config.Config, h server.Handlers, auth *middleware.AuthMiddleware, logger *zap.Logger) http.Handler {
	return server.NewRouter(h, auth, cfg.UploadDir, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *http.Server,
	hub *realtime.Hub,
	pipeline *chat.Pipeline,
	database *db.Database,
	rdb *redis.Client,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			logger.Info("server started", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Hijacked websockets outlive srv.Shutdown; the hub waits for their
			// read loops so no send is still entering the pipeline.
			err := srv.Shutdown(ctx)
			if herr := hub.Shutdown(ctx); herr != nil {
				logger.Warn("closing websockets", zap.Error(herr))
			}
			pipeline.Wait()
			if cerr := rdb.Close(); cerr != nil {
				logger.Warn("closing redis", zap.Error(cerr))
			}
			if cerr := database.Close(); cerr != nil {
				logger.Warn("closing database", zap.Error(cerr))
			}
			_ = logger.Sync()
			logger.Info("server stopped")
			return err
		},
	})
}
