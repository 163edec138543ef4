package main // entry point of the account service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/account-service/internal/config"
	"github.com/iliyamo/account-service/internal/database"
	"github.com/iliyamo/account-service/internal/handler"
	"github.com/iliyamo/account-service/internal/logging"
	"github.com/iliyamo/account-service/internal/middleware"
	"github.com/iliyamo/account-service/internal/queue"
	"github.com/iliyamo/account-service/internal/repository"
	"github.com/iliyamo/account-service/internal/repository/memory"
	"github.com/iliyamo/account-service/internal/router"
	"github.com/iliyamo/account-service/internal/service"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// stores groups the three store implementations selected at startup.
type stores struct {
	users    service.UserStore
	sessions service.SessionStore
	resets   service.ResetStore
	close    func() error
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (stores, error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		m := memory.New()
		return stores{users: m.Users, sessions: m.Sessions, resets: m.Resets, close: func() error { return nil }}, nil
	}

	db, err := database.Open(ctx, cfg.MySQLDSN())
	if err != nil {
		return stores{}, fmt.Errorf("open mysql: %w", err)
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return stores{}, err
		}
		log.Info("migrations applied")
	}
	return stores{
		users:    repository.NewUserRepo(db),
		sessions: repository.NewTokenRepo(db),
		resets:   repository.NewPasswordResetRepo(db),
		close:    db.Close,
	}, nil
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Env, os.Stdout)
	slog.SetDefault(log)

	accessTTL, _ := cfg.AccessTTL() // validated by config.Load
	refreshTTL, _ := cfg.RefreshTTL()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	// Redis is optional: without it rate limiting and caching pass through.
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	var events service.EventPublisher
	if cfg.RabbitMQURL != "" {
		events = queue.NewPublisher(cfg.RabbitMQURL, log)
		if cfg.NotifyConsumer {
			c := queue.NewConsumer(cfg.RabbitMQURL, cfg.NotifyLogDir, log)
			go func() {
				if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("notification consumer stopped", "err", err)
				}
			}()
		}
	} else {
		log.Info("RABBITMQ_URL not set; account events are not published")
	}

	tokens := service.TokenConfig{
		AccessSecret:  cfg.SecretToken,
		AccessTTL:     accessTTL,
		RefreshSecret: cfg.SecretRefreshToken,
		RefreshTTL:    refreshTTL,
	}
	authSvc := service.NewAuthService(st.users, st.sessions, st.resets, tokens, cfg.BcryptCost, events, log)
	userSvc := service.NewUserService(st.users, cfg.BcryptCost, events, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "request_id", v.RequestID}
			if v.Error != nil {
				attrs = append(attrs, "err", v.Error)
			}
			log.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", slog.Group("http", attrs...))
			return nil
		},
	}))

	cacheCfg := config.LoadCacheConfig()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc), middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterUsers(e, handler.NewUserHandler(userSvc), cfg.SecretToken,
		middleware.NewRedisCache(cacheCfg, rdb, log),
		middleware.NewCacheInvalidator(cacheCfg, rdb, log))

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "storage", cfg.StorageDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
