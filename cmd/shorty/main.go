// Package main provides the entry point for the Shorty URL shortener service.
package main

import (
	"Shorty-Backend/internal/analytics"
	"Shorty-Backend/internal/auth"
	"Shorty-Backend/internal/config"
	"Shorty-Backend/internal/database"
	httpHandler "Shorty-Backend/internal/handler/http"
	"Shorty-Backend/internal/repository"
	"Shorty-Backend/internal/repository/memory"
	"Shorty-Backend/internal/repository/postgres"
	"Shorty-Backend/internal/retention"
	"Shorty-Backend/internal/service"
	"Shorty-Backend/pkg/logger"
	"Shorty-Backend/pkg/useragent"
	"context"
	"errors"
	lg "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const limiterCleanupInterval = 10 * time.Minute

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	log.Info("starting shorty", zap.String("version", version), zap.String("db_driver", cfg.Database.Driver))

	exitCode := 0
	if err := run(cfg, log); err != nil {
		log.Error("shorty stopped with error", zap.Error(err))
		exitCode = 1
	} else {
		log.Info("shorty stopped")
	}

	// os.Exit не выполняет defer, поэтому Sync вызывается явно
	if err := log.Sync(); err != nil {
		lg.Printf("ERROR: failed to sync zap logger: %v\n", err)
	}
	os.Exit(exitCode)
}

func run(cfg *config.Config, log *zap.Logger) error {
	storage, db, err := openStorage(cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			if err := database.Close(db, log); err != nil {
				log.Error("failed to close database connection", zap.Error(err))
			}
		}()
	}

	// Аналитика кликов
	var clicks service.ClickRecorder
	var processor *analytics.Processor
	if !cfg.Analytics.Disabled {
		parser, err := useragent.NewParser(cfg.Analytics.RegexesPath, log)
		if err != nil {
			log.Warn("failed to initialize User-Agent parser, clicks will be recorded without device info", zap.Error(err))
		}
		processor = analytics.NewProcessor(storage, parser, log.Named("analytics"), analytics.ConfigFrom(&cfg.Analytics))
		if err := processor.Start(); err != nil {
			return err
		}
		clicks = processor
	}

	// Аутентификация
	jwtService := auth.NewJWTService(&auth.JWTConfig{
		SecretKey:           []byte(cfg.Auth.JWTSecret),
		AccessTokenDuration: cfg.Auth.TokenTTL,
		Issuer:              cfg.Auth.Issuer,
	})
	provider := auth.NewProvider(storage, jwtService, auth.NewPasswordService(cfg.Auth.BcryptCost), log)

	// Сервисы
	shortener := service.NewURLShortener(storage, &cfg.URLShortener, clicks, log)
	guard := service.NewOwnershipGuard(provider, storage, log)
	links := service.NewLinkService(guard, storage, log)

	var limiter *httpHandler.IPRateLimiter
	if !cfg.RateLimit.Disabled {
		trusted, err := cfg.RateLimit.ProxyPrefixes()
		if err != nil {
			return err
		}
		limiter = httpHandler.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst, trusted, log)
	}

	apiServer := httpHandler.NewServer(
		provider,
		shortener,
		links,
		guard,
		storage,
		auth.NewMiddleware(cfg.CORS.AllowedOrigins, log),
		limiter,
		log,
		cfg.URLShortener.BaseURL,
		version,
	)
	if processor != nil {
		apiServer.ReportAnalytics(processor)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      apiServer.SetupRoutes(),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shutdown HTTP server", zap.Error(err))
			return err
		}
		log.Info("HTTP server stopped")
		return nil
	})

	if !cfg.Retention.Disabled {
		sweeper := retention.NewSweeper(storage, &cfg.Retention, log)
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	} else {
		log.Info("retention sweeper disabled")
	}

	if limiter != nil {
		g.Go(func() error {
			return limiter.Run(gctx, limiterCleanupInterval)
		})
	}

	waitErr := g.Wait()

	// HTTP сервер уже не принимает запросы, можно дописать очередь кликов
	if processor != nil {
		if stopErr := processor.Stop(); stopErr != nil {
			log.Warn("analytics processor did not stop cleanly", zap.Error(stopErr))
		}
	}

	return waitErr
}

// openStorage выбирает хранилище по database.driver
func openStorage(cfg *config.Config, log *zap.Logger) (repository.Storage, *gorm.DB, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory storage, data will be lost on restart")
		return memory.New(), nil, nil
	}

	db, err := database.NewConnection(&cfg.Database, log, logger.IsVerbose(cfg.Env))
	if err != nil {
		return nil, nil, err
	}

	if cfg.Database.SkipMigrations {
		log.Info("skipping database migrations (skip_migrations: true)")
	} else {
		log.Info("running database migrations")
		if err := database.AutoMigrate(db, log); err != nil {
			_ = database.Close(db, log)
			return nil, nil, err
		}
	}

	return postgres.New(db, log), db, nil
}
