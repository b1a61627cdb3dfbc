package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	gconfig "github.com/goliatone/go-config/config"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"

	auth "github.com/goliatone/go-secure-auth"
	"github.com/goliatone/go-secure-auth/activitymap"
	"github.com/goliatone/go-secure-auth/config"
	"github.com/goliatone/go-secure-auth/mailer"
	"github.com/goliatone/go-secure-auth/repository"
)

const shutdownTimeout = 15 * time.Second

func main() {
	lgr := newLogger(os.Getenv("LOG_LEVEL"))
	logger := lgr.GetLogger("app")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, func(c *gconfig.Container[*config.Config]) *gconfig.Container[*config.Config] {
		return c.WithLogger(lgr.GetLogger("config"))
	})
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, lgr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *glog.BaseLogger {
	lvl := glog.Info
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		lvl = glog.Trace
	case "debug":
		lvl = glog.Debug
	case "warn", "warning":
		lvl = glog.Warn
	case "error":
		lvl = glog.Error
	}

	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(lvl),
		glog.WithName("secureauth"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
}

func run(ctx context.Context, cfg *config.Config, lgr *glog.BaseLogger) error {
	logger := lgr.GetLogger("app")

	db, repo, err := repository.Bootstrap(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("database ready", "dialect", repository.Dialect(db))

	ledger, closeLedger, err := newLedger(ctx, cfg, repo, lgr.GetLogger("ledger"))
	if err != nil {
		return err
	}
	defer closeLedger()

	mail, err := newMailer(cfg, lgr.GetLogger("mailer"))
	if err != nil {
		return err
	}

	svc := auth.NewService(auth.ServiceOptions{
		Config:      cfg,
		RouteConfig: cfg,
		Repo:        repo,
		Ledger:      ledger,
		Mailer:      mail,
		Logger:      lgr.GetLogger("auth"),
		Activity:    activitymap.LogSink(lgr.GetLogger("activity")),
		Debug:       !cfg.IsProduction(),
	})

	scheduler := auth.NewTickerScheduler().WithLogger(lgr.GetLogger("scheduler"))
	if err := svc.RegisterSweeps(scheduler, cfg.GetSweepIntervals()); err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:      "secureauth",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}))
	})

	srv.Router().WithLogger(lgr.GetLogger("router"))

	app := srv.WrappedRouter()
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	}))

	srv.Router().Get("/health", func(c router.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
	}).SetName("health")

	svc.Mount(srv)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port)
		errc <- srv.Serve(":" + cfg.Port)
	}()

	select {
	case err := <-errc:
		stopScheduler(scheduler, logger)
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	stopScheduler(scheduler, logger)
	return nil
}

func stopScheduler(scheduler auth.Scheduler, logger glog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := scheduler.Stop(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("scheduler shutdown", "error", err)
	}
}

// newLedger puts redis in front of the database blacklist when REDIS_URL
// is set.
func newLedger(ctx context.Context, cfg *config.Config, repo auth.RepositoryManager, logger glog.Logger) (auth.Ledger, func(), error) {
	durable := repo.Blacklist()
	if cfg.RedisURL == "" {
		return durable, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	logger.Info("redis blacklist cache enabled", "addr", opts.Addr)

	cached := auth.NewCachedLedger(durable, auth.NewRedisLedger(client, cfg.RedisPrefix)).WithLogger(logger)
	return cached, func() { _ = client.Close() }, nil
}

func newMailer(cfg *config.Config, logger glog.Logger) (auth.Mailer, error) {
	renderer := mailer.NewRenderer(cfg.GetTOTPIssuer())
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST not set, emails are logged instead of sent")
		return mailer.NewLogMailer(renderer, logger), nil
	}

	smtp, err := mailer.NewSMTPMailer(mailer.SMTPOptions{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		TLS:      cfg.SMTP.TLS,
	}, renderer, logger)
	if err != nil {
		return nil, err
	}
	return smtp, nil
}
