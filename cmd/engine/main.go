package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/vibestream/fanventures/internal/app"
	"github.com/vibestream/fanventures/internal/app/httpapi"
	"github.com/vibestream/fanventures/internal/app/services/paymentbridge"
	"github.com/vibestream/fanventures/internal/app/services/settlement"
	"github.com/vibestream/fanventures/internal/app/storage/postgres"
	"github.com/vibestream/fanventures/internal/config"
	"github.com/vibestream/fanventures/internal/platform/migrations"
	"github.com/vibestream/fanventures/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		envFile    = flag.String("env", "", "Path to .env file with overrides")
	)
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			logger.NewDefault("engine").WithError(err).Warnf("load env file %s", *envFile)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("engine").WithError(err).Fatal("load configuration")
	}

	log := logger.New(cfg.Logging).WithField("module", "engine")

	stores := app.Stores{}
	var db *sql.DB
	if cfg.Database.DSN != "" {
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.WithError(err).Fatal("open database")
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := migrations.Apply(migrateCtx, db); err != nil {
			cancel()
			log.WithError(err).Fatal("apply migrations")
		}
		cancel()

		store := postgres.New(db)
		stores.Ventures = store
		stores.Investments = store
		log.Info("using postgres store")
	} else {
		log.Warn("DATABASE_URL not set; using in-memory store")
	}

	opts := app.Options{
		SweepSchedule:  cfg.Settlement.SweepSchedule,
		PendingTimeout: cfg.Settlement.PendingTimeout.Std(),
		Currency:       cfg.Payments.Currency,
	}

	if cfg.Payments.Endpoint != "" {
		gateway, err := paymentbridge.NewHTTPGateway(nil, cfg.Payments.Endpoint, cfg.Payments.APIKey, log)
		if err != nil {
			log.WithError(err).Fatal("configure payment gateway")
		}
		opts.Gateway = gateway
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		source := settlement.NewRedisSource(redisClient, cfg.Redis.Queue, log)
		requeueCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := source.Requeue(requeueCtx); err != nil {
			log.WithError(err).Warn("requeue stranded outcomes")
		}
		cancel()
		opts.Source = source
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		log.WithError(err).Fatal("initialise application")
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(runCtx); err != nil {
		log.WithError(err).Fatal("start services")
	}

	handler := httpapi.RateLimit(
		httpapi.NewHandler(application),
		cfg.Server.RateLimitRPS,
		cfg.Server.RateLimitBurst,
	)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("http server listening")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-runCtx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("service shutdown")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Warn("close redis client")
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("close database")
		}
	}

	log.Info("engine stopped")
	os.Exit(0)
}
