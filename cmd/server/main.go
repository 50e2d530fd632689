package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"banking-core/internal/config"
	"banking-core/internal/events"
	"banking-core/internal/httpapi"
	"banking-core/internal/ledger"
	"banking-core/internal/store/postgres"
)

func main() {
	start := time.Now()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()
	log.Info("startup",
		zap.String("addr", cfg.HTTPAddr),
		zap.Bool("migrate", cfg.Migrate),
		zap.Int("max_conns", cfg.DBMaxConns))

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer startCancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("parse dsn", zap.Error(err))
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	poolCfg.MinConns = 1
	poolCfg.HealthCheckPeriod = 10 * time.Second
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(startCtx, poolCfg)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(startCtx); err != nil {
		log.Fatal("db ping", zap.Error(err))
	}

	if cfg.Migrate {
		log.Info("running migrations")
		if err := postgres.Migrate(startCtx, pool); err != nil {
			log.Fatal("migrations", zap.Error(err))
		}
	}

	st := postgres.New(pool)
	registry := ledger.NewRegistry(st)
	engine := ledger.NewEngine(st)
	history := ledger.NewHistory(st)
	h := httpapi.NewHandlers(registry, engine, history)

	// Outbox dispatcher: delivery runs out-of-band, after commit.
	dispatchCtx, dispatchCancel := context.WithCancel(context.Background())
	defer dispatchCancel()
	if cfg.WebhookURL != "" {
		sender := events.NewWebhookSender(cfg.WebhookURL)
		dispatcher := events.NewDispatcher(st, sender, log, cfg.EventPollInterval)
		go dispatcher.Run(dispatchCtx)
	} else {
		log.Warn("LEDGER_WEBHOOK_URL unset, event delivery disabled")
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.Router(h, log, cfg.HTTPMaxInflight),

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("ready",
			zap.Duration("startup_took", time.Since(start).Truncate(time.Millisecond)),
			zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	dispatchCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	log.Info("bye")
}
