package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"regdesk/internal/audit"
	"regdesk/internal/broadcast"
	"regdesk/internal/edit"
	jwttoken "regdesk/internal/jwt_token"
	"regdesk/internal/platform/config"
	"regdesk/internal/platform/httpserver"
	"regdesk/internal/platform/logger"
	"regdesk/internal/platform/metrics"
	platformredis "regdesk/internal/platform/redis"
	"regdesk/internal/record"
	"regdesk/internal/session"
	httptransport "regdesk/internal/transport/http"
	"regdesk/internal/verify"
	"regdesk/internal/window"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.BackupDir(), 0o755); err != nil {
		log.Error("could not create data directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Action log: durable file store, with an optional kafka sink drained by a
	// background worker.
	auditStore := audit.NewFileStore(cfg.AuditFile())
	publisher := audit.NewPublisher(auditStore, log)

	var kafkaSink *audit.KafkaSink
	var auditInbox chan audit.Event
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("could not create kafka audit sink", "error", err)
			os.Exit(1)
		}
		kafkaSink = sink
		defer kafkaSink.Close()
		auditInbox = make(chan audit.Event, 256)
		publisher.AttachInbox(auditInbox)
	}

	store := record.NewStore(cfg.CSVPath, cfg.BackupDir(), cfg.BackupKeep, log, publisher)
	if err := store.Load(ctx); err != nil {
		log.Error("could not load record table", "path", cfg.CSVPath, "error", err)
		os.Exit(1)
	}

	windowPolicy, err := window.New(cfg.WindowFile(), cfg.WindowDays, log)
	if err != nil {
		log.Error("could not initialize edit window", "error", err)
		os.Exit(1)
	}

	// Sessions: redis when configured, flat file otherwise.
	var sessionStore session.Store
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("could not connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessionStore = session.NewRedisStore(redisClient.Client, cfg.SessionTTL)
		log.Info("session store: redis")
	} else {
		sessionStore = session.NewFileStore(cfg.SessionsFile(), log)
		log.Info("session store: file", "path", cfg.SessionsFile())
	}
	manager := session.NewManager(sessionStore, cfg.SessionTTL, log)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	m.SetRecordRows(store.Len())

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "regdesk", "regdesk")

	verifySvc := verify.NewService(store, manager, jwtService, m, publisher, log)
	editSvc := edit.NewService(store, manager, windowPolicy, m, publisher, log)
	broadcastSvc := broadcast.NewService(manager, broadcast.LogNotifier{Logger: log}, m, publisher, log)

	userHandler := httptransport.NewUserHandler(verifySvc, editSvc, manager, store, windowPolicy,
		publisher, jwttoken.NewJWTServiceAdapter(jwtService), log)
	adminHandler := httptransport.NewAdminHandler(store, windowPolicy, manager, broadcastSvc,
		publisher, m, cfg.AdminTokenHash, log)

	router := httptransport.NewRouter(userHandler, adminHandler, registry)
	srv := httpserver.New(cfg.Addr, router)

	watcher := record.NewWatcher(store, cfg.WatchInterval, log, func(rows int) {
		m.IncTableReloads()
		m.SetRecordRows(rows)
		publisher.RecordAction(ctx, audit.ActorSystem, audit.ActionTableReloaded, cfg.CSVPath, "file changed")
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting regdesk", "addr", cfg.Addr, "rows", store.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := watcher.Run(gctx); errors.Is(err, context.Canceled) {
			return nil
		} else if err != nil {
			return err
		}
		return nil
	})

	if kafkaSink != nil {
		worker := audit.NewWorker(kafkaSink, auditInbox, log)
		g.Go(func() error {
			if err := worker.Run(gctx); errors.Is(err, context.Canceled) {
				return nil
			} else if err != nil {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
