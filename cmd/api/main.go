package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"surveysync.org/internal/audit"
	"surveysync.org/internal/auth"
	"surveysync.org/internal/bulksync"
	"surveysync.org/internal/config"
	"surveysync.org/internal/httpapi"
	"surveysync.org/internal/migrate"
	"surveysync.org/internal/obs"
	"surveysync.org/internal/store/memory"
	"surveysync.org/internal/store/pg"
	"surveysync.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configFile := flag.String("config", "", "Path to a config file (yaml, toml or json)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		obs.Logger().Error("surveysync-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	log := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		authStore auth.Store
		syncStore bulksync.Store
		probe     httpapi.ReadyProbe
		sink      audit.Sink = audit.NewLogSink()
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = store.Ping(pingCtx)
		cancel()
		if err != nil {
			return err
		}
		if cfg.MigrateOnStart {
			if err := migrate.NewManager(store.DB()).Up(ctx); err != nil {
				return err
			}
			log.Info("migrations applied")
		}
		authStore, syncStore = store.Auth(), store
		obs.InitBuildInfo(version, commit, "pg")
		probe = httpapi.ReadyProbe{DB: store.DB()}
		sink = audit.Multi(sink, pg.NewAuditSink(store.DB()))
	} else {
		log.Warn("pg_dsn is not set; using the in-memory store")
		mem := memory.New()
		authStore, syncStore = mem, mem
		obs.InitBuildInfo(version, commit, "memory")
	}

	manager, err := auth.NewManager(authStore,
		auth.WithSecret(cfg.DeviceTokenSecret),
		auth.WithRefreshSecret(cfg.RefreshSecret()),
		auth.WithCredentialTTL(cfg.CredentialTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
		auth.WithAuditor(sink),
	)
	if err != nil {
		return err
	}
	events := stream.New()
	processor := bulksync.NewProcessor(syncStore,
		bulksync.WithAuditor(sink),
		bulksync.WithMaxBatch(cfg.MaxBatch),
		bulksync.WithPublisher(events),
	)

	api := httpapi.New(probe, version, manager, processor, events, httpapi.Config{
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RateBurst:      cfg.RateBurst,
		RatePerSec:     cfg.RatePerSec,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("starting surveysync-api", "version", version, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcSrv := httpapi.NewGRPCServer(probe)
		defer grpcSrv.GracefulStop()
		go func() {
			log.Info("starting grpc health", "addr", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
