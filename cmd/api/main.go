package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/config"
	"gatehouse.dev/internal/grpcapi"
	"gatehouse.dev/internal/httpapi"
	"gatehouse.dev/internal/migrate"
	"gatehouse.dev/internal/obs"
	"gatehouse.dev/internal/store/memory"
	"gatehouse.dev/internal/store/pg"
	"gatehouse.dev/internal/store/redisstore"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.ConfigureLogger(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store auth.Store
		probe httpapi.ReadyProbe
		pgs   *pg.Store
	)
	switch cfg.Store {
	case config.StorePostgres:
		pgs, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgs.Close()
		if cfg.AutoMigrate {
			if err := migrate.NewManager(pgs.DB()).Up(ctx); err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		store = pgs
		probe.DB = pgs.DB()
	default:
		store = memory.New()
	}

	opts := []auth.ServiceOption{
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
		auth.WithLogger(logger),
	}
	if cfg.Credentials == config.CredentialsRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		creds, err := redisstore.New(redisstore.Config{Client: client, KeyPrefix: cfg.RedisPrefix})
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		opts = append(opts, auth.WithCredentialStore(creds))
		probe.Redis = creds
	}

	if err := auth.Bootstrap(ctx, store, auth.BootstrapOptions{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
	}); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	svc, err := auth.NewService(store, auth.TokenConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}, opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	proxies, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// HTTP API
	api := httpapi.New(svc, httpapi.Options{
		Version:        version,
		Ready:          probe,
		RateBurst:      cfg.RateLimitBurst,
		RatePerSec:     cfg.RateLimitRPS,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: proxies,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// gRPC: health and admin-only reflection
	grpcSrv := grpcapi.NewServer(probe, svc.Validator())
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	logger.Info("starting gatehouse", "version", version, "http_addr", srv.Addr, "grpc_addr", cfg.GRPCAddr, "store", cfg.Store, "credentials", cfg.Credentials)

	errCh := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}
	logger.Info("stopped")
}
