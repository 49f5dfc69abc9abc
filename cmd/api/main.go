package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"learnhub.org/internal/analytics"
	"learnhub.org/internal/audit"
	"learnhub.org/internal/auth"
	"learnhub.org/internal/catalog"
	"learnhub.org/internal/commerce"
	"learnhub.org/internal/config"
	"learnhub.org/internal/httpapi"
	"learnhub.org/internal/idp"
	"learnhub.org/internal/janitor"
	"learnhub.org/internal/migrate"
	"learnhub.org/internal/obs"
	"learnhub.org/internal/ratelimit"
	"learnhub.org/internal/settings"
	"learnhub.org/internal/store/memory"
	"learnhub.org/internal/store/pg"
	"learnhub.org/internal/store/redisstore"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// domainStore is everything except sessions; both the memory and the
// Postgres stores provide it.
type domainStore interface {
	auth.IdentityStore
	catalog.Store
	commerce.Store
	settings.Store
	settings.CourseLookup
	analytics.Store
	audit.Store
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Log.Level, "learnhub-api", cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	obs.SetLogger(logger)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Инициализация observability (метрики, build info, трейсинг)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	shutdownTracing, err := obs.InitTracing(ctx, cfg.Tracing.OTLPEndpoint, version, cfg.Tracing.SampleRatio)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	var (
		domain   domainStore
		sessions auth.SessionStore
		ready    httpapi.ReadyCheck
	)
	switch cfg.Sessions.Backend {
	case config.BackendMemory:
		mem := memory.New()
		domain, sessions = mem, mem
		logger.Warn("using in-memory storage; data is lost on restart")
	default:
		store, err := pg.Open(cfg.Postgres.DSN, pg.PoolConfig{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer store.Close()
		if cfg.Postgres.AutoMigrate {
			mctx, cancel := context.WithTimeout(ctx, time.Minute)
			mgr := migrate.NewManager(store.DB(), migrate.Migrations(), migrate.Seeds())
			err := mgr.Up(mctx)
			if err == nil {
				err = mgr.Seed(mctx)
			}
			cancel()
			if err != nil {
				return fmt.Errorf("auto-migrate: %w", err)
			}
			logger.Info("database migrated")
		}
		domain, sessions = store, store
		ready.DB = store.DB()

		if cfg.Sessions.Backend == config.BackendRedis {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
			rs := redisstore.NewSessionStore(rdb)
			sessions = rs
			ready.Redis = rs
		}
	}

	authSvc, err := auth.NewService(domain, sessions,
		auth.WithSessionTTL(cfg.Sessions.TTL),
		auth.WithHasher(auth.NewHasher(cfg.Auth.BcryptCost)),
	)
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}
	settingsSvc := settings.NewService(domain, settings.WithCourseLookup(domain))
	catalogSvc := catalog.NewService(domain, settingsSvc)
	commerceSvc := commerce.NewService(domain, catalogSvc, settingsSvc)

	var verifier httpapi.TokenVerifier
	if p := cfg.IdentityProvider; p.Enabled() {
		var opt idp.Option
		if p.PublicKeyPEM != "" {
			opt = idp.WithRSAPublicKeyPEM(p.PublicKeyPEM)
		} else {
			opt = idp.WithHMACSecret(p.HMACSecret)
		}
		v, err := idp.New(p.Issuer, p.Audience, opt)
		if err != nil {
			return fmt.Errorf("identity provider: %w", err)
		}
		verifier = v
	}

	limiter := ratelimit.New(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)

	jan, err := janitor.New(cfg.Janitor.Schedule, authSvc, limiter, cfg.RateLimit.IdleTTL)
	if err != nil {
		return err
	}
	jan.Start()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		jan.Stop(sctx)
	}()

	proxies, err := cfg.HTTP.ProxyPrefixes()
	if err != nil {
		return err
	}
	api := httpapi.New(httpapi.Deps{
		Auth:           authSvc,
		Catalog:        catalogSvc,
		Commerce:       commerceSvc,
		Settings:       settingsSvc,
		Analytics:      analytics.NewService(domain),
		Audit:          audit.NewRecorder(domain),
		IDP:            verifier,
		Limiter:        limiter,
		Ready:          ready,
		Version:        version,
		SecureCookies:  cfg.Sessions.CookieSecure,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		TrustedProxies: proxies,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http listen: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPC.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.HealthAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewHealthServer(ready)
		health.Register(grpcSrv)
		go health.Run(ctx, 10*time.Second)
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.GRPC.HealthAddr))
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	logger.Info("stopped")
	return runErr
}
