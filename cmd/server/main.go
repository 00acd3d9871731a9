package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nullstream/slimsearch/internal/server"
	"github.com/nullstream/slimsearch/pkg/config"
	"github.com/nullstream/slimsearch/pkg/health"
	"github.com/nullstream/slimsearch/pkg/logger"
	"github.com/nullstream/slimsearch/pkg/metrics"
	"github.com/nullstream/slimsearch/pkg/middleware"
	pkgredis "github.com/nullstream/slimsearch/pkg/redis"
	rpc "github.com/nullstream/slimsearch/pkg/grpc"
)

const (
	defaultLimit = 10
	maxResults   = 100
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	dumpPath := flag.String("load", "", "optional JSON dump to load at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search server", "port", cfg.Server.Port, "rpc_port", cfg.Server.RPCPort)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	svc, err := server.NewService(cfg.Engine.Options(), m)
	if err != nil {
		slog.Error("failed to create index", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *dumpPath != "" {
		data, err := os.ReadFile(*dumpPath)
		if err != nil {
			slog.Error("failed to read dump", "path", *dumpPath, "error", err)
			os.Exit(1)
		}
		if err := svc.Import(ctx, data); err != nil {
			slog.Error("failed to load dump", "path", *dumpPath, "error", err)
			os.Exit(1)
		}
		slog.Info("index loaded from dump", "path", *dumpPath, "documents", svc.DocumentCount())
	}

	var queryCache *server.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = server.NewQueryCache(redisClient, cfg.Redis)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	checker := health.NewChecker()
	checker.Register("index_engine", func(ctx context.Context) health.ComponentHealth {
		if svc.DirtFactor() > cfg.Engine.MinDirtFactor && cfg.Engine.MinDirtFactor > 0 {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("dirt factor %.2f above threshold", svc.DirtFactor()),
			}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents", svc.DocumentCount()),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	rpcServer := rpc.NewServer()
	server.RegisterRPC(rpcServer, svc)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.RPCPort)
		slog.Info("rpc server listening", "addr", addr)
		if err := rpcServer.Serve(addr); err != nil {
			slog.Error("rpc server error", "error", err)
		}
	}()
	defer rpcServer.Stop()

	h := server.NewHandler(svc, queryCache, m, defaultLimit, maxResults)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search server stopped")
}
