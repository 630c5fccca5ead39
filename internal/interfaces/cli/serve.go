package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitesim/reactor/internal/application/runservice"
	"github.com/sitesim/reactor/internal/config"
	"github.com/sitesim/reactor/internal/infrastructure/database/postgres"
	"github.com/sitesim/reactor/internal/infrastructure/database/postgres/repositories"
	"github.com/sitesim/reactor/internal/infrastructure/database/redis"
	"github.com/sitesim/reactor/internal/infrastructure/messaging/kafka"
	"github.com/sitesim/reactor/internal/infrastructure/monitoring/logging"
	sitesimgrpc "github.com/sitesim/reactor/internal/interfaces/grpc"
	sitesimhttp "github.com/sitesim/reactor/internal/interfaces/http"
	"github.com/sitesim/reactor/internal/interfaces/http/handlers"
	"github.com/sitesim/reactor/internal/interfaces/http/middleware"
)

// serveOptions holds the flags of the `sitesim serve` subcommand: it starts
// the long-running REST surface over a shared runservice.Manager instead of
// driving a single simulation to completion and exiting.
type serveOptions struct {
	ConfigPath string
	GRPC       bool
}

// newServeCommand builds the `serve` subcommand, wiring Postgres persistence,
// Kafka event publishing, and the gin-backed HTTP API together behind a
// graceful-shutdown-aware Server.
func newServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the sitesim HTTP API, tracking runs by ID until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "service config file path")
	cmd.Flags().BoolVar(&opts.GRPC, "grpc", false, "also start the gRPC transport (health/reflection only; no domain service is registered yet)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := loadRunConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("config init: %w", err)
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            cfg.Log.Level,
		Format:           logFormat(cfg.Log.Format),
		OutputPaths:      []string{outputPathOrDefault(cfg.Log.Output)},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}

	var repo *repositories.RunRepo
	if cfg.Database.Host != "" {
		pool, err := postgres.NewConnectionPool(cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("database init: %w", err)
		}
		defer postgres.Close(pool)
		repo = repositories.NewRunRepo(pool, logger)
	}

	var publisher *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers}, logger)
		if err != nil {
			return fmt.Errorf("kafka producer init: %w", err)
		}
		defer publisher.Close()
	}

	var pub runservice.Publisher
	if publisher != nil {
		pub = publisher
	}

	var cache redis.Cache
	var locks redis.LockFactory
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.NewClient(redisClientConfig(cfg.Redis), logger)
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer redisClient.Close()
		cache = redis.NewRedisCache(redisClient, logger)
		locks = redis.NewLockFactory(redisClient, logger)
	}

	manager := runservice.NewManager(repo, pub, cache, locks, logger)

	router := sitesimhttp.NewRouter(sitesimhttp.RouterConfig{
		RunHandler:          handlers.NewRunHandler(manager),
		HealthHandler:       handlers.NewHealthHandler(Version),
		CORSMiddleware:      middleware.NewCORSMiddleware(middleware.DefaultCORSConfig()),
		LoggingMiddleware:   middleware.NewLoggingMiddleware(logger, middleware.DefaultLoggingConfig()),
		RateLimitMiddleware: middleware.NewRateLimitMiddleware(middleware.NewTokenBucketLimiter(50, 100, time.Minute), middleware.DefaultRateLimitConfig()),
		Logger:              logger,
	})

	srv := sitesimhttp.NewServer(sitesimhttp.ServerConfig{
		Host: "0.0.0.0",
		Port: cfg.Server.Port,
	}, router, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.GRPC {
		grpcSrv, err := sitesimgrpc.NewServer(&cfg.GRPC, sitesimgrpc.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("grpc init: %w", err)
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := grpcSrv.Stop(shutdownCtx); err != nil {
				logger.Warn("grpc server shutdown error", logging.Err(err))
			}
		}()
		go func() {
			logger.Info("sitesim gRPC transport starting", logging.Int("port", cfg.GRPC.Port))
			if err := grpcSrv.Start(); err != nil {
				logger.Warn("grpc server stopped", logging.Err(err))
			}
		}()
	}

	logger.Info("sitesim API starting", logging.Int("port", cfg.Server.Port))
	return srv.Start(ctx)
}

// redisClientConfig adapts the service's narrower config.RedisConfig (the
// shape viper/fsnotify-driven config files declare) into the fuller
// redis.RedisConfig the client package accepts, which also covers sentinel
// and cluster modes not exposed through the service config today.
func redisClientConfig(cfg config.RedisConfig) *redis.RedisConfig {
	return &redis.RedisConfig{
		Mode:         "standalone",
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// logFormat maps the config package's "json"|"text" vocabulary onto the
// logging package's "json"|"console" one.
func logFormat(format string) string {
	if format == "text" {
		return "console"
	}
	return "json"
}

func outputPathOrDefault(path string) string {
	if path == "" {
		return "stdout"
	}
	return path
}

func init() {
	rootCommandExtras = append(rootCommandExtras, newServeCommand)
}
