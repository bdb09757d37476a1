package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"todo-api/api"
	"todo-api/config"
	"todo-api/domain"
	"todo-api/events"
	"todo-api/storage"
)

var (
	configPath string
	portFlag   int
)

var rootCmd = &cobra.Command{
	Use:   "todo-api",
	Short: "HTTP service for a shared todo list",
	Long: `todo-api serves a todo list over HTTP.

Todos live in memory, in a Redis hash or in an Azure storage table, and every
change can be announced on an Azure storage queue or a Redis channel.

Settings are read from defaults, then the optional TOML file given with
--config, then environment variables. --port overrides everything.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = portFlag
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	rootCmd.Flags().IntVarP(&portFlag, "port", "p", config.DefaultPort, "Listen port")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	if cfg.Tracing {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Errorf("tracer shutdown: %v", err)
			}
		}()
	}

	var rc *redis.Client
	if cfg.NeedsRedis() {
		opts, err := config.RedisOptions(cfg.RedisURL)
		if err != nil {
			return err
		}
		rc = redis.NewClient(opts)
		defer rc.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rc.Ping(pingCtx).Err(); err != nil {
			logger.Warnf("redis ping failed: %v", err)
		}
		cancel()
	}

	store, err := buildStore(ctx, cfg, rc, logger)
	if err != nil {
		return err
	}

	broker := events.NewBroker()
	sink, err := buildSink(ctx, cfg, rc)
	if err != nil {
		return err
	}
	publisher := events.NewPublisher(events.MultiSink{broker, sink}, events.Options{
		Workers:        cfg.PublishWorkers,
		Buffer:         cfg.PublishBuffer,
		HandoffTimeout: cfg.PublishHandoff,
	}, logger)
	defer publisher.Close()

	e := newServer(cfg, domain.NewTodoService(store, logger), publisher, broker, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("todo-api listening on %s, backend: %s, events: %s", cfg.Addr(), cfg.Backend, cfg.Events)
		errCh <- e.Start(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newServer(cfg config.Config, svc api.Service, publisher api.Publisher, notifier api.Notifier, logger *log.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.JSONSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
		ExposeHeaders: []string{echo.HeaderXRequestID},
	}))
	e.Use(api.RequestIDMiddleware())
	e.Use(api.GzipRequestMiddleware())
	e.Use(api.JSONContentTypeMiddleware())

	api.Register(e, svc, logger, api.Options{
		Publisher:      publisher,
		Notifier:       notifier,
		StreamInterval: cfg.StreamInterval,
	})
	if cfg.Pprof {
		pprof.Register(e)
	}
	return e
}

func buildStore(ctx context.Context, cfg config.Config, rc *redis.Client, logger *log.Logger) (domain.TodoStore, error) {
	var store domain.TodoStore
	switch cfg.Backend {
	case config.BackendRedis:
		store = storage.NewRedisStore(rc, cfg.RedisPrefix, logger)
	case config.BackendTable:
		if err := storage.EnsureTable(ctx, cfg.StorageConnectionString, cfg.TodosTable); err != nil {
			return nil, err
		}
		ts, err := storage.NewTableStore(cfg.StorageConnectionString, cfg.TodosTable, cfg.PartitionKey, logger)
		if err != nil {
			return nil, err
		}
		store = ts
	default:
		store = storage.NewMemory()
	}

	if cfg.CacheTTL > 0 && rc != nil {
		store = storage.NewCache(store, rc, cfg.RedisPrefix, cfg.CacheTTL)
	}
	return store, nil
}

func buildSink(ctx context.Context, cfg config.Config, rc *redis.Client) (events.Sink, error) {
	switch cfg.Events {
	case config.EventsQueue:
		qs, err := events.NewQueueSink(cfg.StorageConnectionString, cfg.EventsQueue)
		if err != nil {
			return nil, err
		}
		if err := qs.EnsureQueue(ctx); err != nil {
			return nil, err
		}
		return qs, nil
	case config.EventsRedis:
		return events.NewRedisSink(rc, cfg.RedisPrefix+cfg.EventsChannel), nil
	default:
		return events.NopSink{}, nil
	}
}
