package app

import (
	"context"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libredis "meterflow/backend/libs/redis"
	"meterflow/backend/services/meter-service/internal/clients"
	"meterflow/backend/services/meter-service/internal/config"
	httpserver "meterflow/backend/services/meter-service/internal/http"
	"meterflow/backend/services/meter-service/internal/http/handlers"
	"meterflow/backend/services/meter-service/internal/http/middleware"
	"meterflow/backend/services/meter-service/internal/parser"
	"meterflow/backend/services/meter-service/internal/service"
	"meterflow/backend/services/meter-service/internal/store"
	"meterflow/backend/services/meter-service/internal/watcher"
	"meterflow/backend/services/meter-service/internal/ws"
)

// App wires meter-service dependencies.
type App struct {
	server      *httpserver.Server
	watcher     *watcher.Watcher
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if _, err := parser.LookupEncoding(cfg.Ingest.Encoding); err != nil {
		return nil, err
	}

	a := &App{logger: logger}

	var seriesStore store.SeriesStore
	switch cfg.StoreBackend() {
	case config.StoreRedis:
		client, err := libredis.NewRedisClient(ctx, libredis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.redisClient = client
		seriesStore = store.NewRedisStore(client, cfg.Store.Redis.Key, cfg.Store.Redis.TTL)
	default:
		seriesStore = store.NewMemoryStore()
	}

	hub := ws.NewHub(logger)
	opts := service.Options{
		Store:     seriesStore,
		Parser:    parser.New(loc, cfg.Ingest.MeterIDs...),
		Publisher: hub,
		Location:  loc,
		Logger:    logger,
	}
	if cfg.Backend.URL != "" {
		httpClient := clients.NewDefaultHTTPClient(cfg.BackendTimeout())
		opts.Fetcher = clients.NewBackendClient(cfg.Backend.URL, cfg.Backend.MetersPath, httpClient)
	}
	meterService := service.NewMeterService(opts)

	if cfg.Inbox.Dir != "" {
		a.watcher = watcher.New(cfg.Inbox.Dir, cfg.Inbox.Poll, logger, inboxReloader(meterService, cfg.Ingest.Encoding, logger))
	}

	router := httpserver.NewRouter(httpserver.RouterDeps{
		SeriesHandlers: handlers.NewSeriesHandlers(meterService, cfg.Ingest.Encoding, cfg.Upload.MaxBytes, logger),
		HealthHandler:  handlers.NewHealthHandler(),
		SeriesSocket:   ws.NewServer(hub, cfg.WriteTimeout(), logger).HandleWS,
	})

	a.server = httpserver.NewServer(
		cfg.HTTPAddress(),
		router,
		logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)
	return a, nil
}

// Run serves HTTP traffic and, when configured, watches the inbox until ctx ends.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(ctx) })
	}
	g.Go(func() error { return a.server.Run(ctx) })
	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}

// inboxReloader re-reads every export in the batch and replaces the current series.
func inboxReloader(svc *service.MeterService, encoding string, logger *zap.Logger) func(context.Context, watcher.Batch) {
	return func(ctx context.Context, batch watcher.Batch) {
		sdatFiles, err := readAll(batch.SDAT, encoding)
		if err != nil {
			logger.Error("failed to read inbox sdat files", zap.Error(err))
			return
		}
		eslFiles, err := readAll(batch.ESL, encoding)
		if err != nil {
			logger.Error("failed to read inbox esl files", zap.Error(err))
			return
		}
		if _, err := svc.IngestFiles(ctx, service.SourceInbox, sdatFiles, eslFiles); err != nil {
			logger.Warn("inbox reload rejected", zap.Error(err))
		}
	}
}

func readAll(paths []string, encoding string) ([]parser.Input, error) {
	inputs := make([]parser.Input, 0, len(paths))
	for _, p := range paths {
		text, err := parser.ReadFile(p, encoding)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, parser.Input{Name: filepath.Base(p), Text: text})
	}
	return inputs, nil
}
