package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"mystery-hunt-client/internal/app"
	"mystery-hunt-client/internal/config"
	"mystery-hunt-client/internal/infra/api"
	"mystery-hunt-client/internal/infra/memory"
	pgstore "mystery-hunt-client/internal/infra/postgres"
	redisstore "mystery-hunt-client/internal/infra/redis"
	"mystery-hunt-client/internal/logger"
	"mystery-hunt-client/internal/metrics"
)

// deps is everything a command needs, built from config.
type deps struct {
	cfg      config.Config
	log      *logrus.Entry
	registry *prometheus.Registry
	service  *app.GameService
	assets   *app.AssetCache
	token    string
	closers  []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDeps(ctx context.Context, flags *rootFlags) (*deps, error) {
	cfg, err := config.Load(*flags.configPath)
	if err != nil {
		return nil, err
	}
	if *flags.baseURL != "" {
		cfg.API.BaseURL = *flags.baseURL
	}
	if *flags.token != "" {
		cfg.API.Token = *flags.token
	}

	d := &deps{
		cfg:      cfg,
		log:      logger.New("mystery-hunt-client", cfg.Log.Level, cfg.Log.Format),
		registry: prometheus.NewRegistry(),
		token:    cfg.API.Token,
	}
	m := metrics.New(d.registry)

	var backend app.GameAPI
	if cfg.API.BaseURL != "" {
		backend = api.New(cfg.API.BaseURL,
			api.WithHTTPClient(&http.Client{Timeout: config.TTLDuration(cfg.API.Timeout, 10*time.Second)}),
			api.WithRetry(cfg.API.Retries, config.TTLDuration(cfg.API.RetryDelay, 500*time.Millisecond)),
			api.WithLogger(d.log),
			api.WithMetrics(m),
		)
	} else {
		d.log.Warn("no backend configured, serving the demo mystery")
		backend = demoCatalog()
		if d.token == "" {
			d.token = "demo"
		}
	}

	near, err := memory.NewBlobStore(cfg.Cache.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	var blobs app.BlobStore = near
	var snapshots app.SnapshotStore = memory.NewSnapshotStore()

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { _ = client.Close() })
		blobs = app.TieredStore{
			Near: near,
			Far:  redisstore.NewBlobStore(client, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute), d.log),
		}
		snapshots = redisstore.NewSnapshotStore(client, config.TTLDuration(cfg.Redis.SnapshotTTL, 24*time.Hour))
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, d.log); err != nil {
			d.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, pool.Close)
		snapshots = pgstore.NewSnapshotStore(pool)
	}

	opts := []app.AssetCacheOption{app.WithAssetLogger(d.log), app.WithAssetMetrics(m)}
	if cfg.Cache.HandlePrefix != "" {
		opts = append(opts, app.WithHandlePrefix(cfg.Cache.HandlePrefix))
	}
	d.assets = app.NewAssetCache(backend, blobs, opts...)
	d.service = app.NewGameService(backend, d.assets,
		app.WithSnapshots(snapshots),
		app.WithLogger(d.log),
		app.WithMetrics(m),
	)
	return d, nil
}
