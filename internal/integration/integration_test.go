package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"mystery-hunt-client/internal/app"
	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/infra/memory"
	pgstore "mystery-hunt-client/internal/infra/postgres"
	pgmigrations "mystery-hunt-client/internal/infra/postgres/migrations"
	infraredis "mystery-hunt-client/internal/infra/redis"
)

func TestStaleFallbackEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSnapshots(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	catalog := memory.NewCatalog()
	catalog.AddMystery("1", sampleLevel())
	catalog.AddAsset("img-1", domain.Blob{ContentType: "image/png", Data: []byte("png")})

	assets := app.NewAssetCache(catalog, infraredis.NewBlobStore(redisClient, 5*time.Minute, nil))
	service := app.NewGameService(catalog, assets, app.WithSnapshots(pgstore.NewSnapshotStore(pool)))

	levels, err := service.Levels(ctx, "token", "1")
	if err != nil {
		t.Fatalf("levels: %v", err)
	}

	// Backend goes away; the level list entry carries no questions so the
	// snapshot saved by Levels must be used.
	catalog.FailNext("get_level", errors.New("connection refused"))
	parent := levels[0]
	parent.Questions = nil
	session, notice, err := service.OpenLevel(ctx, "token", parent, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("open level: %v", err)
	}
	defer session.Close()
	if notice == nil || notice.Kind != app.NoticeStale {
		t.Fatalf("expected stale notice, got %+v", notice)
	}
	if got := len(session.Level().Questions); got != 1 {
		t.Fatalf("expected snapshot questions, got %d", got)
	}

	handle, err := assets.Resolve(ctx, "img-1", "token")
	if err != nil {
		t.Fatalf("resolve asset: %v", err)
	}
	if n, _ := redisClient.Exists(ctx, "asset:"+app.Scope("token")+"/img-1").Result(); n != 1 {
		t.Fatalf("expected asset stored in redis")
	}
	assets.Release(handle.ID)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "hunt", "POSTGRES_PASSWORD": "huntpass", "POSTGRES_DB": "huntdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://hunt:huntpass@%s:%s/huntdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSnapshots(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleLevel() domain.Level {
	return domain.Level{
		ID:         "level-1",
		Name:       "The Harbour",
		IsUnlocked: true,
		Questions: []domain.Question{
			{ID: "q1", LevelID: "level-1", Prompt: "Count the boats", Type: "text"},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
