package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"mystery-hunt-client/internal/app"
	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/infra/memory"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewBlobStore(newClient(mr), time.Minute, nil)
	ctx := context.Background()

	if _, ok := store.Get(ctx, "img-1"); ok {
		t.Fatalf("expected miss on empty store")
	}
	store.Put(ctx, "img-1", domain.Blob{ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}})

	if !mr.Exists("asset:img-1") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("asset:img-1"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	blob, ok := store.Get(ctx, "img-1")
	if !ok {
		t.Fatalf("expected hit")
	}
	if blob.ContentType != "image/png" || string(blob.Data) != "\x89PNG" {
		t.Fatalf("unexpected blob %+v", blob)
	}
}

func TestBlobStoreBacksAssetCacheAcrossProcesses(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	catalog := memory.NewCatalog()
	catalog.AddAsset("img-1", domain.Blob{ContentType: "image/png", Data: []byte("x")})
	shared := NewBlobStore(newClient(mr), time.Minute, nil)

	first := app.NewAssetCache(catalog, shared)
	if _, err := first.Resolve(context.Background(), "img-1", "token"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	near, _ := memory.NewBlobStore(4)
	second := app.NewAssetCache(catalog, app.TieredStore{Near: near, Far: shared})
	if _, err := second.Resolve(context.Background(), "img-1", "token"); err != nil {
		t.Fatalf("resolve 2: %v", err)
	}
	if catalog.Calls("fetch_asset") != 1 {
		t.Fatalf("expected one backend fetch, got %d", catalog.Calls("fetch_asset"))
	}
	if near.Len() != 1 {
		t.Fatalf("expected near tier back-filled")
	}

	if _, err := second.Resolve(context.Background(), "img-1", "other-token"); err != nil {
		t.Fatalf("resolve other token: %v", err)
	}
	if catalog.Calls("fetch_asset") != 2 {
		t.Fatalf("expected a fetch for the other token, got %d", catalog.Calls("fetch_asset"))
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
