package memory

import (
	"context"
	"errors"
	"testing"

	"mystery-hunt-client/internal/domain"
)

func TestBlobStoreEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	store, err := NewBlobStore(2)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	store.Put(ctx, "a", domain.Blob{Data: []byte("a")})
	store.Put(ctx, "b", domain.Blob{Data: []byte("b")})
	if _, ok := store.Get(ctx, "a"); !ok {
		t.Fatalf("expected a to be cached")
	}
	store.Put(ctx, "c", domain.Blob{Data: []byte("c")})

	if _, ok := store.Get(ctx, "b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if _, ok := store.Get(ctx, "a"); !ok {
		t.Fatalf("expected a to survive eviction")
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", store.Len())
	}
}

func TestBlobStoreUnbounded(t *testing.T) {
	ctx := context.Background()
	store, err := NewBlobStore(0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, key := range []string{"a", "b", "c"} {
		store.Put(ctx, key, domain.Blob{ContentType: "image/png", Data: []byte(key)})
	}
	blob, ok := store.Get(ctx, "a")
	if !ok || string(blob.Data) != "a" || blob.ContentType != "image/png" {
		t.Fatalf("unexpected blob %+v ok=%v", blob, ok)
	}
	if store.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", store.Len())
	}
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	if _, err := store.LoadLevel(ctx, "owner-a", "level-1"); !errors.Is(err, domain.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}

	level := sampleLevel("level-1", true)
	if err := store.SaveLevel(ctx, "owner-a", level); err != nil {
		t.Fatalf("save: %v", err)
	}
	level.Questions[0].Status.Completed = true

	got, err := store.LoadLevel(ctx, "owner-a", "level-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Questions[0].Status.Completed {
		t.Fatalf("stored snapshot must not alias caller's questions")
	}
	if _, err := store.LoadLevel(ctx, "owner-b", "level-1"); !errors.Is(err, domain.ErrNoSnapshot) {
		t.Fatalf("expected other owner to miss, got %v", err)
	}
}
