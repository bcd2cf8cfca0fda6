package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"mystery-hunt-client/internal/app"
	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/infra/memory"
)

func TestAssetHandlerServesAndReleases(t *testing.T) {
	catalog := memory.NewCatalog()
	catalog.AddAsset("img-1", domain.Blob{Data: []byte("\x89PNG\r\n\x1a\n")})
	store, _ := memory.NewBlobStore(0)
	assets := app.NewAssetCache(catalog, store)

	mux := http.NewServeMux()
	NewAssetHandler(assets, nil).Register(mux, "/assets/")

	h, err := assets.Resolve(context.Background(), "img-1", "tok")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, h.URL, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected sniffed image/png, got %q", ct)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, h.URL, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, h.URL, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after release, got %d", rec.Code)
	}
	if !assets.Cached(context.Background(), "tok", "img-1") {
		t.Fatalf("release must not evict the cached blob")
	}
}
