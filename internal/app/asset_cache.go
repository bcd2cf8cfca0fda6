package app

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/logger"
	"mystery-hunt-client/internal/metrics"
)

// AssetFetcher performs the authenticated download of one asset.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, token, assetID string) (domain.Blob, error)
}

// BlobStore holds fetched blobs keyed by token scope and canonical asset id.
// Writes are whole-entry inserts.
type BlobStore interface {
	Get(ctx context.Context, key string) (domain.Blob, bool)
	Put(ctx context.Context, key string, blob domain.Blob)
}

// Handle is a per-consumer reference to a cached blob. URL is the local path
// the transport layer serves it under.
type Handle struct {
	ID  string
	Key string
	URL string
}

// DefaultHandlePrefix is where the local gateway serves handles.
const DefaultHandlePrefix = "/assets/"

// CanonicalKey extracts the embedded id from provider share links such as
// ".../view?id=ABC123&export=download"; anything else is used verbatim.
func CanonicalKey(raw string) string {
	if !strings.Contains(raw, "google") {
		return raw
	}
	i := strings.Index(raw, "id=")
	if i < 0 {
		return raw
	}
	id := raw[i+len("id="):]
	if j := strings.IndexByte(id, '&'); j >= 0 {
		id = id[:j]
	}
	if id == "" {
		return raw
	}
	return id
}

// AssetCache deduplicates authenticated asset fetches and hands out
// revocable handles. Releasing a handle never evicts the cached blob.
type AssetCache struct {
	fetcher AssetFetcher
	store   BlobStore
	prefix  string
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	sf      singleflight.Group

	mu      sync.RWMutex
	handles map[string]handleEntry
}

type handleEntry struct {
	key  string
	blob domain.Blob
}

// AssetCacheOption customizes an AssetCache.
type AssetCacheOption func(*AssetCache)

func WithHandlePrefix(prefix string) AssetCacheOption {
	return func(c *AssetCache) { c.prefix = prefix }
}

func WithAssetLogger(l logrus.FieldLogger) AssetCacheOption {
	return func(c *AssetCache) { c.log = logger.OrDiscard(l) }
}

func WithAssetMetrics(m *metrics.Metrics) AssetCacheOption {
	return func(c *AssetCache) { c.metrics = m }
}

func NewAssetCache(fetcher AssetFetcher, store BlobStore, opts ...AssetCacheOption) *AssetCache {
	c := &AssetCache{
		fetcher: fetcher,
		store:   store,
		prefix:  DefaultHandlePrefix,
		log:     logger.Discard(),
		handles: make(map[string]handleEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns a fresh handle for raw, fetching the blob at most once per
// token and canonical key. Concurrent misses for the same key share one
// fetch; a failed fetch caches nothing. Blobs fetched with one token are
// never served to another.
func (c *AssetCache) Resolve(ctx context.Context, raw, token string) (Handle, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Handle{}, &domain.ValidationError{Field: "asset", Message: "no asset provided"}
	}
	scope := Scope(token)
	if scope == "" {
		return Handle{}, domain.ErrMissingToken
	}
	key := CanonicalKey(raw)

	blob, ok := c.store.Get(ctx, scopedKey(scope, key))
	if ok {
		c.metrics.ObserveAssetLookup("hit")
	} else {
		c.metrics.ObserveAssetLookup("miss")
		var err error
		blob, err = c.load(ctx, scope, key, token)
		if err != nil {
			c.metrics.ObserveAssetLookup("error")
			c.log.WithError(err).WithField("asset", key).Warn("secure asset fetch failed")
			return Handle{}, err
		}
	}
	return c.issue(key, blob), nil
}

func (c *AssetCache) load(ctx context.Context, scope, key, token string) (domain.Blob, error) {
	storeKey := scopedKey(scope, key)
	result, err := shared(ctx, &c.sf, storeKey, func(ctx context.Context) (interface{}, error) {
		// Re-check in case another caller filled it.
		if blob, ok := c.store.Get(ctx, storeKey); ok {
			return blob, nil
		}
		c.metrics.ObserveAssetFetch()
		blob, err := c.fetcher.FetchAsset(ctx, token, key)
		if err != nil {
			return domain.Blob{}, err
		}
		c.store.Put(ctx, storeKey, blob)
		return blob, nil
	})
	if err != nil {
		return domain.Blob{}, err
	}
	return result.(domain.Blob), nil
}

func (c *AssetCache) issue(key string, blob domain.Blob) Handle {
	id := uuid.NewString()
	c.mu.Lock()
	c.handles[id] = handleEntry{key: key, blob: blob}
	live := len(c.handles)
	c.mu.Unlock()
	c.metrics.SetLiveHandles(live)
	return Handle{ID: id, Key: key, URL: c.prefix + id}
}

// Open dereferences a live handle. The handle keeps its blob reachable even
// if the store has since evicted the entry.
func (c *AssetCache) Open(handleID string) (domain.Blob, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.handles[handleID]
	if !ok {
		return domain.Blob{}, domain.ErrHandleNotFound
	}
	return entry.blob, nil
}

// Release revokes a handle. It reports false for unknown or already released handles.
func (c *AssetCache) Release(handleID string) bool {
	c.mu.Lock()
	_, ok := c.handles[handleID]
	delete(c.handles, handleID)
	live := len(c.handles)
	c.mu.Unlock()
	c.metrics.SetLiveHandles(live)
	return ok
}

// LiveHandles returns the number of unreleased handles.
func (c *AssetCache) LiveHandles() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

// Cached reports whether raw's canonical key has a blob stored for token.
func (c *AssetCache) Cached(ctx context.Context, token, raw string) bool {
	scope := Scope(token)
	if scope == "" {
		return false
	}
	_, ok := c.store.Get(ctx, scopedKey(scope, CanonicalKey(raw)))
	return ok
}

// TieredStore reads through a fast near store to a shared far store and
// back-fills near on far hits.
type TieredStore struct {
	Near BlobStore
	Far  BlobStore
}

func (t TieredStore) Get(ctx context.Context, key string) (domain.Blob, bool) {
	if blob, ok := t.Near.Get(ctx, key); ok {
		return blob, true
	}
	blob, ok := t.Far.Get(ctx, key)
	if ok {
		t.Near.Put(ctx, key, blob)
	}
	return blob, ok
}

func (t TieredStore) Put(ctx context.Context, key string, blob domain.Blob) {
	t.Near.Put(ctx, key, blob)
	t.Far.Put(ctx, key, blob)
}
