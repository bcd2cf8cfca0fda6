package redis

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/logger"
)

// BlobStore shares fetched assets between client processes.
// Each blob is stored as: HSET asset:{key} content_type {type} data {bytes}
type BlobStore struct {
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewBlobStore(client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *BlobStore {
	return &BlobStore{
		client: client,
		ttl:    ttl,
		log:    logger.OrDiscard(log),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Get treats any redis failure as a miss so the caller falls back to fetching.
func (s *BlobStore) Get(ctx context.Context, key string) (domain.Blob, bool) {
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		s.log.WithError(err).WithField("asset", key).Debug("redis blob read failed")
		return domain.Blob{}, false
	}
	data, ok := fields["data"]
	if !ok {
		return domain.Blob{}, false
	}
	return domain.Blob{ContentType: fields["content_type"], Data: []byte(data)}, true
}

func (s *BlobStore) Put(ctx context.Context, key string, blob domain.Blob) {
	k := s.key(key)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, "content_type", blob.ContentType, "data", blob.Data)
	if ttl := s.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, k, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.WithError(err).WithField("asset", key).Warn("redis blob write failed")
	}
}

func (s *BlobStore) key(assetKey string) string {
	return "asset:" + assetKey
}

func (s *BlobStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
