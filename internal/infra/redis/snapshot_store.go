package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mystery-hunt-client/internal/domain"
)

// SnapshotStore keeps the last-known copy of each level in Redis so a
// restarted client can still render a level while the backend is down.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) SaveLevel(ctx context.Context, scope string, level domain.Level) error {
	payload, err := json.Marshal(level)
	if err != nil {
		return fmt.Errorf("encode level %s: %w", level.ID, err)
	}
	return s.client.Set(ctx, s.key(scope, level.ID), payload, s.ttl).Err()
}

func (s *SnapshotStore) LoadLevel(ctx context.Context, scope, levelID string) (domain.Level, error) {
	payload, err := s.client.Get(ctx, s.key(scope, levelID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Level{}, domain.ErrNoSnapshot
	}
	if err != nil {
		return domain.Level{}, err
	}
	var level domain.Level
	if err := json.Unmarshal(payload, &level); err != nil {
		return domain.Level{}, fmt.Errorf("decode level %s: %w", levelID, err)
	}
	return level, nil
}

func (s *SnapshotStore) key(scope, levelID string) string {
	return "level:snapshot:" + scope + ":" + levelID
}
