package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mystery-hunt-client/internal/domain"
)

// SnapshotStore persists last-known level JSONB in Postgres, one row per
// owner scope and level.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

func (s *SnapshotStore) SaveLevel(ctx context.Context, scope string, level domain.Level) error {
	raw, err := json.Marshal(level)
	if err != nil {
		return fmt.Errorf("marshal level: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO level_snapshots (owner, id, data, updated_at) VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (owner, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		scope, level.ID, string(raw))
	if err != nil {
		return fmt.Errorf("save level snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) LoadLevel(ctx context.Context, scope, levelID string) (domain.Level, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM level_snapshots WHERE owner=$1 AND id=$2`, scope, levelID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Level{}, domain.ErrNoSnapshot
	}
	if err != nil {
		return domain.Level{}, fmt.Errorf("load level snapshot: %w", err)
	}
	var level domain.Level
	if err := json.Unmarshal(raw, &level); err != nil {
		return domain.Level{}, fmt.Errorf("unmarshal level: %w", err)
	}
	return level, nil
}
