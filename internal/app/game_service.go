package app

import (
	"context"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/logger"
	"mystery-hunt-client/internal/metrics"
)

// GameAPI is the backend surface the client consumes.
type GameAPI interface {
	LevelSource
	AnswerSubmitter
	HintRequester
	AssetFetcher
	GetUserProgress(ctx context.Context, token, mysteryID string) (domain.UserProgress, error)
	ListMysteries(ctx context.Context, token string, joined bool) ([]domain.Mystery, error)
	JoinMystery(ctx context.Context, token string, req domain.JoinRequest) (string, error)
	CollectedPresents(ctx context.Context, token string) ([]domain.Present, error)
}

// SnapshotStore keeps the last-known copy of each level for stale fallback.
// scope is the owner from Scope; one user's snapshot never serves another.
type SnapshotStore interface {
	SaveLevel(ctx context.Context, scope string, level domain.Level) error
	LoadLevel(ctx context.Context, scope, levelID string) (domain.Level, error)
}

// GameService contains the client-side game use cases.
type GameService struct {
	api       GameAPI
	assets    *AssetCache
	coord     *Coordinator
	snapshots SnapshotStore
	validate  *validator.Validate
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	sf        singleflight.Group

	mu       sync.RWMutex
	catalogs map[string][]domain.Level // by scopedKey(scope, mysteryID)
}

// ServiceOption customizes a GameService.
type ServiceOption func(*GameService)

func WithSnapshots(store SnapshotStore) ServiceOption {
	return func(s *GameService) { s.snapshots = store }
}

func WithLogger(l logrus.FieldLogger) ServiceOption {
	return func(s *GameService) { s.log = logger.OrDiscard(l) }
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *GameService) { s.metrics = m }
}

func NewGameService(api GameAPI, assets *AssetCache, opts ...ServiceOption) *GameService {
	s := &GameService{
		api:      api,
		assets:   assets,
		validate: validator.New(),
		log:      logger.Discard(),
		catalogs: make(map[string][]domain.Level),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.coord = NewCoordinator(api, s.log, s.metrics)
	return s
}

// Assets exposes the session-scoped asset cache.
func (s *GameService) Assets() *AssetCache { return s.assets }

// Levels fetches token's level catalog for a mystery and remembers it.
// Concurrent loads of the same mystery with the same token share one request.
func (s *GameService) Levels(ctx context.Context, token, mysteryID string) ([]domain.Level, error) {
	scope := Scope(token)
	if scope == "" {
		return nil, domain.ErrMissingToken
	}
	key := scopedKey(scope, mysteryID)
	result, err := shared(ctx, &s.sf, "levels:"+key, func(ctx context.Context) (interface{}, error) {
		levels, err := s.api.GetLevels(ctx, token, mysteryID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.catalogs[key] = levels
		s.mu.Unlock()
		s.saveSnapshots(ctx, scope, levels...)
		return levels, nil
	})
	if err != nil {
		s.log.WithError(err).WithField("mystery_id", mysteryID).Warn("level catalog fetch failed")
		return nil, err
	}
	return cloneLevels(result.([]domain.Level)), nil
}

// CachedLevels returns the catalog last fetched for a mystery with token.
func (s *GameService) CachedLevels(token, mysteryID string) ([]domain.Level, bool) {
	scope := Scope(token)
	if scope == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	levels, ok := s.catalogs[scopedKey(scope, mysteryID)]
	return cloneLevels(levels), ok
}

// FindLevel looks a level up in token's cached catalog.
func (s *GameService) FindLevel(token, mysteryID, levelID string) (domain.Level, bool) {
	levels, _ := s.CachedLevels(token, mysteryID)
	for _, l := range levels {
		if l.ID == levelID {
			return l, true
		}
	}
	return domain.Level{}, false
}

// OpenLevel loads a fresh copy of parent and starts a session on it. When the
// fetch fails the last-known snapshot is used instead and a non-fatal
// notification is returned alongside the session.
func (s *GameService) OpenLevel(ctx context.Context, token string, parent domain.Level, next Continuation) (*LevelSession, *Notification, error) {
	if !parent.IsUnlocked {
		return nil, nil, &domain.ValidationError{Field: "level", Message: "complete previous levels to unlock this one"}
	}

	level := parent
	var notice *Notification
	if !parent.IsCompleted || len(parent.Questions) == 0 {
		fresh, err := s.api.GetLevel(ctx, token, parent.ID)
		if err != nil {
			n := NotifyStale(err)
			if domain.IsAuth(err) {
				n = NotifyError("Load level", err)
			}
			notice = &n
			level = s.lastKnown(ctx, Scope(token), parent)
			s.metrics.ObserveStaleFallback()
			s.log.WithError(err).WithField("level_id", parent.ID).Warn("level fetch failed, using last-known snapshot")
		} else {
			level = Reconcile(fresh, parent)
			s.saveSnapshots(ctx, Scope(token), level)
		}
	}

	engine := NewEngine(level, parent.IsCompleted)
	session := NewLevelSession(token, engine, next, SessionDeps{
		Levels:      s.api,
		Hints:       s.api,
		Coordinator: s.coord,
		Assets:      s.assets,
		Log:         s.log,
	})
	if err := session.start(ctx); err != nil {
		return session, notice, err
	}
	return session, notice, nil
}

func (s *GameService) lastKnown(ctx context.Context, scope string, parent domain.Level) domain.Level {
	if len(parent.Questions) > 0 || s.snapshots == nil || scope == "" {
		return parent
	}
	snap, err := s.snapshots.LoadLevel(ctx, scope, parent.ID)
	if err != nil {
		return parent
	}
	return Reconcile(snap, parent)
}

func (s *GameService) saveSnapshots(ctx context.Context, scope string, levels ...domain.Level) {
	if s.snapshots == nil || scope == "" {
		return
	}
	for _, l := range levels {
		if err := s.snapshots.SaveLevel(ctx, scope, l); err != nil {
			s.log.WithError(err).WithField("level_id", l.ID).Debug("snapshot save failed")
		}
	}
}

// NextLevel finds the level after currentID. The cached catalog is tried
// first; if the next level is not unlocked there the catalog is refreshed
// once. ok is false when the caller should return to the level list.
func (s *GameService) NextLevel(ctx context.Context, token, mysteryID, currentID string) (domain.Level, bool, error) {
	levels, cached := s.CachedLevels(token, mysteryID)
	if cached {
		if next, ok := nextUnlocked(levels, currentID); ok {
			return next, true, nil
		}
	}
	levels, err := s.Levels(ctx, token, mysteryID)
	if err != nil {
		return domain.Level{}, false, err
	}
	next, ok := nextUnlocked(levels, currentID)
	return next, ok, nil
}

func nextUnlocked(levels []domain.Level, currentID string) (domain.Level, bool) {
	for i, l := range levels {
		if l.ID != currentID {
			continue
		}
		if i+1 < len(levels) && levels[i+1].IsUnlocked {
			return levels[i+1], true
		}
		return domain.Level{}, false
	}
	return domain.Level{}, false
}

func (s *GameService) Progress(ctx context.Context, token, mysteryID string) (domain.UserProgress, error) {
	return s.api.GetUserProgress(ctx, token, mysteryID)
}

func (s *GameService) Mysteries(ctx context.Context, token string, joined bool) ([]domain.Mystery, error) {
	return s.api.ListMysteries(ctx, token, joined)
}

func (s *GameService) CollectedPresents(ctx context.Context, token string) ([]domain.Present, error) {
	return s.api.CollectedPresents(ctx, token)
}

// Join validates the request locally before joining a mystery.
func (s *GameService) Join(ctx context.Context, token string, req domain.JoinRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", &domain.ValidationError{Field: "join", Message: err.Error()}
	}
	return s.api.JoinMystery(ctx, token, req)
}

// Summary is the level-list overview.
type Summary struct {
	Completed    int
	Total        int
	Percent      float64
	CurrentQuest *domain.Level
}

// Summarize counts completed levels and picks the current quest: the first
// unlocked, not completed level with quest text.
func Summarize(levels []domain.Level) Summary {
	sum := Summary{Total: len(levels)}
	for i := range levels {
		l := levels[i]
		if l.IsCompleted {
			sum.Completed++
		}
		if sum.CurrentQuest == nil && l.IsUnlocked && !l.IsCompleted && l.Quest != "" {
			sum.CurrentQuest = &l
		}
	}
	if sum.Total > 0 {
		sum.Percent = float64(sum.Completed) / float64(sum.Total) * 100
	}
	return sum
}

// FormatPercent renders a summary percentage for display.
func (s Summary) FormatPercent() string {
	return strconv.FormatFloat(s.Percent, 'f', 0, 64) + "%"
}

func cloneLevels(in []domain.Level) []domain.Level {
	if in == nil {
		return nil
	}
	out := make([]domain.Level, len(in))
	for i, l := range in {
		out[i] = l.Clone()
	}
	return out
}
