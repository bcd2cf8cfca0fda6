package app

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/infra/memory"
)

func newService(t *testing.T, levels ...domain.Level) (*GameService, *memory.Catalog, *memory.SnapshotStore) {
	t.Helper()
	catalog := memory.NewCatalog()
	catalog.AddMystery("1", levels...)
	store, err := memory.NewBlobStore(8)
	require.NoError(t, err)
	snapshots := memory.NewSnapshotStore()
	svc := NewGameService(catalog, NewAssetCache(catalog, store), WithSnapshots(snapshots))
	return svc, catalog, snapshots
}

func twoLevels() (domain.Level, domain.Level) {
	first := textLevel(gift, "text")
	second := domain.Level{
		ID:        "level-2",
		Name:      "Cliffs",
		Questions: []domain.Question{{ID: "z", LevelID: "level-2", Prompt: "Count the gulls", Type: "text"}},
	}
	return first, second
}

func noop(context.Context) error { return nil }

func TestOpenLevelRejectsLockedParent(t *testing.T) {
	first, second := twoLevels()
	svc, catalog, _ := newService(t, first, second)

	_, _, err := svc.OpenLevel(context.Background(), "tok", second, noop)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, 0, catalog.Calls("get_level"))
}

func TestOpenLevelFetchesFreshCopy(t *testing.T) {
	first, second := twoLevels()
	svc, catalog, snapshots := newService(t, first, second)

	parent := first
	parent.Questions = nil
	s, notice, err := svc.OpenLevel(context.Background(), "tok", parent, noop)
	require.NoError(t, err)
	defer s.Close()
	assert.Nil(t, notice)
	assert.Equal(t, 1, catalog.Calls("get_level"))
	assert.Len(t, s.Level().Questions, 1)
	assert.Equal(t, AwaitingAnswer(0), s.State())

	saved, err := snapshots.LoadLevel(context.Background(), Scope("tok"), "level-1")
	require.NoError(t, err)
	assert.Len(t, saved.Questions, 1)
}

func TestOpenLevelFallsBackToParent(t *testing.T) {
	first, second := twoLevels()
	svc, catalog, _ := newService(t, first, second)
	catalog.FailNext("get_level", errors.New("connection refused"))

	s, notice, err := svc.OpenLevel(context.Background(), "tok", first, noop)
	require.NoError(t, err)
	defer s.Close()
	require.NotNil(t, notice)
	assert.Equal(t, NoticeStale, notice.Kind)
	assert.Equal(t, AwaitingAnswer(0), s.State())
}

func TestOpenLevelFallsBackToSnapshot(t *testing.T) {
	first, second := twoLevels()
	svc, catalog, _ := newService(t, first, second)
	_, err := svc.Levels(context.Background(), "tok", "1")
	require.NoError(t, err)

	catalog.FailNext("get_level", errors.New("connection refused"))
	parent := first
	parent.Questions = nil
	s, notice, err := svc.OpenLevel(context.Background(), "tok", parent, noop)
	require.NoError(t, err)
	defer s.Close()
	require.NotNil(t, notice)
	assert.Len(t, s.Level().Questions, 1)
}

func TestOpenLevelAuthFailureNotifiesLogin(t *testing.T) {
	first, second := twoLevels()
	svc, catalog, _ := newService(t, first, second)
	catalog.FailNext("get_level", &domain.APIError{Op: "get_level", Status: http.StatusUnauthorized, Detail: "Token expired"})

	s, notice, err := svc.OpenLevel(context.Background(), "tok", first, noop)
	require.NoError(t, err)
	defer s.Close()
	require.NotNil(t, notice)
	assert.Equal(t, NoticeAuth, notice.Kind)
}

func TestOpenCompletedParentAdvancesImmediately(t *testing.T) {
	first, second := twoLevels()
	first.Present = nil
	first.IsCompleted = true
	svc, catalog, _ := newService(t, first, second)

	called := 0
	s, _, err := svc.OpenLevel(context.Background(), "tok", first, func(context.Context) error {
		called++
		return nil
	})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, Advance(), s.State())
	assert.Equal(t, 1, called)
	assert.Equal(t, 0, catalog.Calls("get_level"))
}

func TestNextLevelRefreshesCatalogOnce(t *testing.T) {
	first, second := twoLevels()
	svc, catalog, _ := newService(t, first, second)
	ctx := context.Background()
	catalog.SetAnswer("a", "yes")

	_, err := svc.Levels(ctx, "tok", "1")
	require.NoError(t, err)
	_, err = catalog.SubmitAnswer(ctx, "tok", "a", domain.TextAnswer("yes"))
	require.NoError(t, err)

	next, ok, err := svc.NextLevel(ctx, "tok", "1", "level-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "level-2", next.ID)
	assert.Equal(t, 2, catalog.Calls("get_levels"))

	_, ok, err = svc.NextLevel(ctx, "tok", "1", "level-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalogCacheIsPerToken(t *testing.T) {
	first, second := twoLevels()
	second.IsUnlocked = true
	svc, catalog, _ := newService(t, first, second)
	ctx := context.Background()

	_, err := svc.Levels(ctx, "token-a", "1")
	require.NoError(t, err)
	_, found := svc.FindLevel("token-b", "1", "level-2")
	assert.False(t, found, "another token must not see the cached catalog")

	next, ok, err := svc.NextLevel(ctx, "token-b", "1", "level-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "level-2", next.ID)
	assert.Equal(t, 2, catalog.Calls("get_levels"), "second token must load its own catalog")

	_, err = svc.Levels(ctx, "", "1")
	assert.ErrorIs(t, err, domain.ErrMissingToken)
	assert.Equal(t, 2, catalog.Calls("get_levels"))
}

func TestSnapshotFallbackIsPerToken(t *testing.T) {
	first, second := twoLevels()
	svc, catalog, snapshots := newService(t, first, second)
	ctx := context.Background()

	_, err := svc.Levels(ctx, "token-a", "1")
	require.NoError(t, err)
	_, err = snapshots.LoadLevel(ctx, Scope("token-b"), "level-1")
	assert.ErrorIs(t, err, domain.ErrNoSnapshot)

	catalog.FailNext("get_level", errors.New("connection refused"))
	parent := first
	parent.Questions = nil
	s, notice, err := svc.OpenLevel(ctx, "token-b", parent, noop)
	require.NoError(t, err)
	defer s.Close()
	require.NotNil(t, notice)
	assert.Empty(t, s.Level().Questions, "token-a's snapshot must not leak to token-b")
}

func TestScopeIsStablePerToken(t *testing.T) {
	assert.Equal(t, "", Scope(""))
	assert.Equal(t, Scope("token-a"), Scope(" token-a "))
	assert.NotEqual(t, Scope("token-a"), Scope("token-b"))
	assert.NotContains(t, Scope("token-a"), "token-a")
}

func TestJoinValidatesLocally(t *testing.T) {
	first, second := twoLevels()
	svc, catalog, _ := newService(t, first, second)

	_, err := svc.Join(context.Background(), "tok", domain.JoinRequest{MysteryID: 0, Pin: ""})
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, 0, catalog.Calls("join_mystery"))
}

func TestSummarize(t *testing.T) {
	levels := []domain.Level{
		{ID: "1", IsUnlocked: true, IsCompleted: true, Quest: "done"},
		{ID: "2", IsUnlocked: true, Quest: "Find the keeper"},
		{ID: "3", Quest: "locked"},
		{ID: "4"},
	}
	sum := Summarize(levels)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, "25%", sum.FormatPercent())
	require.NotNil(t, sum.CurrentQuest)
	assert.Equal(t, "2", sum.CurrentQuest.ID)

	assert.Equal(t, "0%", Summarize(nil).FormatPercent())
}

func TestNotifyError(t *testing.T) {
	assert.Equal(t, NoticeAuth, NotifyError("x", domain.ErrMissingToken).Kind)
	assert.Equal(t, NoticeBusy, NotifyError("x", domain.ErrSubmissionInFlight).Kind)
	n := NotifyError("Submit answer", &domain.APIError{Status: 500, Detail: "Internal Server Error"})
	assert.Equal(t, NoticeNetwork, n.Kind)
	assert.Equal(t, "Internal Server Error", n.Message)
	assert.True(t, n.Retryable)
}

func TestNotifyValidationTitleFollowsOperation(t *testing.T) {
	cases := []struct {
		op   string
		err  error
		want string
	}{
		{op: "Submit answer", err: &domain.ValidationError{Field: "answer", Message: "please provide an answer to continue"}, want: "Answer Required"},
		{op: "Open level", err: &domain.ValidationError{Field: "level", Message: "complete previous levels to unlock this one"}, want: "Cannot open level"},
		{op: "Request hint", err: &domain.ValidationError{Field: "hint", Message: "no hint for this question"}, want: "Cannot request hint"},
		{op: "Load asset", err: &domain.ValidationError{Field: "asset", Message: "no asset provided"}, want: "Cannot load asset"},
	}
	for _, tc := range cases {
		n := NotifyError(tc.op, tc.err)
		assert.Equal(t, NoticeValidation, n.Kind)
		assert.Equal(t, tc.want, n.Title, tc.op)
	}
}
