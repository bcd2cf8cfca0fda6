package app

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/logger"
)

// LevelSource loads level snapshots from the backend.
type LevelSource interface {
	GetLevels(ctx context.Context, token, mysteryID string) ([]domain.Level, error)
	GetLevel(ctx context.Context, token, levelID string) (domain.Level, error)
}

// HintRequester asks the backend to deliver a hint out of band.
type HintRequester interface {
	RequestHint(ctx context.Context, token, questionID string) (string, error)
}

// Snapshot is the broadcast view of a level session.
type Snapshot struct {
	SessionID    string           `json:"sessionId"`
	LevelID      string           `json:"levelId"`
	LevelName    string           `json:"levelName"`
	Phase        string           `json:"phase"`
	Index        int              `json:"index"`
	Total        int              `json:"total"`
	Stars        string           `json:"stars"`
	Question     *domain.Question `json:"question,omitempty"`
	Present      *domain.Present  `json:"present,omitempty"`
	Submitting   bool             `json:"submitting"`
	HasDraft     bool             `json:"hasDraft"`
	PuzzleSolved bool             `json:"puzzleSolved"`
	HintSent     bool             `json:"hintSent"`
	Error        string           `json:"error,omitempty"`
	Notification *Notification    `json:"notification,omitempty"`
}

// LevelSnapshot describes a level without a live session: one still loading
// or one that failed to open.
func LevelSnapshot(level domain.Level, st State, n *Notification) Snapshot {
	snap := Snapshot{
		LevelID:      level.ID,
		LevelName:    level.Name,
		Phase:        st.Phase.String(),
		Index:        st.Index,
		Total:        len(level.Questions),
		Stars:        level.Stars(),
		Notification: n,
	}
	if st.Err != nil {
		snap.Error = st.Err.Error()
	}
	return snap
}

// SessionDeps are the collaborators a LevelSession talks to.
type SessionDeps struct {
	Levels      LevelSource
	Hints       HintRequester
	Coordinator *Coordinator
	Assets      *AssetCache
	Log         logrus.FieldLogger
}

// LevelSession drives one level from its first open question to the
// continuation. After Close no fetch or submission result is applied and
// every asset handle it holds is released.
type LevelSession struct {
	id     string
	token  string
	engine *Engine
	seq    *Sequencer
	deps   SessionDeps
	log    logrus.FieldLogger

	mu          sync.RWMutex
	draft       Draft
	closed      bool
	handles     map[string]struct{}
	last        *Notification
	subscribers map[chan Snapshot]struct{}
}

// NewLevelSession binds an engine to its collaborators. next runs once the
// level is done (after the reveal is acknowledged, or immediately on Advance).
func NewLevelSession(token string, engine *Engine, next Continuation, deps SessionDeps) *LevelSession {
	s := &LevelSession{
		id:          uuid.NewString(),
		token:       token,
		engine:      engine,
		deps:        deps,
		handles:     make(map[string]struct{}),
		subscribers: make(map[chan Snapshot]struct{}),
	}
	s.log = logger.OrDiscard(deps.Log).WithFields(logrus.Fields{
		"session_id": s.id,
		"level_id":   engine.Level().ID,
	})
	s.seq = NewSequencer(next, s.resetDraft)
	return s
}

func (s *LevelSession) ID() string { return s.id }

func (s *LevelSession) State() State { return s.engine.State() }

func (s *LevelSession) Level() domain.Level { return s.engine.Level() }

// Revealing returns the present waiting for acknowledgement.
func (s *LevelSession) Revealing() *domain.Present { return s.seq.Revealing() }

func (s *LevelSession) Draft() Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft
}

func (s *LevelSession) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// start hands an already-terminal initial state to the sequencer.
func (s *LevelSession) start(ctx context.Context) error {
	st := s.engine.State()
	if !st.Terminal() {
		return nil
	}
	_, err := s.seq.OnLevelComplete(ctx, st)
	s.mu.Lock()
	s.broadcastLocked()
	s.mu.Unlock()
	return err
}

func (s *LevelSession) resetDraft() {
	s.mu.Lock()
	s.draft.Reset()
	s.mu.Unlock()
}

func (s *LevelSession) SetText(text string) error {
	return s.editDraft(func(d *Draft) { d.Text = text })
}

func (s *LevelSession) SetUpload(u domain.Upload) error {
	return s.editDraft(func(d *Draft) { d.File = &u })
}

// MarkPuzzleSolved records the black-box puzzle's solved signal.
func (s *LevelSession) MarkPuzzleSolved() error {
	return s.editDraft(func(d *Draft) { d.PuzzleSolved = true })
}

func (s *LevelSession) editDraft(fn func(*Draft)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	fn(&s.draft)
	s.broadcastLocked()
	return nil
}

func (s *LevelSession) answerLocked(q domain.Question) (domain.Answer, error) {
	switch q.Kind() {
	case domain.KindImageUpload:
		return domain.Answer{File: s.draft.File}, nil
	case domain.KindPuzzle:
		if !s.draft.PuzzleSolved {
			return domain.Answer{}, &domain.ValidationError{Field: "puzzle", Message: "solve the puzzle first"}
		}
		return domain.TextAnswer(domain.PuzzleSolvedAnswer), nil
	default:
		return domain.TextAnswer(s.draft.Text), nil
	}
}

// Submit sends the current draft for the active question and applies the
// interpreted result.
func (s *LevelSession) Submit(ctx context.Context) (Notification, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Notification{}, domain.ErrSessionClosed
	}
	q, ok := s.engine.Current()
	if !ok {
		s.mu.Unlock()
		err := &domain.ValidationError{Field: "question", Message: "no question is awaiting an answer"}
		return NotifyError(opSubmitAnswer, err), err
	}
	answer, err := s.answerLocked(q)
	if err == nil {
		answer, err = ValidateAnswer(q, answer)
	}
	if err != nil {
		n := s.noticeLocked(NotifyError(opSubmitAnswer, err))
		s.mu.Unlock()
		return n, err
	}
	s.mu.Unlock()

	out, err := s.deps.Coordinator.Submit(ctx, s.token, q, answer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.WithField("question_id", q.ID).Debug("dropping submission result for closed session")
		return Notification{}, domain.ErrSessionClosed
	}
	if err != nil {
		n := s.noticeLocked(NotifyError(opSubmitAnswer, err))
		s.mu.Unlock()
		return n, err
	}
	st := s.engine.Apply(out)
	if out.Verdict != domain.VerdictIncorrect {
		s.draft.Reset()
	}
	n := s.noticeLocked(NotifyOutcome(out))
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"question_id": q.ID, "state": st.String()}).Info("answer applied")
	if st.Terminal() {
		return n, s.complete(ctx, st)
	}
	return n, nil
}

func (s *LevelSession) complete(ctx context.Context, st State) error {
	_, err := s.seq.OnLevelComplete(ctx, st)
	s.mu.Lock()
	if !s.closed {
		s.broadcastLocked()
	}
	s.mu.Unlock()
	return err
}

// Acknowledge closes the present reveal and runs the continuation.
func (s *LevelSession) Acknowledge(ctx context.Context) error {
	if s.Closed() {
		return domain.ErrSessionClosed
	}
	return s.seq.Acknowledge(ctx)
}

// RequestHint asks for the active hint-assisted question's hint once.
func (s *LevelSession) RequestHint(ctx context.Context) (Notification, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Notification{}, domain.ErrSessionClosed
	}
	q, ok := s.engine.Current()
	if !ok || q.Kind() != domain.KindHintText {
		s.mu.Unlock()
		err := &domain.ValidationError{Field: "hint", Message: "no hint is available for this question"}
		return NotifyError("Request hint", err), err
	}
	if s.draft.HintSent {
		n := s.noticeLocked(Notification{Kind: NoticeHint, Title: "Hint Sent", Message: "The hint was already sent."})
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()

	detail, err := s.deps.Hints.RequestHint(ctx, s.token, q.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Notification{}, domain.ErrSessionClosed
	}
	if err != nil {
		return s.noticeLocked(NotifyError("Request hint", err)), err
	}
	s.draft.HintSent = true
	return s.noticeLocked(Notification{Kind: NoticeHint, Title: "Successful", Message: orDefault(detail, "Hint sent successfully!")}), nil
}

// Refresh re-fetches the level and reconciles it with server status winning.
// A failed fetch leaves the current state untouched.
func (s *LevelSession) Refresh(ctx context.Context) (State, error) {
	if s.Closed() {
		return State{}, domain.ErrSessionClosed
	}
	before := s.engine.State()
	level, err := s.deps.Levels.GetLevel(ctx, s.token, s.engine.Level().ID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, domain.ErrSessionClosed
	}
	if err != nil {
		s.noticeLocked(NotifyError("Refresh level", err))
		s.mu.Unlock()
		return before, err
	}
	st := s.engine.Refresh(level)
	if st.Phase != before.Phase || st.Index != before.Index {
		s.draft.Reset()
	}
	s.broadcastLocked()
	s.mu.Unlock()

	if st.Terminal() && !before.Terminal() {
		return st, s.complete(ctx, st)
	}
	return st, nil
}

// ResolveAsset fetches raw through the asset cache and tracks the handle so
// Close can release it.
func (s *LevelSession) ResolveAsset(ctx context.Context, raw string) (Handle, error) {
	if s.Closed() {
		return Handle{}, domain.ErrSessionClosed
	}
	h, err := s.deps.Assets.Resolve(ctx, raw, s.token)
	if err != nil {
		return Handle{}, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.deps.Assets.Release(h.ID)
		return Handle{}, domain.ErrSessionClosed
	}
	s.handles[h.ID] = struct{}{}
	s.mu.Unlock()
	return h, nil
}

// ReleaseAsset gives back a handle obtained from ResolveAsset.
func (s *LevelSession) ReleaseAsset(handleID string) {
	s.mu.Lock()
	_, ok := s.handles[handleID]
	delete(s.handles, handleID)
	s.mu.Unlock()
	if ok {
		s.deps.Assets.Release(handleID)
	}
}

// Subscribe returns a channel of snapshots, primed with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *LevelSession) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	initial := s.snapshotLocked()
	if s.closed {
		s.mu.Unlock()
		ch <- initial
		close(ch)
		return ch, func() {}
	}
	ch <- initial
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Snapshot returns the current view without subscribing.
func (s *LevelSession) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Close tears the session down. It is safe to call more than once.
func (s *LevelSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handles := make([]string, 0, len(s.handles))
	for id := range s.handles {
		handles = append(handles, id)
	}
	s.handles = make(map[string]struct{})
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()

	for _, id := range handles {
		s.deps.Assets.Release(id)
	}
	s.log.WithField("released_handles", len(handles)).Debug("level session closed")
}

func (s *LevelSession) noticeLocked(n Notification) Notification {
	s.last = &n
	s.broadcastLocked()
	return n
}

func (s *LevelSession) broadcastLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// drop the oldest update so a slow reader never blocks the session
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *LevelSession) snapshotLocked() Snapshot {
	level := s.engine.Level()
	st := s.engine.State()
	snap := Snapshot{
		SessionID:    s.id,
		LevelID:      level.ID,
		LevelName:    level.Name,
		Phase:        st.Phase.String(),
		Index:        st.Index,
		Total:        len(level.Questions),
		Stars:        level.Stars(),
		HasDraft:     s.draft.Text != "" || s.draft.File != nil,
		PuzzleSolved: s.draft.PuzzleSolved,
		HintSent:     s.draft.HintSent,
		Notification: s.last,
	}
	if q, ok := s.engine.Current(); ok {
		snap.Question = &q
		snap.Submitting = s.deps.Coordinator != nil && s.deps.Coordinator.InFlight(q.ID)
	}
	if p := s.seq.Revealing(); p != nil {
		snap.Present = p
	}
	return snap
}
