package app

import (
	"fmt"
	"sync"

	"mystery-hunt-client/internal/domain"
)

// Phase tags the single next required action for a level.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseAwaitingAnswer
	PhasePendingReview
	PhasePresentReveal
	PhaseAdvance
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseAwaitingAnswer:
		return "awaiting_answer"
	case PhasePendingReview:
		return "pending_review"
	case PhasePresentReveal:
		return "present_reveal"
	case PhaseAdvance:
		return "advance"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the tagged progression state. Index is meaningful for
// AwaitingAnswer and PendingReview, Present for PresentReveal, Err for Error.
type State struct {
	Phase   Phase
	Index   int
	Present *domain.Present
	Err     error
}

func Loading() State             { return State{Phase: PhaseLoading, Index: -1} }
func AwaitingAnswer(i int) State { return State{Phase: PhaseAwaitingAnswer, Index: i} }
func PendingReview(i int) State  { return State{Phase: PhasePendingReview, Index: i} }
func Advance() State             { return State{Phase: PhaseAdvance, Index: -1} }
func Failed(err error) State     { return State{Phase: PhaseError, Index: -1, Err: err} }
func PresentReveal(p *domain.Present) State {
	return State{Phase: PhasePresentReveal, Index: -1, Present: p}
}

// Terminal reports whether the level needs no further answers.
func (s State) Terminal() bool {
	return s.Phase == PhasePresentReveal || s.Phase == PhaseAdvance
}

func (s State) String() string {
	switch s.Phase {
	case PhaseAwaitingAnswer, PhasePendingReview:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Index)
	case PhasePresentReveal:
		if s.Present != nil {
			return fmt.Sprintf("%s(%s)", s.Phase, s.Present.ID)
		}
	case PhaseError:
		return fmt.Sprintf("%s(%v)", s.Phase, s.Err)
	}
	return s.Phase.String()
}

// DeriveState computes the next required action for a level snapshot.
func DeriveState(level domain.Level, parentWasAlreadyComplete bool) State {
	if parentWasAlreadyComplete || len(level.Questions) == 0 || level.AllCompleted() {
		return finish(level.Present)
	}
	return openState(level, firstOpen(level))
}

func finish(present *domain.Present) State {
	if present != nil {
		return PresentReveal(present)
	}
	return Advance()
}

func firstOpen(level domain.Level) int {
	for i, q := range level.Questions {
		if !q.Status.Completed {
			return i
		}
	}
	return -1
}

// nextOpen scans forward from after, then wraps to earlier questions left open.
func nextOpen(level domain.Level, after int) int {
	for i := after + 1; i < len(level.Questions); i++ {
		if !level.Questions[i].Status.Completed {
			return i
		}
	}
	return firstOpen(level)
}

func openState(level domain.Level, i int) State {
	if level.Questions[i].Locked() {
		return PendingReview(i)
	}
	return AwaitingAnswer(i)
}

// Reconcile merges a fresh server snapshot over the client's assumed level.
// Server status wins for every question the server reports; questions only
// the client knows about are dropped. Descriptive fields the server omitted
// are kept from the client copy.
func Reconcile(server, client domain.Level) domain.Level {
	out := server.Clone()
	if out.Name == "" {
		out.Name = client.Name
	}
	if out.Title == "" {
		out.Title = client.Title
	}
	if out.Quest == "" {
		out.Quest = client.Quest
	}
	if out.Present == nil && client.Present != nil {
		p := *client.Present
		out.Present = &p
	}
	// unlocks are monotonic
	out.IsUnlocked = server.IsUnlocked || client.IsUnlocked

	known := make(map[string]domain.Question, len(client.Questions))
	for _, q := range client.Questions {
		known[q.ID] = q
	}
	for i := range out.Questions {
		prev, ok := known[out.Questions[i].ID]
		if !ok {
			continue
		}
		if out.Questions[i].PromptImage == "" {
			out.Questions[i].PromptImage = prev.PromptImage
		}
		if out.Questions[i].MaxAttempts == 0 {
			out.Questions[i].MaxAttempts = prev.MaxAttempts
		}
		if out.Questions[i].LevelID == "" {
			out.Questions[i].LevelID = prev.LevelID
		}
	}
	out.IsCompleted = server.IsCompleted || (len(out.Questions) > 0 && out.AllCompleted())
	return out
}

// Outcome is an interpreted submission result handed to the engine.
type Outcome struct {
	QuestionID string
	Verdict    domain.Verdict
	Duplicate  bool
	Message    string
	Present    *domain.Present
}

// Engine owns a level snapshot and its progression state.
type Engine struct {
	mu             sync.RWMutex
	level          domain.Level
	parentComplete bool
	state          State
}

// NewEngine derives the initial state for level.
func NewEngine(level domain.Level, parentWasAlreadyComplete bool) *Engine {
	level = level.Clone()
	return &Engine{
		level:          level,
		parentComplete: parentWasAlreadyComplete,
		state:          DeriveState(level, parentWasAlreadyComplete),
	}
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) Level() domain.Level {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.level.Clone()
}

// Current returns the active question while one is awaiting an answer or review.
func (e *Engine) Current() (domain.Question, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch e.state.Phase {
	case PhaseAwaitingAnswer, PhasePendingReview:
		return e.level.Questions[e.state.Index], true
	}
	return domain.Question{}, false
}

// Apply folds a submission outcome into the level and returns the new state.
// Outcomes for questions outside the level leave the state unchanged.
func (e *Engine) Apply(o Outcome) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, q := range e.level.Questions {
		if q.ID == o.QuestionID {
			idx = i
			break
		}
	}
	if idx < 0 || e.state.Terminal() {
		return e.state
	}
	q := &e.level.Questions[idx]

	switch o.Verdict {
	case domain.VerdictCorrect:
		if !o.Duplicate {
			q.Attempts++
		}
		q.Status = domain.QuestionStatus{Completed: true}
		next := nextOpen(e.level, idx)
		if next < 0 {
			e.level.IsCompleted = true
			e.state = finish(ChoosePresent(o.Present, e.level.Present))
		} else {
			e.state = openState(e.level, next)
		}
	case domain.VerdictPending:
		q.Attempts++
		q.Status = domain.QuestionStatus{Pending: true}
		e.state = PendingReview(idx)
	default:
		q.Attempts++
		e.state = AwaitingAnswer(idx)
	}
	return e.state
}

// Refresh reconciles a fresh server snapshot into the engine. A level that
// already reached a terminal state stays there until the caller moves on.
func (e *Engine) Refresh(server domain.Level) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.level = Reconcile(server, e.level)
	if !e.state.Terminal() {
		e.state = DeriveState(e.level, e.parentComplete)
	}
	return e.state
}
