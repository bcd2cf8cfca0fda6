package app

import (
	"context"
	"sync"

	"mystery-hunt-client/internal/domain"
)

// ChoosePresent prefers the present attached to a submission result over the
// level's declared one.
func ChoosePresent(fromResult, fromLevel *domain.Present) *domain.Present {
	if fromResult != nil {
		return fromResult
	}
	return fromLevel
}

// Draft is the per-question transient input state.
type Draft struct {
	Text         string
	File         *domain.Upload
	PuzzleSolved bool
	HintSent     bool
}

// Reset clears everything a previous question could leak into the next one.
func (d *Draft) Reset() {
	*d = Draft{}
}

// Continuation moves the caller on once a level is done.
type Continuation func(ctx context.Context) error

// Sequencer decides whether a completed level reveals a present first or
// hands control straight to the continuation.
type Sequencer struct {
	mu       sync.Mutex
	next     Continuation
	reset    func()
	revealed *domain.Present
	done     bool
}

// NewSequencer wires the continuation and the transient-state reset hook.
func NewSequencer(next Continuation, reset func()) *Sequencer {
	if next == nil {
		next = func(context.Context) error { return nil }
	}
	if reset == nil {
		reset = func() {}
	}
	return &Sequencer{next: next, reset: reset}
}

// OnLevelComplete reacts to a terminal engine state. PresentReveal holds the
// present until Acknowledge; Advance resets and continues immediately.
func (s *Sequencer) OnLevelComplete(ctx context.Context, st State) (*domain.Present, error) {
	s.mu.Lock()
	if s.done || !st.Terminal() {
		p := s.revealed
		s.mu.Unlock()
		return p, nil
	}
	if st.Phase == PhasePresentReveal && st.Present != nil {
		s.revealed = st.Present
		s.mu.Unlock()
		return st.Present, nil
	}
	s.done = true
	s.mu.Unlock()

	s.reset()
	return nil, s.next(ctx)
}

// Revealing returns the present awaiting acknowledgement, if any.
func (s *Sequencer) Revealing() *domain.Present {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealed
}

// Acknowledge closes the reveal: transient state is reset before the
// continuation runs. Acknowledging with nothing revealed is a no-op.
func (s *Sequencer) Acknowledge(ctx context.Context) error {
	s.mu.Lock()
	if s.revealed == nil || s.done {
		s.mu.Unlock()
		return nil
	}
	s.revealed = nil
	s.done = true
	s.mu.Unlock()

	s.reset()
	return s.next(ctx)
}

// Done reports whether the continuation has been invoked.
func (s *Sequencer) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
