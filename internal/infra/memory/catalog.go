package memory

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"mystery-hunt-client/internal/domain"
)

// Catalog is an in-process stand-in for the backend (useful for tests/demos).
// It grades answers the way the server does: review types go pending, image
// uploads are accepted, puzzles expect the solved marker and everything else
// is matched case-insensitively.
type Catalog struct {
	mu        sync.Mutex
	mysteries map[string][]string
	levels    map[string]*domain.Level
	answers   map[string]string
	answered  map[string]bool
	assets    map[string]domain.Blob
	hints     map[string]string
	collected []domain.Present
	joined    map[int]string
	failures  map[string]error
	calls     map[string]int
}

func NewCatalog() *Catalog {
	return &Catalog{
		mysteries: make(map[string][]string),
		levels:    make(map[string]*domain.Level),
		answers:   make(map[string]string),
		answered:  make(map[string]bool),
		assets:    make(map[string]domain.Blob),
		hints:     make(map[string]string),
		joined:    make(map[int]string),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

// AddMystery registers ordered levels under a mystery id.
func (c *Catalog) AddMystery(mysteryID string, levels ...domain.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range levels {
		l := l.Clone()
		c.levels[l.ID] = &l
		c.mysteries[mysteryID] = append(c.mysteries[mysteryID], l.ID)
	}
}

// SetAnswer sets the expected answer for a text question.
func (c *Catalog) SetAnswer(questionID, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers[questionID] = normalize(answer)
}

func (c *Catalog) SetHint(questionID, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hints[questionID] = detail
}

func (c *Catalog) AddAsset(id string, blob domain.Blob) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets[id] = blob
}

// SetPin enables joining mysteryID with pin.
func (c *Catalog) SetPin(mysteryID int, pin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined[mysteryID] = pin
}

// FailNext makes the next call of op return err.
func (c *Catalog) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = err
}

// Calls returns how many times op was invoked.
func (c *Catalog) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// Resolve settles a pending review the way an admin would.
func (c *Catalog) Resolve(questionID string, approved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	level, q := c.findLocked(questionID)
	if q == nil {
		return
	}
	q.Status = domain.QuestionStatus{Completed: approved}
	if approved {
		c.answered[questionID] = true
		c.completeLocked(level)
	}
}

func (c *Catalog) enter(op, token string) error {
	c.calls[op]++
	if token == "" {
		return domain.ErrMissingToken
	}
	if err, ok := c.failures[op]; ok {
		delete(c.failures, op)
		return err
	}
	return nil
}

func (c *Catalog) GetLevels(_ context.Context, token, mysteryID string) ([]domain.Level, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("get_levels", token); err != nil {
		return nil, err
	}
	ids, ok := c.mysteries[mysteryID]
	if !ok {
		return nil, &domain.APIError{Op: "get_levels", Status: http.StatusNotFound, Detail: "Not found."}
	}
	out := make([]domain.Level, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.levels[id].Clone())
	}
	return out, nil
}

func (c *Catalog) GetLevel(_ context.Context, token, levelID string) (domain.Level, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("get_level", token); err != nil {
		return domain.Level{}, err
	}
	level, ok := c.levels[levelID]
	if !ok {
		return domain.Level{}, &domain.APIError{Op: "get_level", Status: http.StatusNotFound, Detail: domain.ErrLevelNotFound.Error()}
	}
	return level.Clone(), nil
}

func (c *Catalog) GetUserProgress(_ context.Context, token, mysteryID string) (domain.UserProgress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("get_progress", token); err != nil {
		return domain.UserProgress{}, err
	}
	progress := domain.UserProgress{CollectedPresents: append([]domain.Present(nil), c.collected...)}
	for _, id := range c.mysteries[mysteryID] {
		l := c.levels[id]
		if l.IsCompleted {
			progress.CompletedLevels = append(progress.CompletedLevels, l.ID)
		}
		if l.IsUnlocked {
			progress.UnlockedLevels = append(progress.UnlockedLevels, l.ID)
		}
		for _, q := range l.Questions {
			progress.TotalAttempts += q.Attempts
		}
	}
	return progress, nil
}

func (c *Catalog) CollectedPresents(_ context.Context, token string) ([]domain.Present, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("collected_presents", token); err != nil {
		return nil, err
	}
	return append([]domain.Present(nil), c.collected...), nil
}

func (c *Catalog) ListMysteries(_ context.Context, token string, joined bool) ([]domain.Mystery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("list_mysteries", token); err != nil {
		return nil, err
	}
	var out []domain.Mystery
	for id := range c.mysteries {
		n, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		m := domain.Mystery{ID: n, Name: "Mystery " + id, IsActive: true, Joined: c.joined[n] == ""}
		if m.Joined == joined {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Catalog) JoinMystery(_ context.Context, token string, req domain.JoinRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("join_mystery", token); err != nil {
		return "", err
	}
	pin, ok := c.joined[req.MysteryID]
	if !ok || pin != req.Pin {
		return "", &domain.APIError{Op: "join_mystery", Status: http.StatusBadRequest, Detail: "Invalid mystery or pin."}
	}
	c.joined[req.MysteryID] = ""
	return "Successfully joined the mystery.", nil
}

func (c *Catalog) RequestHint(_ context.Context, token, questionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("request_hint", token); err != nil {
		return "", err
	}
	detail, ok := c.hints[questionID]
	if !ok {
		return "", &domain.APIError{Op: "request_hint", Status: http.StatusNotFound, Detail: "No hint for this question."}
	}
	return detail, nil
}

func (c *Catalog) FetchAsset(_ context.Context, token, assetID string) (domain.Blob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("fetch_asset", token); err != nil {
		return domain.Blob{}, err
	}
	blob, ok := c.assets[assetID]
	if !ok {
		return domain.Blob{}, &domain.APIError{Op: "fetch_asset", Status: http.StatusInternalServerError, Detail: "Internal Server Error"}
	}
	return blob, nil
}

func (c *Catalog) SubmitAnswer(_ context.Context, token, questionID string, answer domain.Answer) (domain.AnswerResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("submit_answer", token); err != nil {
		return domain.AnswerResult{}, err
	}
	level, q := c.findLocked(questionID)
	if q == nil {
		return domain.AnswerResult{}, &domain.APIError{Op: "submit_answer", Status: http.StatusNotFound, Detail: domain.ErrQuestionNotFound.Error()}
	}
	if c.answered[questionID] {
		return domain.AnswerResult{}, &domain.APIError{Op: "submit_answer", Status: http.StatusBadRequest, Detail: "You have already answered this question."}
	}
	if q.Attempts >= q.AttemptLimit() {
		return domain.AnswerResult{Correct: boolPtr(false), Message: "Maximum attempts reached."}, nil
	}

	t := strings.ToLower(q.Type)
	text := normalize(answer.Text)
	q.Attempts++
	switch {
	case strings.Contains(t, "review"):
		q.Status = domain.QuestionStatus{Pending: true}
		return domain.AnswerResult{Pending: true, Message: "Answer submitted for review."}, nil
	case strings.Contains(t, "image"):
		if answer.File == nil {
			return domain.AnswerResult{}, &domain.APIError{Op: "submit_answer", Status: http.StatusBadRequest, Detail: "Answer image is required"}
		}
	case strings.Contains(t, "puzzle"):
		if text != normalize(domain.PuzzleSolvedAnswer) {
			return domain.AnswerResult{Correct: boolPtr(false)}, nil
		}
	default:
		if text == "" {
			return domain.AnswerResult{}, &domain.APIError{Op: "submit_answer", Status: http.StatusBadRequest, Detail: "Answer is required"}
		}
		if text != c.answers[questionID] {
			return domain.AnswerResult{Correct: boolPtr(false), Message: "Answer pending or incorrect"}, nil
		}
	}

	c.answered[questionID] = true
	q.Status = domain.QuestionStatus{Completed: true}
	return domain.AnswerResult{
		Correct: boolPtr(true),
		Present: c.completeLocked(level),
		Message: "Answer processed successfully",
	}, nil
}

func (c *Catalog) findLocked(questionID string) (*domain.Level, *domain.Question) {
	for _, level := range c.levels {
		for i := range level.Questions {
			if level.Questions[i].ID == questionID {
				return level, &level.Questions[i]
			}
		}
	}
	return nil, nil
}

// completeLocked marks level done once every question is completed, unlocks
// the next level of its mystery and returns the collected present.
func (c *Catalog) completeLocked(level *domain.Level) *domain.Present {
	if !level.AllCompleted() || level.IsCompleted {
		return nil
	}
	level.IsCompleted = true
	for _, ids := range c.mysteries {
		for i, id := range ids {
			if id == level.ID && i+1 < len(ids) {
				c.levels[ids[i+1]].IsUnlocked = true
			}
		}
	}
	if level.Present == nil {
		return nil
	}
	p := *level.Present
	c.collected = append(c.collected, p)
	return &p
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func boolPtr(b bool) *bool { return &b }
