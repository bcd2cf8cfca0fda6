package app

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/logger"
	"mystery-hunt-client/internal/metrics"
)

// AnswerSubmitter posts one answer to the backend.
type AnswerSubmitter interface {
	SubmitAnswer(ctx context.Context, token, questionID string, answer domain.Answer) (domain.AnswerResult, error)
}

// Coordinator allows at most one outstanding submission per question and
// interprets the graded, pending and duplicate results.
type Coordinator struct {
	api     AnswerSubmitter
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewCoordinator(api AnswerSubmitter, log logrus.FieldLogger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		api:      api,
		log:      logger.OrDiscard(log),
		metrics:  m,
		inflight: make(map[string]struct{}),
	}
}

// ValidateAnswer checks the answer against the question's modality and
// returns the normalized value. It never touches the network.
func ValidateAnswer(q domain.Question, a domain.Answer) (domain.Answer, error) {
	if q.Locked() {
		return domain.Answer{}, &domain.ValidationError{Field: "question", Message: "answer is under review"}
	}
	if q.Kind() == domain.KindImageUpload {
		if a.File == nil || len(a.File.Data) == 0 {
			return domain.Answer{}, &domain.ValidationError{Field: "answer", Message: "please upload an image to continue"}
		}
		return domain.Answer{File: a.File}, nil
	}
	text := strings.TrimSpace(a.Text)
	if text == "" {
		return domain.Answer{}, &domain.ValidationError{Field: "answer", Message: "please provide an answer to continue"}
	}
	return domain.Answer{Text: text}, nil
}

// InFlight reports whether questionID has an outstanding submission.
func (c *Coordinator) InFlight(questionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[questionID]
	return ok
}

func (c *Coordinator) acquire(questionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[questionID]; ok {
		return false
	}
	c.inflight[questionID] = struct{}{}
	return true
}

func (c *Coordinator) release(questionID string) {
	c.mu.Lock()
	delete(c.inflight, questionID)
	c.mu.Unlock()
}

// Submit validates and sends a single answer. It makes exactly one network
// call and never retries. A duplicate-submission rejection is reported as a
// correct outcome with Duplicate set.
func (c *Coordinator) Submit(ctx context.Context, token string, q domain.Question, answer domain.Answer) (Outcome, error) {
	answer, err := ValidateAnswer(q, answer)
	if err != nil {
		c.metrics.ObserveSubmission("invalid")
		return Outcome{}, err
	}
	if !c.acquire(q.ID) {
		return Outcome{}, domain.ErrSubmissionInFlight
	}
	defer c.release(q.ID)

	log := c.log.WithFields(logrus.Fields{"question_id": q.ID, "kind": q.Kind().String()})

	result, err := c.api.SubmitAnswer(ctx, token, q.ID, answer)
	if err != nil {
		if domain.IsAlreadyAnswered(err) {
			log.Info("question already answered, advancing")
			c.metrics.ObserveSubmission("duplicate")
			return Outcome{QuestionID: q.ID, Verdict: domain.VerdictCorrect, Duplicate: true}, nil
		}
		log.WithError(err).Warn("answer submission failed")
		c.metrics.ObserveSubmission("error")
		return Outcome{}, err
	}

	out := Outcome{
		QuestionID: q.ID,
		Verdict:    result.Verdict(),
		Message:    result.Message,
		Present:    result.Present,
	}
	log.WithField("verdict", out.Verdict.String()).Debug("answer graded")
	c.metrics.ObserveSubmission(out.Verdict.String())
	return out, nil
}
