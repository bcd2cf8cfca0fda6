package app

import (
	"errors"
	"strings"

	"mystery-hunt-client/internal/domain"
)

// NoticeKind classifies a user-displayable notification.
type NoticeKind string

const (
	NoticeCorrect    NoticeKind = "correct"
	NoticeIncorrect  NoticeKind = "incorrect"
	NoticePending    NoticeKind = "pending_review"
	NoticeDuplicate  NoticeKind = "already_answered"
	NoticeValidation NoticeKind = "validation"
	NoticeBusy       NoticeKind = "in_flight"
	NoticeNetwork    NoticeKind = "network"
	NoticeAuth       NoticeKind = "auth"
	NoticeStale      NoticeKind = "stale"
	NoticeHint       NoticeKind = "hint"
)

const opSubmitAnswer = "Submit answer"

// Notification is what every operation boundary converts its result or
// failure into.
type Notification struct {
	Kind      NoticeKind `json:"kind"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Failure   bool       `json:"failure"`
	Retryable bool       `json:"retryable"`
}

// NotifyOutcome renders a submission outcome.
func NotifyOutcome(o Outcome) Notification {
	switch {
	case o.Duplicate:
		return Notification{Kind: NoticeDuplicate, Title: "Already Answered", Message: "Moving to the next question..."}
	case o.Verdict == domain.VerdictCorrect:
		return Notification{Kind: NoticeCorrect, Title: "Correct!", Message: orDefault(o.Message, "Well done!")}
	case o.Verdict == domain.VerdictPending:
		return Notification{Kind: NoticePending, Title: "Submitted for Review", Message: orDefault(o.Message, "Your answer is under review by the admin.")}
	default:
		return Notification{Kind: NoticeIncorrect, Title: "Incorrect Answer", Message: orDefault(o.Message, "Try again!"), Failure: true}
	}
}

// NotifyError converts a failure from op into a typed notification.
func NotifyError(op string, err error) Notification {
	switch {
	case domain.IsAuth(err):
		return Notification{Kind: NoticeAuth, Title: "Session expired", Message: "Please log in again.", Failure: true}
	case domain.IsValidation(err):
		return Notification{Kind: NoticeValidation, Title: validationTitle(op), Message: err.Error(), Failure: true}
	case errors.Is(err, domain.ErrSubmissionInFlight):
		return Notification{Kind: NoticeBusy, Title: "Checking Answer", Message: "Your previous answer is still being checked.", Failure: true}
	}
	msg := err.Error()
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		msg = apiErr.Detail
	}
	return Notification{Kind: NoticeNetwork, Title: op + " failed", Message: msg, Failure: true, Retryable: true}
}

// validationTitle names a local rejection after the operation it blocked.
func validationTitle(op string) string {
	if op == opSubmitAnswer {
		return "Answer Required"
	}
	return "Cannot " + strings.ToLower(op)
}

// NotifyStale reports that a last-known snapshot is being shown.
func NotifyStale(err error) Notification {
	return Notification{
		Kind:      NoticeStale,
		Title:     "Showing saved level",
		Message:   "Could not refresh the level: " + err.Error(),
		Retryable: true,
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
