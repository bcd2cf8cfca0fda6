package domain

import "strings"

// DefaultMaxAttempts applies when the server omits maxAttempts for a question.
const DefaultMaxAttempts = 3

// PuzzleSolvedAnswer is the text answer the server expects once a puzzle is solved.
const PuzzleSolvedAnswer = "puzzleSolved"

// QuestionStatus is the server-derived completion state of a question.
// Completed and Pending are never both true once a submission cycle ends.
type QuestionStatus struct {
	Completed bool `json:"completed"`
	Pending   bool `json:"pending"`
}

// QuestionKind is the answer modality derived from the free-form wire type.
type QuestionKind int

const (
	KindText QuestionKind = iota
	KindImageUpload
	KindPuzzle
	KindHintText
)

func (k QuestionKind) String() string {
	switch k {
	case KindImageUpload:
		return "image-upload"
	case KindPuzzle:
		return "interactive-puzzle"
	case KindHintText:
		return "hint-assisted-text"
	default:
		return "plain-text"
	}
}

// Question is a single challenge inside a level.
type Question struct {
	ID          string         `json:"id"`
	LevelID     string         `json:"levelId"`
	Prompt      string         `json:"question"`
	PromptImage string         `json:"questionImage,omitempty"`
	Type        string         `json:"type"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"maxAttempts,omitempty"`
	Status      QuestionStatus `json:"status"`
}

// Kind maps the wire type onto an answer modality. Any type mentioning
// "image" takes a binary upload.
func (q Question) Kind() QuestionKind {
	t := strings.ToLower(q.Type)
	switch {
	case strings.Contains(t, "image"):
		return KindImageUpload
	case strings.Contains(t, "puzzle"):
		return KindPuzzle
	case strings.Contains(t, "mail"), strings.Contains(t, "hint"):
		return KindHintText
	default:
		return KindText
	}
}

// AttemptLimit returns MaxAttempts or DefaultMaxAttempts when unset.
func (q Question) AttemptLimit() int {
	if q.MaxAttempts > 0 {
		return q.MaxAttempts
	}
	return DefaultMaxAttempts
}

// Locked reports whether the question is awaiting review and must not be resubmitted.
func (q Question) Locked() bool {
	return q.Status.Pending && !q.Status.Completed
}

// PresentType enumerates reward payload kinds.
type PresentType string

const (
	PresentText  PresentType = "text"
	PresentImage PresentType = "image"
	PresentAudio PresentType = "audio"
	PresentVideo PresentType = "video"
)

// Present is the reward revealed when a level completes.
type Present struct {
	ID      string      `json:"id"`
	LevelID string      `json:"levelId"`
	Type    PresentType `json:"type"`
	Title   string      `json:"title"`
	Content string      `json:"content"`
	Image   string      `json:"image,omitempty"`
	Audio   string      `json:"audio,omitempty"`
	Video   string      `json:"video,omitempty"`
}

// AssetRef returns the asset identifier carrying the payload, or "" for text presents.
func (p Present) AssetRef() string {
	switch p.Type {
	case PresentImage:
		return p.Image
	case PresentAudio:
		return p.Audio
	case PresentVideo:
		return p.Video
	default:
		return ""
	}
}

// Level is an ordered set of questions guarding at most one present.
type Level struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Title       string     `json:"title,omitempty"`
	Quest       string     `json:"quest,omitempty"`
	IsUnlocked  bool       `json:"isUnlocked"`
	IsCompleted bool       `json:"isCompleted"`
	Questions   []Question `json:"questions"`
	Present     *Present   `json:"present,omitempty"`
}

// Clone returns a deep copy so callers can mutate question statuses safely.
func (l Level) Clone() Level {
	out := l
	if l.Questions != nil {
		out.Questions = make([]Question, len(l.Questions))
		copy(out.Questions, l.Questions)
	}
	if l.Present != nil {
		p := *l.Present
		out.Present = &p
	}
	return out
}

// AllCompleted reports whether every question is completed. A level with no
// questions is trivially complete.
func (l Level) AllCompleted() bool {
	for _, q := range l.Questions {
		if !q.Status.Completed {
			return false
		}
	}
	return true
}

// Stars renders one ★ per completed question and ☆ per open one.
func (l Level) Stars() string {
	var b strings.Builder
	for _, q := range l.Questions {
		if q.Status.Completed {
			b.WriteString("★")
		} else {
			b.WriteString("☆")
		}
	}
	return b.String()
}

// Verdict is the interpreted grading outcome of a submission.
type Verdict int

const (
	VerdictIncorrect Verdict = iota
	VerdictCorrect
	VerdictPending
)

func (v Verdict) String() string {
	switch v {
	case VerdictCorrect:
		return "correct"
	case VerdictPending:
		return "pending"
	default:
		return "incorrect"
	}
}

// AnswerResult is the server response to a submission. A nil Correct means
// the answer awaits human review.
type AnswerResult struct {
	Correct *bool    `json:"correct"`
	Pending bool     `json:"pending,omitempty"`
	Message string   `json:"message,omitempty"`
	Present *Present `json:"present,omitempty"`
}

func (r AnswerResult) Verdict() Verdict {
	switch {
	case r.Correct == nil:
		return VerdictPending
	case *r.Correct:
		return VerdictCorrect
	default:
		return VerdictIncorrect
	}
}

// Upload is a binary answer payload.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Answer carries either a text value or a binary upload.
type Answer struct {
	Text string
	File *Upload
}

// TextAnswer builds a text answer.
func TextAnswer(s string) Answer { return Answer{Text: s} }

// FileAnswer builds a binary answer.
func FileAnswer(name, contentType string, data []byte) Answer {
	return Answer{File: &Upload{Name: name, ContentType: contentType, Data: data}}
}

// UserProgress is the server's aggregate read model for a mystery.
type UserProgress struct {
	ID                int       `json:"id"`
	UserID            string    `json:"user_id"`
	CompletedLevels   []string  `json:"completedLevels"`
	UnlockedLevels    []string  `json:"unlocked_levels"`
	CollectedPresents []Present `json:"collectedPresents"`
	TotalAttempts     int       `json:"totalAttempts"`
}

// Mystery is a time-boxed collection of levels joined with an id and pin.
type Mystery struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
	StartsAt    string `json:"starts_at"`
	EndsAt      string `json:"ends_at"`
	Image       string `json:"image"`
	IsActive    bool   `json:"is_active"`
	Joined      bool   `json:"join_status"`
}

// JoinRequest is the body for joining a mystery.
type JoinRequest struct {
	MysteryID int    `json:"mystery_id" validate:"required,gt=0"`
	Pin       string `json:"pin" validate:"required"`
}

// Blob is a fetched binary asset.
type Blob struct {
	ContentType string
	Data        []byte
}
