package domain

import (
	"fmt"
	"strings"
	"time"
)

// Subject identifies one of the supported paper collections.
type Subject string

const (
	SubjectBiology   Subject = "Biology"
	SubjectChemistry Subject = "Chemistry"
	SubjectPhysics   Subject = "Physics"
)

// Subjects lists every supported subject in display order.
func Subjects() []Subject {
	return []Subject{SubjectBiology, SubjectChemistry, SubjectPhysics}
}

// ParseSubject maps a request parameter onto a known subject,
// case-insensitively.
func ParseSubject(raw string) (Subject, error) {
	for _, s := range Subjects() {
		if strings.EqualFold(string(s), raw) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSubject, raw)
}

// Paper is a named, dated collection of questions with a fixed duration.
// Once listed it is immutable; only the cache entry around it ages.
type Paper struct {
	ID              string  `json:"id"`
	Year            int     `json:"year"`
	Subject         Subject `json:"subject"`
	Title           string  `json:"title"`
	TotalQuestions  int     `json:"total_questions"`
	DurationMinutes int     `json:"duration"`
	// Local marks papers served from the built-in demo set; their
	// sessions are scored locally instead of by the remote backend.
	Local bool `json:"local,omitempty"`
}

// AttemptRecord is the persisted outcome of a locally scored session.
type AttemptRecord struct {
	ID             string    `json:"id" db:"id"`
	PaperID        string    `json:"paper_id" db:"paper_id"`
	PaperYear      int       `json:"paper_year" db:"paper_year"`
	Date           time.Time `json:"date" db:"date"`
	Score          int       `json:"score" db:"score"`
	TotalQuestions int       `json:"total_questions" db:"total_questions"`
	Percentage     float64   `json:"percentage" db:"percentage"`
	TimeTakenSecs  int       `json:"time_taken" db:"time_taken"`
	Answers        []int     `json:"answers" db:"-"`
}

// ResultSummary is the unified result view, regardless of whether the
// score was computed locally or fetched from the backend.
type ResultSummary struct {
	AnswersID      string  `json:"answers_id,omitempty"`
	PaperID        string  `json:"paper_id,omitempty"`
	TotalQuestions int     `json:"total_questions"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalAnswered  int     `json:"total_answered"`
	Unattempted    int     `json:"unattempted"`
	Percentage     float64 `json:"percentage"`
	Grade          string  `json:"grade"`
}

// AnswerCheck is the per-question correctness detail used by review views.
type AnswerCheck struct {
	QuestionNumber int  `json:"question_number"`
	SelectedOption int  `json:"selected_option"`
	CorrectOption  int  `json:"correct_option"`
	Correct        bool `json:"correct"`
}

// SessionStart is what the backend returns when a paper attempt begins.
type SessionStart struct {
	AnswersID string    `json:"paper_answers_id"`
	StartedAt time.Time `json:"started_at"`
}
