package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"exam-practice-service/internal/backend"
	"exam-practice-service/internal/domain"
)

// AnswerKeySource exposes the correct-answer indices for locally scored
// papers.
type AnswerKeySource interface {
	AnswerKey(paperID string) ([]int, error)
}

// SummaryClient is the slice of the backend client reconciliation consumes.
type SummaryClient interface {
	ResultSummaries(ctx context.Context) (json.RawMessage, error)
	CheckAnswers(ctx context.Context, answersID string) (json.RawMessage, error)
}

// AttemptStore is the reconciler's view of the attempt history log.
type AttemptStore interface {
	Append(ctx context.Context, rec domain.AttemptRecord) error
	Get(ctx context.Context, id string) (domain.AttemptRecord, error)
}

// Reconciler produces one normalized result view whether scoring happened
// locally or on the backend.
type Reconciler struct {
	keys    AnswerKeySource
	remote  SummaryClient // nil when no backend is configured
	history AttemptStore
	now     func() time.Time
}

func NewReconciler(keys AnswerKeySource, remote SummaryClient, history AttemptStore) *Reconciler {
	return &Reconciler{keys: keys, remote: remote, history: history, now: time.Now}
}

// WithClock is test-only for deterministic attempt IDs and dates.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// ScoreLocal grades a completed local session against the paper's answer
// key, persists the attempt record, and returns both.
func (r *Reconciler) ScoreLocal(ctx context.Context, paper domain.Paper, answers []int, elapsed time.Duration) (domain.AttemptRecord, domain.ResultSummary, error) {
	key, err := r.keys.AnswerKey(paper.ID)
	if err != nil {
		return domain.AttemptRecord{}, domain.ResultSummary{}, err
	}

	correct := 0
	answered := 0
	for i, selected := range answers {
		if selected == Unanswered {
			continue
		}
		answered++
		if i < len(key) && selected == key[i] {
			correct++
		}
	}

	total := paper.TotalQuestions
	// Unrounded; display layers format to one decimal.
	percentage := float64(correct) / float64(total) * 100

	now := r.now()
	rec := domain.AttemptRecord{
		ID:             strconv.FormatInt(now.UnixMilli(), 10),
		PaperID:        paper.ID,
		PaperYear:      paper.Year,
		Date:           now,
		Score:          correct,
		TotalQuestions: total,
		Percentage:     percentage,
		TimeTakenSecs:  int(elapsed / time.Second),
		Answers:        append([]int(nil), answers...),
	}
	if err := r.history.Append(ctx, rec); err != nil {
		return domain.AttemptRecord{}, domain.ResultSummary{}, fmt.Errorf("persist attempt: %w", err)
	}

	summary := domain.ResultSummary{
		PaperID:        paper.ID,
		TotalQuestions: total,
		CorrectAnswers: correct,
		TotalAnswered:  answered,
		Unattempted:    total - answered,
		Percentage:     percentage,
		Grade:          domain.Grade(percentage),
	}
	return rec, summary, nil
}

// LocalResult rebuilds the unified view from a persisted attempt record.
func (r *Reconciler) LocalResult(ctx context.Context, attemptID string) (domain.ResultSummary, error) {
	rec, err := r.history.Get(ctx, attemptID)
	if err != nil {
		return domain.ResultSummary{}, err
	}
	answered := 0
	for _, a := range rec.Answers {
		if a != Unanswered {
			answered++
		}
	}
	return domain.ResultSummary{
		PaperID:        rec.PaperID,
		TotalQuestions: rec.TotalQuestions,
		CorrectAnswers: rec.Score,
		TotalAnswered:  answered,
		Unattempted:    rec.TotalQuestions - answered,
		Percentage:     rec.Percentage,
		Grade:          domain.Grade(rec.Percentage),
	}, nil
}

type summaryWire struct {
	AnswersID      string   `json:"paper_answers_id"`
	PaperID        string   `json:"paper_id"`
	TotalQuestions int      `json:"total_questions"`
	CorrectAnswers int      `json:"correct_answers"`
	TotalAnswered  int      `json:"total_answered"`
	Percentage     *float64 `json:"percentage"`
}

// RemoteSummary fetches the backend's summary collection and selects the
// entry for one attempt. A missing entry is ErrResultNotFound; the caller
// shows a loading or error state rather than fabricating a zero score.
func (r *Reconciler) RemoteSummary(ctx context.Context, answersID string) (domain.ResultSummary, error) {
	if r.remote == nil {
		return domain.ResultSummary{}, domain.ErrResultNotFound
	}
	raw, err := r.remote.ResultSummaries(ctx)
	if err != nil {
		return domain.ResultSummary{}, err
	}
	items, err := backend.NormalizeList(raw)
	if err != nil {
		return domain.ResultSummary{}, err
	}
	for _, item := range items {
		var w summaryWire
		if err := json.Unmarshal(item, &w); err != nil {
			return domain.ResultSummary{}, domain.ErrUnexpectedResponseFormat
		}
		if w.AnswersID != answersID {
			continue
		}
		percentage := 0.0
		if w.Percentage != nil {
			percentage = *w.Percentage
		} else if w.TotalQuestions > 0 {
			percentage = float64(w.CorrectAnswers) / float64(w.TotalQuestions) * 100
		}
		return domain.ResultSummary{
			AnswersID:      w.AnswersID,
			PaperID:        w.PaperID,
			TotalQuestions: w.TotalQuestions,
			CorrectAnswers: w.CorrectAnswers,
			TotalAnswered:  w.TotalAnswered,
			Unattempted:    w.TotalQuestions - w.TotalAnswered,
			Percentage:     percentage,
			Grade:          domain.Grade(percentage),
		}, nil
	}
	return domain.ResultSummary{}, domain.ErrResultNotFound
}

// ReviewAnswers fetches per-question correctness for a completed remote
// attempt.
func (r *Reconciler) ReviewAnswers(ctx context.Context, answersID string) ([]domain.AnswerCheck, error) {
	if r.remote == nil {
		return nil, domain.ErrResultNotFound
	}
	raw, err := r.remote.CheckAnswers(ctx, answersID)
	if err != nil {
		return nil, err
	}
	return backend.DecodeAnswerChecks(raw)
}
