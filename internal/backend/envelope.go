package backend

import (
	"encoding/json"
	"strconv"
	"strings"

	"exam-practice-service/internal/domain"
)

// The backend wraps payloads in several envelope shapes depending on the
// route and deployment: a bare array, {success,data}, {data}, or {papers}.
// Normalize* unwraps all of them; anything else is
// domain.ErrUnexpectedResponseFormat, never a silent empty result.

type listEnvelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Papers  json.RawMessage `json:"papers"`
}

// NormalizeList returns the raw element array carried by any accepted
// list-envelope shape.
func NormalizeList(raw json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}

	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, domain.ErrUnexpectedResponseFormat
	}
	for _, candidate := range []json.RawMessage{env.Data, env.Papers} {
		if len(candidate) == 0 {
			continue
		}
		if err := json.Unmarshal(candidate, &items); err == nil {
			return items, nil
		}
	}
	return nil, domain.ErrUnexpectedResponseFormat
}

// NormalizeObject returns the payload object from any accepted single-object
// envelope: {success,data}, {data}, {papers}, or the bare object itself.
func NormalizeObject(raw json.RawMessage) (json.RawMessage, error) {
	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err == nil {
		for _, candidate := range []json.RawMessage{env.Data, env.Papers} {
			if len(candidate) == 0 || isJSONNull(candidate) {
				continue
			}
			// A wrapped array means "first element is the object".
			var items []json.RawMessage
			if err := json.Unmarshal(candidate, &items); err == nil {
				if len(items) == 0 {
					return nil, domain.ErrUnexpectedResponseFormat
				}
				return items[0], nil
			}
			return candidate, nil
		}
		// Bare object; callers validate the payload fields themselves.
		return raw, nil
	}

	// Bare single-element (or longer) array.
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		return items[0], nil
	}
	return nil, domain.ErrUnexpectedResponseFormat
}

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// paperWire tolerates the per-subject schema drift in paper objects:
// id vs paper_id vs _id, questions vs total_questions, flat fields vs the
// nested exam_info block, and years sent as strings.
type paperWire struct {
	ID      string       `json:"id"`
	PaperID string       `json:"paper_id"`
	MongoID string       `json:"_id"`
	Year    flexibleYear `json:"year"`
	Title   string       `json:"title"`

	Questions      int `json:"questions"`
	TotalQuestions int `json:"total_questions"`

	Duration int `json:"duration"`

	ExamInfo *struct {
		Year     flexibleYear `json:"year"`
		ExamName struct {
			English string `json:"english"`
		} `json:"exam_name"`
	} `json:"exam_info"`
}

type flexibleYear int

func (y *flexibleYear) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*y = flexibleYear(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		// Some deployments embed the year in a longer label; a zero year is
		// preferable to rejecting the paper.
		n = 0
	}
	*y = flexibleYear(n)
	return nil
}

func (w paperWire) hasIdentity() bool {
	return w.ID != "" || w.PaperID != "" || w.MongoID != ""
}

func (w paperWire) toPaper(subject domain.Subject) domain.Paper {
	p := domain.Paper{
		Subject:         subject,
		Title:           w.Title,
		Year:            int(w.Year),
		TotalQuestions:  w.TotalQuestions,
		DurationMinutes: w.Duration,
	}
	switch {
	case w.PaperID != "":
		p.ID = w.PaperID
	case w.ID != "":
		p.ID = w.ID
	default:
		p.ID = w.MongoID
	}
	if p.TotalQuestions == 0 {
		p.TotalQuestions = w.Questions
	}
	if w.ExamInfo != nil {
		if p.Year == 0 {
			p.Year = int(w.ExamInfo.Year)
		}
		if p.Title == "" {
			p.Title = w.ExamInfo.ExamName.English
		}
	}
	return p
}

// DecodePaperList normalizes any accepted list envelope into papers.
func DecodePaperList(raw json.RawMessage, subject domain.Subject) ([]domain.Paper, error) {
	items, err := NormalizeList(raw)
	if err != nil {
		return nil, err
	}
	papers := make([]domain.Paper, 0, len(items))
	for _, item := range items {
		var w paperWire
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, domain.ErrUnexpectedResponseFormat
		}
		papers = append(papers, w.toPaper(subject))
	}
	return papers, nil
}

// DecodePaper normalizes a single-paper response. It rejects payloads that
// unwrap to an object without any paper identity.
func DecodePaper(raw json.RawMessage, subject domain.Subject) (domain.Paper, error) {
	obj, err := NormalizeObject(raw)
	if err != nil {
		return domain.Paper{}, err
	}
	var w paperWire
	if err := json.Unmarshal(obj, &w); err != nil {
		return domain.Paper{}, domain.ErrUnexpectedResponseFormat
	}
	if !w.hasIdentity() {
		return domain.Paper{}, domain.ErrUnexpectedResponseFormat
	}
	return w.toPaper(subject), nil
}

// DecodeQuestion normalizes a question response. Payloads whose envelope
// unwraps to something without a question_number are rejected.
func DecodeQuestion(raw json.RawMessage) (domain.Question, error) {
	obj, err := NormalizeObject(raw)
	if err != nil {
		return domain.Question{}, err
	}
	var probe struct {
		QuestionNumber *int `json:"question_number"`
	}
	if err := json.Unmarshal(obj, &probe); err != nil || probe.QuestionNumber == nil {
		return domain.Question{}, domain.ErrUnexpectedResponseFormat
	}
	var q domain.Question
	if err := json.Unmarshal(obj, &q); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

// DecodeAnswerChecks normalizes the Check/Answers payload.
func DecodeAnswerChecks(raw json.RawMessage) ([]domain.AnswerCheck, error) {
	items, err := NormalizeList(raw)
	if err != nil {
		return nil, err
	}
	checks := make([]domain.AnswerCheck, 0, len(items))
	for _, item := range items {
		var c domain.AnswerCheck
		if err := json.Unmarshal(item, &c); err != nil {
			return nil, domain.ErrUnexpectedResponseFormat
		}
		checks = append(checks, c)
	}
	return checks, nil
}
