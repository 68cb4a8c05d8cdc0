// Package memory provides the built-in demo paper set: statically generated
// papers that work without any backend and are scored locally.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"exam-practice-service/internal/domain"
)

const (
	demoPapersPerSubject  = 10
	demoQuestionsPerPaper = 50
	demoNewestYear        = 2024
	demoDurationMinutes   = 60
	// Every generated question keys on option B, matching the seed data the
	// practice views were built against.
	demoCorrectOption = 1
)

var demoPrompts = map[domain.Subject]string{
	domain.SubjectBiology:   "Which of the following best describes the process of cellular respiration in mitochondria?",
	domain.SubjectChemistry: "Which statement correctly describes the behavior of electrons in a chemical bond?",
	domain.SubjectPhysics:   "Which of the following statements best describes the relationship between energy conservation and thermodynamic principles in a closed system?",
}

var demoOptions = []string{
	"Energy can be created and destroyed within the system boundaries",
	"Total energy remains constant while entropy tends to increase",
	"The system can perform unlimited work without energy input",
	"Entropy decreases spontaneously in isolated systems",
}

// DemoPaperSet holds generated (or preloaded) local papers together with
// their answer keys. It satisfies the same provider surface as the API
// adapters, so the session engine does not care where a paper came from.
type DemoPaperSet struct {
	mu       sync.RWMutex
	papers   map[domain.Subject][]domain.Paper
	byID     map[string]domain.Paper
	keys     map[string][]int
	question func(paper domain.Paper, number int) domain.Question
}

// NewDemoPaperSet generates the standard demo catalog: ten papers per
// subject, fifty questions each.
func NewDemoPaperSet() *DemoPaperSet {
	set := &DemoPaperSet{
		papers:   make(map[domain.Subject][]domain.Paper),
		byID:     make(map[string]domain.Paper),
		keys:     make(map[string][]int),
		question: generatedQuestion,
	}
	for _, subject := range domain.Subjects() {
		for i := 0; i < demoPapersPerSubject; i++ {
			year := demoNewestYear - i
			paper := domain.Paper{
				ID:              fmt.Sprintf("%s-%d", strings.ToLower(string(subject)), year),
				Year:            year,
				Subject:         subject,
				Title:           fmt.Sprintf("%s Examination %d", subject, year),
				TotalQuestions:  demoQuestionsPerPaper,
				DurationMinutes: demoDurationMinutes,
				Local:           true,
			}
			set.add(paper, demoAnswerKey(demoQuestionsPerPaper))
		}
	}
	return set
}

// NewDemoPaperSetFrom builds a set out of preloaded rows, e.g. from the
// Postgres demo store.
func NewDemoPaperSetFrom(papers []domain.Paper, keys map[string][]int) *DemoPaperSet {
	set := &DemoPaperSet{
		papers:   make(map[domain.Subject][]domain.Paper),
		byID:     make(map[string]domain.Paper),
		keys:     make(map[string][]int),
		question: generatedQuestion,
	}
	for _, p := range papers {
		p.Local = true
		set.add(p, keys[p.ID])
	}
	return set
}

func (s *DemoPaperSet) add(paper domain.Paper, key []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.papers[paper.Subject] = append(s.papers[paper.Subject], paper)
	s.byID[paper.ID] = paper
	s.keys[paper.ID] = key
}

func demoAnswerKey(n int) []int {
	key := make([]int, n)
	for i := range key {
		key[i] = demoCorrectOption
	}
	return key
}

func generatedQuestion(paper domain.Paper, number int) domain.Question {
	prompt, ok := demoPrompts[paper.Subject]
	if !ok {
		prompt = demoPrompts[domain.SubjectPhysics]
	}
	text := fmt.Sprintf("%s Question %d (%d): %s", paper.Subject, number, paper.Year, prompt)
	options := make([]domain.Media, len(demoOptions))
	for i := range demoOptions {
		opt := demoOptions[i]
		options[i] = domain.TextMedia(&opt)
	}
	return domain.Question{
		Number: number,
		Type:   domain.QuestionStandard,
		Standard: &domain.Standard{
			Text:    &text,
			Options: options,
		},
	}
}

// Papers lists the demo papers for one subject.
func (s *DemoPaperSet) Papers(subject domain.Subject) []domain.Paper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Paper, len(s.papers[subject]))
	copy(out, s.papers[subject])
	return out
}

// Paper looks up one demo paper by ID.
func (s *DemoPaperSet) Paper(paperID string) (domain.Paper, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[paperID]
	return p, ok
}

// Question materializes one question of a demo paper.
func (s *DemoPaperSet) Question(paperID string, questionNumber int) (domain.Question, error) {
	s.mu.RLock()
	paper, ok := s.byID[paperID]
	s.mu.RUnlock()
	if !ok {
		return domain.Question{}, domain.ErrPaperNotFound
	}
	if questionNumber < 1 || questionNumber > paper.TotalQuestions {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return s.question(paper, questionNumber), nil
}

// AnswerKey returns the 0-indexed correct options for a demo paper.
func (s *DemoPaperSet) AnswerKey(paperID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[paperID]
	if !ok {
		return nil, domain.ErrPaperNotFound
	}
	out := make([]int, len(key))
	copy(out, key)
	return out, nil
}

// SubjectView narrows the set to one subject so it can stand in for an API
// adapter in the session engine.
type SubjectView struct {
	set     *DemoPaperSet
	subject domain.Subject
}

func (s *DemoPaperSet) View(subject domain.Subject) *SubjectView {
	return &SubjectView{set: s, subject: subject}
}

func (v *SubjectView) Subject() domain.Subject {
	return v.subject
}

func (v *SubjectView) ListPapers(_ context.Context, _ bool) ([]domain.Paper, error) {
	return v.set.Papers(v.subject), nil
}

func (v *SubjectView) FetchPaperByID(_ context.Context, paperID string) (domain.Paper, error) {
	p, ok := v.set.Paper(paperID)
	if !ok || p.Subject != v.subject {
		return domain.Paper{}, domain.ErrPaperNotFound
	}
	return p, nil
}

func (v *SubjectView) FetchPaperByYear(_ context.Context, year string) (domain.Paper, error) {
	wanted, err := strconv.Atoi(year)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("%w: year %q", domain.ErrPaperNotFound, year)
	}
	for _, p := range v.set.Papers(v.subject) {
		if p.Year == wanted {
			return p, nil
		}
	}
	return domain.Paper{}, domain.ErrPaperNotFound
}

func (v *SubjectView) FetchQuestion(_ context.Context, paperID string, questionNumber int, _ bool) (domain.Question, error) {
	return v.set.Question(paperID, questionNumber)
}

// Prefetch is a no-op: demo questions are generated, not fetched.
func (v *SubjectView) Prefetch(context.Context, string, []int) {}
