// Package app owns the quiz-taking core: the timed session state machine,
// result reconciliation, and the best-effort remote answer sync.
package app

import (
	"context"
	"log"
	"sync"
	"time"

	"exam-practice-service/internal/domain"
)

// Unanswered marks an empty slot in the answer vector.
const Unanswered = -1

// SessionState enumerates the session lifecycle. Submitted is terminal.
type SessionState string

const (
	StateInitializing         SessionState = "initializing"
	StateInProgress           SessionState = "in_progress"
	StateAwaitingConfirmation SessionState = "awaiting_submit_confirmation"
	StateSubmitted            SessionState = "submitted"
)

// QuestionSource loads questions for a session; API adapters and the demo
// set both satisfy it.
type QuestionSource interface {
	FetchQuestion(ctx context.Context, paperID string, questionNumber int, useCache bool) (domain.Question, error)
	Prefetch(ctx context.Context, paperID string, questionNumbers []int)
}

// PaperProvider is the per-subject surface the engine resolves papers
// through.
type PaperProvider interface {
	QuestionSource
	Subject() domain.Subject
	ListPapers(ctx context.Context, forceRefresh bool) ([]domain.Paper, error)
	FetchPaperByID(ctx context.Context, paperID string) (domain.Paper, error)
	FetchPaperByYear(ctx context.Context, year string) (domain.Paper, error)
}

// RemoteSession is the server-side attempt lifecycle for API-backed papers.
type RemoteSession interface {
	AnswerSaver
	StartPaper(ctx context.Context, paperID string) (domain.SessionStart, error)
	CompletePaper(ctx context.Context, answersID string) error
}

// Snapshot is the full observable session state pushed to subscribers after
// every change.
type Snapshot struct {
	SessionID string       `json:"session_id"`
	State     SessionState `json:"state"`
	Paper     domain.Paper `json:"paper"`
	AnswersID string       `json:"answers_id,omitempty"`

	Pointer   int   `json:"pointer"`
	Answers   []int `json:"answers"`
	Answered  int   `json:"answered"`
	Total     int   `json:"total"`
	Remaining int   `json:"remaining_seconds"`
	Expired   bool  `json:"expired"`

	Loading   bool             `json:"loading"`
	LoadError string           `json:"load_error,omitempty"`
	Question  *domain.Question `json:"question,omitempty"`

	Result    *domain.ResultSummary `json:"result,omitempty"`
	AttemptID string                `json:"attempt_id,omitempty"`
}

// Session is one timed attempt at a paper. All mutation happens under one
// mutex; the countdown goroutine is the only non-user-driven mutator and it
// stops as soon as the session leaves InProgress.
type Session struct {
	ID string

	paper  domain.Paper
	source QuestionSource
	remote RemoteSession // nil for locally scored papers
	recon  *Reconciler

	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       SessionState
	answers     []int
	pointer     int
	remaining   int
	startedAt   time.Time
	answersID   string
	sync        *syncQueue
	expired     bool
	loading     bool
	loadErr     string
	question    *domain.Question
	result      *domain.ResultSummary
	attemptID   string
	subscribers map[chan Snapshot]struct{}
}

func newSession(parent context.Context, id string, paper domain.Paper, source QuestionSource, remote RemoteSession, recon *Reconciler, now func() time.Time) *Session {
	ctx, cancel := context.WithCancel(parent)
	answers := make([]int, paper.TotalQuestions)
	for i := range answers {
		answers[i] = Unanswered
	}
	return &Session{
		ID:          id,
		paper:       paper,
		source:      source,
		remote:      remote,
		recon:       recon,
		now:         now,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateInitializing,
		answers:     answers,
		remaining:   paper.DurationMinutes * 60,
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// start obtains the remote attempt ID (API papers), loads the first
// question, and begins the countdown. A failure here is fatal: the caller
// discards the session and sends the user back to paper selection.
func (s *Session) start(ctx context.Context) error {
	var queue *syncQueue
	var answersID string

	if !s.paper.Local {
		if s.remote == nil {
			return domain.ErrSessionNotFound
		}
		begun, err := s.remote.StartPaper(ctx, s.paper.ID)
		if err != nil {
			return err
		}
		answersID = begun.AnswersID
		queue = newSyncQueue(s.ctx, s.remote, answersID)
	}

	first, err := s.source.FetchQuestion(ctx, s.paper.ID, 1, true)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.answersID = answersID
	s.sync = queue
	s.question = &first
	s.state = StateInProgress
	s.startedAt = s.now()
	s.broadcastLocked()
	s.mu.Unlock()

	go s.countdown()
	go s.source.Prefetch(s.ctx, s.paper.ID, prefetchWindow(1, s.paper.TotalQuestions))
	return nil
}

func prefetchWindow(current, total int) []int {
	var nums []int
	for n := current + 1; n <= current+3 && n <= total; n++ {
		nums = append(nums, n)
	}
	return nums
}

func (s *Session) countdown() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if done := s.tick(); done {
				return
			}
		}
	}
}

// tick advances the countdown by one second and returns true once the timer
// no longer needs to run. At zero, locally scored papers force-submit;
// API-backed papers only freeze and flag expiry, leaving submission to the
// user (the backend's clock is authoritative for their scoring anyway).
func (s *Session) tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateSubmitted:
		return true
	case StateInProgress, StateAwaitingConfirmation:
	default:
		return false
	}

	if s.remaining <= 0 {
		return true
	}
	s.remaining--
	if s.remaining > 0 {
		s.broadcastLocked()
		return false
	}

	if s.paper.Local {
		if err := s.submitLocked(s.ctx); err != nil {
			log.Printf("session %s: forced submit failed: %v", s.ID, err)
		}
	} else {
		s.expired = true
	}
	s.broadcastLocked()
	return true
}

// SelectAnswer records a choice for the current question. It never advances
// the pointer; for API papers it also enqueues a fire-and-forget remote
// save with 1-indexed positions.
func (s *Session) SelectAnswer(optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return domain.ErrInvalidTransition
	}
	if optionIndex < 0 {
		optionIndex = Unanswered
	}
	s.answers[s.pointer] = optionIndex
	if s.sync != nil && optionIndex != Unanswered {
		s.sync.Enqueue(s.pointer+1, optionIndex+1)
	}
	s.broadcastLocked()
	return nil
}

// GoNext moves to the next question; past the last question it is a no-op
// (submission is always explicit).
func (s *Session) GoNext() error {
	return s.moveTo(func(p int) int { return p + 1 }, true)
}

// GoPrevious moves to the previous question, clamped at the first.
func (s *Session) GoPrevious() error {
	return s.moveTo(func(p int) int { return p - 1 }, true)
}

// JumpTo moves directly to a question index, clamped into range.
func (s *Session) JumpTo(index int) error {
	return s.moveTo(func(int) int { return index }, false)
}

func (s *Session) moveTo(next func(int) int, noopOutOfRange bool) error {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return domain.ErrInvalidTransition
	}

	target := next(s.pointer)
	if target < 0 || target >= s.paper.TotalQuestions {
		if noopOutOfRange {
			s.mu.Unlock()
			return nil
		}
		if target < 0 {
			target = 0
		} else {
			target = s.paper.TotalQuestions - 1
		}
	}
	if target == s.pointer {
		s.mu.Unlock()
		return nil
	}

	s.pointer = target
	s.question = nil
	s.loadErr = ""
	if s.sync != nil {
		s.sync.Flush()
	}
	s.loadCurrentLocked()
	s.broadcastLocked()
	s.mu.Unlock()
	return nil
}

// RetryLoad refetches the current question after a mid-session load error.
func (s *Session) RetryLoad() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return domain.ErrInvalidTransition
	}
	s.loadErr = ""
	s.loadCurrentLocked()
	s.broadcastLocked()
	return nil
}

// loadCurrentLocked fetches the question at the pointer asynchronously. The
// response is discarded if the session was torn down or the user navigated
// away in the meantime.
func (s *Session) loadCurrentLocked() {
	number := s.pointer + 1
	s.loading = true
	go func() {
		q, err := s.source.FetchQuestion(s.ctx, s.paper.ID, number, true)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ctx.Err() != nil || s.pointer+1 != number {
			return
		}
		s.loading = false
		if err != nil {
			s.loadErr = err.Error()
		} else {
			s.question = &q
		}
		s.broadcastLocked()
	}()
	go s.source.Prefetch(s.ctx, s.paper.ID, prefetchWindow(number, s.paper.TotalQuestions))
}

// RequestSubmit gates submission behind a confirmation prompt and reports
// the answered count for it.
func (s *Session) RequestSubmit() (answered, total int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return 0, 0, domain.ErrInvalidTransition
	}
	s.state = StateAwaitingConfirmation
	s.broadcastLocked()
	return s.answeredLocked(), s.paper.TotalQuestions, nil
}

// CancelSubmit returns to InProgress from the confirmation prompt.
func (s *Session) CancelSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingConfirmation {
		return domain.ErrInvalidTransition
	}
	s.state = StateInProgress
	s.broadcastLocked()
	return nil
}

// ConfirmSubmit finalizes the session. Local papers are scored and recorded
// immediately; API papers hand off to the backend and defer the score to
// reconciliation. A failed remote completion re-opens the confirmation
// prompt so the user can retry.
func (s *Session) ConfirmSubmit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingConfirmation {
		return domain.ErrInvalidTransition
	}
	if err := s.submitLocked(ctx); err != nil {
		s.state = StateAwaitingConfirmation
		s.broadcastLocked()
		return err
	}
	s.broadcastLocked()
	return nil
}

func (s *Session) submitLocked(ctx context.Context) error {
	elapsed := s.now().Sub(s.startedAt)

	if s.paper.Local {
		rec, summary, err := s.recon.ScoreLocal(ctx, s.paper, s.answers, elapsed)
		if err != nil {
			return err
		}
		s.state = StateSubmitted
		s.attemptID = rec.ID
		s.result = &summary
		return nil
	}

	if err := s.remote.CompletePaper(ctx, s.answersID); err != nil {
		return err
	}
	s.state = StateSubmitted
	return nil
}

func (s *Session) answeredLocked() int {
	count := 0
	for _, a := range s.answers {
		if a != Unanswered {
			count++
		}
	}
	return count
}

// Context is the session's lifetime context; it ends at Close.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Snapshot returns a copy of the observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	answers := make([]int, len(s.answers))
	copy(answers, s.answers)
	return Snapshot{
		SessionID: s.ID,
		State:     s.state,
		Paper:     s.paper,
		AnswersID: s.answersID,
		Pointer:   s.pointer,
		Answers:   answers,
		Answered:  s.answeredLocked(),
		Total:     s.paper.TotalQuestions,
		Remaining: s.remaining,
		Expired:   s.expired,
		Loading:   s.loading,
		LoadError: s.loadErr,
		Question:  s.question,
		Result:    s.result,
		AttemptID: s.attemptID,
	}
}

// Subscribe returns a channel of state snapshots. The caller must invoke
// the cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot so a slow subscriber never blocks the
			// session; only the latest state matters.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// Close tears the session down: the countdown stops and any in-flight
// fetch or sync result is discarded instead of mutating dead state.
func (s *Session) Close() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}
