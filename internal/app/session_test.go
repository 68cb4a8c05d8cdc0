package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"exam-practice-service/internal/domain"
)

type stubProvider struct {
	subject  domain.Subject
	papers   []domain.Paper
	unlisted []domain.Paper // resolvable by year/id but absent from listings

	mu         sync.Mutex
	fetchCalls int
	failFetch  bool
}

func (p *stubProvider) Subject() domain.Subject { return p.subject }

func (p *stubProvider) ListPapers(context.Context, bool) ([]domain.Paper, error) {
	return p.papers, nil
}

func (p *stubProvider) FetchPaperByID(_ context.Context, paperID string) (domain.Paper, error) {
	for _, paper := range p.papers {
		if paper.ID == paperID {
			return paper, nil
		}
	}
	return domain.Paper{}, domain.ErrPaperNotFound
}

func (p *stubProvider) FetchPaperByYear(_ context.Context, year string) (domain.Paper, error) {
	for _, paper := range append(p.papers, p.unlisted...) {
		if fmt.Sprint(paper.Year) == year {
			return paper, nil
		}
	}
	return domain.Paper{}, domain.ErrPaperNotFound
}

func (p *stubProvider) FetchQuestion(_ context.Context, paperID string, questionNumber int, _ bool) (domain.Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchCalls++
	if p.failFetch {
		return domain.Question{}, errors.New("backend down")
	}
	text := fmt.Sprintf("%s question %d", paperID, questionNumber)
	return domain.Question{
		Number:   questionNumber,
		Type:     domain.QuestionStandard,
		Standard: &domain.Standard{Text: &text, Options: []domain.Media{{Type: "text"}, {Type: "text"}, {Type: "text"}, {Type: "text"}}},
	}, nil
}

func (p *stubProvider) Prefetch(context.Context, string, []int) {}

type stubAttempts struct {
	mu      sync.Mutex
	records map[string]domain.AttemptRecord
}

func newStubAttempts() *stubAttempts {
	return &stubAttempts{records: make(map[string]domain.AttemptRecord)}
}

func (s *stubAttempts) Append(_ context.Context, rec domain.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *stubAttempts) Get(_ context.Context, id string) (domain.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.AttemptRecord{}, domain.ErrAttemptNotFound
	}
	return rec, nil
}

type stubKeys map[string][]int

func (k stubKeys) AnswerKey(paperID string) ([]int, error) {
	key, ok := k[paperID]
	if !ok {
		return nil, domain.ErrPaperNotFound
	}
	return key, nil
}

type stubRemote struct {
	mu           sync.Mutex
	started      []string
	saved        []saveTask
	completed    []string
	failComplete bool
}

func (r *stubRemote) StartPaper(_ context.Context, paperID string) (domain.SessionStart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, paperID)
	return domain.SessionStart{AnswersID: "ans-" + paperID}, nil
}

func (r *stubRemote) SaveAnswer(_ context.Context, _ string, questionNumber, selectedOption int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, saveTask{questionNumber: questionNumber, selectedOption: selectedOption})
	return nil
}

func (r *stubRemote) CompletePaper(_ context.Context, answersID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failComplete {
		return errors.New("backend down")
	}
	r.completed = append(r.completed, answersID)
	return nil
}

func localPaper(id string, questions, minutes int) domain.Paper {
	return domain.Paper{
		ID:              id,
		Subject:         domain.SubjectBiology,
		Year:            2024,
		Title:           "Biology " + id,
		TotalQuestions:  questions,
		DurationMinutes: minutes,
		Local:           true,
	}
}

func newTestManager(provider *stubProvider, remote RemoteSession, keys AnswerKeySource) (*Manager, *stubAttempts) {
	attempts := newStubAttempts()
	if keys == nil {
		keys = stubKeys{}
	}
	recon := NewReconciler(keys, nil, attempts)
	providers := map[domain.Subject]PaperProvider{provider.subject: provider}
	return NewManager(providers, remote, recon), attempts
}

func waitFor(t *testing.T, s *Session, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Snapshot()
		if cond(snap) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline; last snapshot: %+v", s.Snapshot())
	return Snapshot{}
}

func TestLocalSessionFullRun(t *testing.T) {
	provider := &stubProvider{
		subject: domain.SubjectBiology,
		papers:  []domain.Paper{localPaper("bio-2024", 5, 10)},
	}
	keys := stubKeys{"bio-2024": {1, 1, 1, 1, 1}}
	manager, attempts := newTestManager(provider, nil, keys)

	session, err := manager.StartSession(context.Background(), domain.SubjectBiology, "bio-2024")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Release(session.ID)

	snap := session.Snapshot()
	if snap.State != StateInProgress {
		t.Fatalf("expected in_progress, got %s", snap.State)
	}
	if snap.Remaining != 600 {
		t.Fatalf("expected 600s on a 10 minute paper, got %d", snap.Remaining)
	}
	if snap.Question == nil || snap.Question.Number != 1 {
		t.Fatalf("first question should be loaded before the session is handed out")
	}
	for i, a := range snap.Answers {
		if a != Unanswered {
			t.Fatalf("answer %d should start unanswered, got %d", i, a)
		}
	}

	// Answer questions 1, 3, and 5 with the correct option.
	if err := session.SelectAnswer(1); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := session.JumpTo(2); err != nil {
		t.Fatalf("jump: %v", err)
	}
	waitFor(t, session, func(s Snapshot) bool { return s.Question != nil && s.Question.Number == 3 })
	if err := session.SelectAnswer(1); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := session.JumpTo(4); err != nil {
		t.Fatalf("jump: %v", err)
	}
	waitFor(t, session, func(s Snapshot) bool { return s.Question != nil && s.Question.Number == 5 })
	if err := session.SelectAnswer(1); err != nil {
		t.Fatalf("select: %v", err)
	}

	answered, total, err := session.RequestSubmit()
	if err != nil {
		t.Fatalf("request submit: %v", err)
	}
	if answered != 3 || total != 5 {
		t.Fatalf("expected 3/5 answered, got %d/%d", answered, total)
	}

	// Navigation and answering are frozen while the confirmation is pending.
	if err := session.GoNext(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if err := session.SelectAnswer(2); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	if err := session.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	snap = session.Snapshot()
	if snap.State != StateSubmitted {
		t.Fatalf("expected submitted, got %s", snap.State)
	}
	if snap.Result == nil {
		t.Fatalf("local submission should carry a result")
	}
	if snap.Result.CorrectAnswers != 3 || snap.Result.TotalAnswered != 3 || snap.Result.Unattempted != 2 {
		t.Fatalf("unexpected result %+v", snap.Result)
	}
	if snap.Result.Percentage != 60.0 || snap.Result.Grade != "B" {
		t.Fatalf("expected 60%% grade B, got %v %s", snap.Result.Percentage, snap.Result.Grade)
	}

	// The attempt landed in history.
	if snap.AttemptID == "" {
		t.Fatalf("expected an attempt ID")
	}
	rec, err := attempts.Get(context.Background(), snap.AttemptID)
	if err != nil {
		t.Fatalf("attempt lookup: %v", err)
	}
	if rec.Score != 3 || rec.PaperID != "bio-2024" {
		t.Fatalf("unexpected attempt record %+v", rec)
	}

	// Submitted is terminal.
	if _, _, err := session.RequestSubmit(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition after submit, got %v", err)
	}
}

func TestNavigationBounds(t *testing.T) {
	provider := &stubProvider{
		subject: domain.SubjectBiology,
		papers:  []domain.Paper{localPaper("bio-2023", 3, 5)},
	}
	manager, _ := newTestManager(provider, nil, stubKeys{"bio-2023": {0, 0, 0}})

	session, err := manager.StartSession(context.Background(), domain.SubjectBiology, "bio-2023")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Release(session.ID)

	// Previous at the first question is a no-op.
	if err := session.GoPrevious(); err != nil {
		t.Fatalf("previous: %v", err)
	}
	if snap := session.Snapshot(); snap.Pointer != 0 {
		t.Fatalf("pointer moved on out-of-range previous: %d", snap.Pointer)
	}

	// Next past the last question is a no-op, never a submit.
	if err := session.JumpTo(2); err != nil {
		t.Fatalf("jump: %v", err)
	}
	waitFor(t, session, func(s Snapshot) bool { return s.Pointer == 2 && s.Question != nil })
	if err := session.GoNext(); err != nil {
		t.Fatalf("next: %v", err)
	}
	snap := session.Snapshot()
	if snap.Pointer != 2 || snap.State != StateInProgress {
		t.Fatalf("out-of-range next should be a no-op: %+v", snap)
	}

	// Jump clamps into range.
	if err := session.JumpTo(99); err != nil {
		t.Fatalf("jump: %v", err)
	}
	if snap := session.Snapshot(); snap.Pointer != 2 {
		t.Fatalf("expected clamp to last question, got %d", snap.Pointer)
	}
	if err := session.JumpTo(-5); err != nil {
		t.Fatalf("jump: %v", err)
	}
	waitFor(t, session, func(s Snapshot) bool { return s.Pointer == 0 })
}

func TestCancelSubmitReturnsToInProgress(t *testing.T) {
	provider := &stubProvider{
		subject: domain.SubjectBiology,
		papers:  []domain.Paper{localPaper("bio-2022", 2, 5)},
	}
	manager, _ := newTestManager(provider, nil, stubKeys{"bio-2022": {0, 0}})

	session, err := manager.StartSession(context.Background(), domain.SubjectBiology, "bio-2022")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Release(session.ID)

	if _, _, err := session.RequestSubmit(); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := session.CancelSubmit(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if snap := session.Snapshot(); snap.State != StateInProgress {
		t.Fatalf("expected in_progress after cancel, got %s", snap.State)
	}
	// Cancel without a pending confirmation is invalid.
	if err := session.CancelSubmit(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestTimerExpiryForceSubmitsLocalPaper(t *testing.T) {
	provider := &stubProvider{
		subject: domain.SubjectBiology,
		papers:  []domain.Paper{localPaper("bio-2021", 2, 5)},
	}
	manager, _ := newTestManager(provider, nil, stubKeys{"bio-2021": {1, 1}})

	session, err := manager.StartSession(context.Background(), domain.SubjectBiology, "bio-2021")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Release(session.ID)

	_ = session.SelectAnswer(1)

	session.mu.Lock()
	session.remaining = 1
	session.mu.Unlock()
	if done := session.tick(); !done {
		t.Fatalf("tick at zero should report the countdown finished")
	}

	snap := session.Snapshot()
	if snap.State != StateSubmitted {
		t.Fatalf("local paper should auto-submit on expiry, got %s", snap.State)
	}
	if snap.Result == nil || snap.Result.CorrectAnswers != 1 {
		t.Fatalf("unexpected forced-submit result %+v", snap.Result)
	}
}

func TestTimerExpiryFreezesRemotePaper(t *testing.T) {
	paper := localPaper("api-2024", 2, 5)
	paper.Local = false
	provider := &stubProvider{subject: domain.SubjectPhysics, papers: []domain.Paper{paper}}
	remote := &stubRemote{}
	manager, _ := newTestManager(provider, remote, nil)

	session, err := manager.StartSession(context.Background(), domain.SubjectPhysics, "api-2024")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Release(session.ID)

	if snap := session.Snapshot(); snap.AnswersID != "ans-api-2024" {
		t.Fatalf("expected remote attempt ID, got %q", snap.AnswersID)
	}

	session.mu.Lock()
	session.remaining = 1
	session.mu.Unlock()
	if done := session.tick(); !done {
		t.Fatalf("tick at zero should report the countdown finished")
	}

	// The backend's clock is authoritative: no auto-submit, just a flag.
	snap := session.Snapshot()
	if snap.State == StateSubmitted {
		t.Fatalf("remote paper must not auto-submit on expiry")
	}
	if !snap.Expired {
		t.Fatalf("expected expired flag")
	}
}

func TestRemoteSessionSubmitAndAnswerSync(t *testing.T) {
	paper := localPaper("api-2023", 3, 5)
	paper.Local = false
	provider := &stubProvider{subject: domain.SubjectChemistry, papers: []domain.Paper{paper}}
	remote := &stubRemote{}
	manager, _ := newTestManager(provider, remote, nil)

	session, err := manager.StartSession(context.Background(), domain.SubjectChemistry, "api-2023")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Release(session.ID)

	if err := session.SelectAnswer(2); err != nil {
		t.Fatalf("select: %v", err)
	}

	// The save is fire-and-forget with 1-indexed wire values.
	deadline := time.Now().Add(2 * time.Second)
	for {
		remote.mu.Lock()
		saved := len(remote.saved)
		remote.mu.Unlock()
		if saved == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("answer save never reached the backend")
		}
		time.Sleep(5 * time.Millisecond)
	}
	remote.mu.Lock()
	task := remote.saved[0]
	remote.mu.Unlock()
	if task.questionNumber != 1 || task.selectedOption != 3 {
		t.Fatalf("expected 1-indexed save (1,3), got (%d,%d)", task.questionNumber, task.selectedOption)
	}

	// A failed completion re-opens the confirmation prompt.
	remote.mu.Lock()
	remote.failComplete = true
	remote.mu.Unlock()
	if _, _, err := session.RequestSubmit(); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := session.ConfirmSubmit(context.Background()); err == nil {
		t.Fatalf("expected completion failure")
	}
	if snap := session.Snapshot(); snap.State != StateAwaitingConfirmation {
		t.Fatalf("failed completion should stay awaiting confirmation, got %s", snap.State)
	}

	remote.mu.Lock()
	remote.failComplete = false
	remote.mu.Unlock()
	if err := session.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	snap := session.Snapshot()
	if snap.State != StateSubmitted {
		t.Fatalf("expected submitted, got %s", snap.State)
	}
	if snap.Result != nil {
		t.Fatalf("remote submission defers the score to reconciliation")
	}
	if len(remote.completed) != 1 || remote.completed[0] != "ans-api-2023" {
		t.Fatalf("unexpected completions %v", remote.completed)
	}
}

func TestRetryLoadAfterFetchFailure(t *testing.T) {
	provider := &stubProvider{
		subject: domain.SubjectBiology,
		papers:  []domain.Paper{localPaper("bio-2020", 3, 5)},
	}
	manager, _ := newTestManager(provider, nil, stubKeys{"bio-2020": {0, 0, 0}})

	session, err := manager.StartSession(context.Background(), domain.SubjectBiology, "bio-2020")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Release(session.ID)

	provider.mu.Lock()
	provider.failFetch = true
	provider.mu.Unlock()

	if err := session.GoNext(); err != nil {
		t.Fatalf("next: %v", err)
	}
	waitFor(t, session, func(s Snapshot) bool { return s.LoadError != "" })

	// The session stays alive; answering other questions still works after
	// going back.
	provider.mu.Lock()
	provider.failFetch = false
	provider.mu.Unlock()

	if err := session.RetryLoad(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	snap := waitFor(t, session, func(s Snapshot) bool { return s.Question != nil && s.Question.Number == 2 })
	if snap.LoadError != "" {
		t.Fatalf("load error should clear on successful retry: %q", snap.LoadError)
	}
}

func TestStartFailureDiscardsSession(t *testing.T) {
	provider := &stubProvider{
		subject:   domain.SubjectBiology,
		papers:    []domain.Paper{localPaper("bio-2019", 2, 5)},
		failFetch: true,
	}
	manager, _ := newTestManager(provider, nil, stubKeys{"bio-2019": {0, 0}})

	session, err := manager.StartSession(context.Background(), domain.SubjectBiology, "bio-2019")
	if err == nil {
		t.Fatalf("expected start failure when the first question cannot load")
	}
	if session != nil {
		t.Fatalf("failed start should not hand out a session")
	}

	if _, err := manager.StartSession(context.Background(), domain.SubjectBiology, "missing"); !errors.Is(err, domain.ErrPaperNotFound) {
		t.Fatalf("expected paper not found, got %v", err)
	}
}

func TestSubscribeDropsStaleSnapshots(t *testing.T) {
	provider := &stubProvider{
		subject: domain.SubjectBiology,
		papers:  []domain.Paper{localPaper("bio-2018", 10, 5)},
	}
	manager, _ := newTestManager(provider, nil, stubKeys{"bio-2018": demoKey(10)})

	session, err := manager.StartSession(context.Background(), domain.SubjectBiology, "bio-2018")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Release(session.ID)

	updates, cancel := session.Subscribe()
	defer cancel()

	<-updates // initial snapshot

	// Burst more updates than the subscriber buffer holds; the session must
	// never block and the last snapshot must reflect the final state.
	for i := 0; i < 20; i++ {
		if err := session.SelectAnswer(i % 4); err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
	}

	var last Snapshot
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			last = snap
			if len(last.Answers) > 0 && last.Answers[0] == 3 {
				return
			}
		case <-timeout:
			t.Fatalf("never observed the final answer state; last %+v", last.Answers)
		}
	}
}

func demoKey(n int) []int {
	key := make([]int, n)
	for i := range key {
		key[i] = 1
	}
	return key
}

func TestResolvePaperByYear(t *testing.T) {
	ctx := context.Background()
	listed := localPaper("bio-2024", 5, 10)
	unlisted := localPaper("bio-2019", 5, 10)
	unlisted.Year = 2019
	provider := &stubProvider{
		subject:  domain.SubjectBiology,
		papers:   []domain.Paper{listed},
		unlisted: []domain.Paper{unlisted},
	}
	manager, _ := newTestManager(provider, nil, nil)

	// A cached listing satisfies the lookup without a per-year fetch.
	paper, err := manager.ResolvePaperByYear(ctx, domain.SubjectBiology, "2024")
	if err != nil {
		t.Fatalf("resolve listed year: %v", err)
	}
	if paper.ID != "bio-2024" {
		t.Fatalf("unexpected paper %+v", paper)
	}

	// A year missing from the listing falls back to the direct lookup.
	paper, err = manager.ResolvePaperByYear(ctx, domain.SubjectBiology, "2019")
	if err != nil {
		t.Fatalf("resolve unlisted year: %v", err)
	}
	if paper.ID != "bio-2019" {
		t.Fatalf("unexpected paper %+v", paper)
	}

	if _, err := manager.ResolvePaperByYear(ctx, domain.SubjectBiology, "1999"); !errors.Is(err, domain.ErrPaperNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := manager.ResolvePaperByYear(ctx, domain.SubjectPhysics, "2024"); !errors.Is(err, domain.ErrPaperNotFound) {
		t.Fatalf("expected not found for unregistered subject, got %v", err)
	}
}
