package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"exam-practice-service/internal/domain"
)

// Manager owns the live sessions and resolves papers across subjects. One
// browser context runs at most one session at a time, but the manager does
// not enforce that; each session is independent.
type Manager struct {
	providers map[domain.Subject]PaperProvider
	remote    RemoteSession // nil when no backend is configured
	recon     *Reconciler
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	seq      int64
}

func NewManager(providers map[domain.Subject]PaperProvider, remote RemoteSession, recon *Reconciler) *Manager {
	return &Manager{
		providers: providers,
		remote:    remote,
		recon:     recon,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// WithClock is test-only for deterministic timestamps.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Provider returns the paper provider registered for a subject.
func (m *Manager) Provider(subject domain.Subject) (PaperProvider, bool) {
	p, ok := m.providers[subject]
	return p, ok
}

// Reconciler exposes result reconciliation to the transport layer.
func (m *Manager) Reconciler() *Reconciler {
	return m.recon
}

// ResolvePaper finds a paper by ID: listing cache first, then the direct
// lookup for papers started without a prior listing fetch.
func (m *Manager) ResolvePaper(ctx context.Context, subject domain.Subject, paperID string) (domain.Paper, error) {
	provider, ok := m.providers[subject]
	if !ok {
		return domain.Paper{}, domain.ErrPaperNotFound
	}
	if papers, err := provider.ListPapers(ctx, false); err == nil {
		for _, p := range papers {
			if p.ID == paperID {
				return p, nil
			}
		}
	}
	paper, err := provider.FetchPaperByID(ctx, paperID)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("%w: %s", domain.ErrPaperNotFound, paperID)
	}
	return paper, nil
}

// ResolvePaperByYear resolves a paper by exam year, for users who jump
// straight into practice without a prior listing fetch. A cached listing is
// consulted first; the per-year backend lookup is the fallback.
func (m *Manager) ResolvePaperByYear(ctx context.Context, subject domain.Subject, year string) (domain.Paper, error) {
	provider, ok := m.providers[subject]
	if !ok {
		return domain.Paper{}, domain.ErrPaperNotFound
	}
	wanted, parseErr := strconv.Atoi(year)
	if papers, err := provider.ListPapers(ctx, false); err == nil && parseErr == nil {
		for _, p := range papers {
			if p.Year == wanted {
				return p, nil
			}
		}
	}
	paper, err := provider.FetchPaperByYear(ctx, year)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("%w: year %s", domain.ErrPaperNotFound, year)
	}
	return paper, nil
}

// StartSession resolves the paper and brings a session to InProgress. Any
// failure here means the session never existed; callers redirect to paper
// selection.
func (m *Manager) StartSession(ctx context.Context, subject domain.Subject, paperID string) (*Session, error) {
	provider, ok := m.providers[subject]
	if !ok {
		return nil, domain.ErrPaperNotFound
	}
	paper, err := m.ResolvePaper(ctx, subject, paperID)
	if err != nil {
		return nil, err
	}
	if paper.TotalQuestions <= 0 || paper.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: paper %s has no questions or duration", domain.ErrPaperNotFound, paperID)
	}

	m.mu.Lock()
	m.seq++
	id := "s" + strconv.FormatInt(m.now().UnixMilli(), 36) + "-" + strconv.FormatInt(m.seq, 10)
	m.mu.Unlock()

	session := newSession(context.Background(), id, paper, provider, m.remote, m.recon, m.now)
	if err := session.start(ctx); err != nil {
		session.Close()
		return nil, fmt.Errorf("cannot start session: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()
	return session, nil
}

// Get returns a live session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Release tears down and forgets a session; idempotent.
func (m *Manager) Release(id string) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		session.Close()
	}
}
