package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"exam-practice-service/internal/app"
	"exam-practice-service/internal/cache"
	"exam-practice-service/internal/domain"
	"exam-practice-service/internal/history"
)

// HistoryStore is the attempt-history surface the REST layer serves.
type HistoryStore interface {
	List(ctx context.Context) ([]domain.AttemptRecord, error)
	ByPaper(ctx context.Context, paperID string) ([]domain.AttemptRecord, error)
	Get(ctx context.Context, id string) (domain.AttemptRecord, error)
	StatsByPaper(ctx context.Context, paperID string) (history.PaperStats, error)
	Clear(ctx context.Context) error
	MarkOnboarded(ctx context.Context, userID string) error
	IsOnboarded(ctx context.Context, userID string) (bool, error)
}

// cacheControl is satisfied by API-backed providers; the demo set has no
// cache and simply reports nothing to manage.
type cacheControl interface {
	CacheStatus(ctx context.Context) cache.Status
	ClearCache(ctx context.Context)
}

type RESTHandler struct {
	manager *app.Manager
	history HistoryStore
}

func NewRESTHandler(manager *app.Manager, history HistoryStore) *RESTHandler {
	return &RESTHandler{manager: manager, history: history}
}

// Register mounts every REST route on the mux.
func (h *RESTHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/papers", h.handlePapers)
	mux.HandleFunc("/api/paper", h.handlePaper)
	mux.HandleFunc("/api/cache/status", h.handleCacheStatus)
	mux.HandleFunc("/api/cache", h.handleCacheClear)
	mux.HandleFunc("/api/attempts", h.handleAttempts)
	mux.HandleFunc("/api/attempts/stats", h.handleAttemptStats)
	mux.HandleFunc("/api/attempt", h.handleAttempt)
	mux.HandleFunc("/api/results/local", h.handleLocalResult)
	mux.HandleFunc("/api/results/remote", h.handleRemoteResult)
	mux.HandleFunc("/api/results/review", h.handleReview)
	mux.HandleFunc("/api/onboarding", h.handleOnboarding)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrPaperNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrResultNotFound),
		errors.Is(err, domain.ErrAttemptNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownSubject),
		errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *RESTHandler) subjectProvider(r *http.Request) (domain.Subject, app.PaperProvider, error) {
	subject, err := domain.ParseSubject(r.URL.Query().Get("subject"))
	if err != nil {
		return "", nil, err
	}
	provider, ok := h.manager.Provider(subject)
	if !ok {
		return "", nil, domain.ErrUnknownSubject
	}
	return subject, provider, nil
}

func (h *RESTHandler) handlePapers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, provider, err := h.subjectProvider(r)
	if err != nil {
		writeError(w, err)
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	papers, err := provider.ListPapers(r.Context(), refresh)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"papers": papers})
}

func (h *RESTHandler) handlePaper(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	subject, _, err := h.subjectProvider(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var paper domain.Paper
	switch {
	case r.URL.Query().Get("id") != "":
		paper, err = h.manager.ResolvePaper(r.Context(), subject, r.URL.Query().Get("id"))
	case r.URL.Query().Get("year") != "":
		paper, err = h.manager.ResolvePaperByYear(r.Context(), subject, r.URL.Query().Get("year"))
	default:
		http.Error(w, "missing id or year", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paper)
}

func (h *RESTHandler) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	subject, provider, err := h.subjectProvider(r)
	if err != nil {
		writeError(w, err)
		return
	}
	status := cache.Status{}
	if ctrl, ok := provider.(cacheControl); ok {
		status = ctrl.CacheStatus(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject":            subject,
		"cached":             status.Cached,
		"expires_in_seconds": int(status.ExpiresIn.Seconds()),
		"paper_count":        status.Count,
	})
}

func (h *RESTHandler) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// No subject clears every subject's cache.
	if r.URL.Query().Get("subject") == "" {
		for _, subject := range domain.Subjects() {
			if provider, ok := h.manager.Provider(subject); ok {
				if ctrl, ok := provider.(cacheControl); ok {
					ctrl.ClearCache(r.Context())
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		return
	}
	_, provider, err := h.subjectProvider(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if ctrl, ok := provider.(cacheControl); ok {
		ctrl.ClearCache(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *RESTHandler) handleAttempts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var (
			attempts []domain.AttemptRecord
			err      error
		)
		if paperID := r.URL.Query().Get("paper_id"); paperID != "" {
			attempts, err = h.history.ByPaper(r.Context(), paperID)
		} else {
			attempts, err = h.history.List(r.Context())
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
	case http.MethodDelete:
		if err := h.history.Clear(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RESTHandler) handleAttemptStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	paperID := r.URL.Query().Get("paper_id")
	if paperID == "" {
		http.Error(w, "missing paper_id", http.StatusBadRequest)
		return
	}
	stats, err := h.history.StatsByPaper(r.Context(), paperID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *RESTHandler) handleAttempt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	attempt, err := h.history.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *RESTHandler) handleLocalResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	attemptID := r.URL.Query().Get("attempt_id")
	if attemptID == "" {
		http.Error(w, "missing attempt_id", http.StatusBadRequest)
		return
	}
	summary, err := h.manager.Reconciler().LocalResult(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *RESTHandler) handleRemoteResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	answersID := r.URL.Query().Get("answers_id")
	if answersID == "" {
		http.Error(w, "missing answers_id", http.StatusBadRequest)
		return
	}
	summary, err := h.manager.Reconciler().RemoteSummary(r.Context(), answersID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *RESTHandler) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	answersID := r.URL.Query().Get("answers_id")
	if answersID == "" {
		http.Error(w, "missing answers_id", http.StatusBadRequest)
		return
	}
	checks, err := h.manager.Reconciler().ReviewAnswers(r.Context(), answersID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answers": checks})
}

func (h *RESTHandler) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	switch r.Method {
	case http.MethodGet:
		done, err := h.history.IsOnboarded(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"onboarded": done})
	case http.MethodPost:
		if err := h.history.MarkOnboarded(r.Context(), userID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"onboarded": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
