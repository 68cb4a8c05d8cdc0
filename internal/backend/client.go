package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"exam-practice-service/internal/domain"
)

// TokenSource supplies the bearer credential attached to every call. The
// identity layer itself is outside this module; the core only carries the
// token it is given.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed credential (tests, env config).
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Config holds everything the client needs; it is built once at startup and
// passed by reference into every adapter, replacing any process-wide state.
type Config struct {
	BaseURL string
	Tokens  TokenSource
	// HTTPClient defaults to http.DefaultClient when nil.
	HTTPClient *http.Client
}

// Client talks to the remote paper-management API.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: cfg.BaseURL, tokens: cfg.Tokens, http: hc}
}

// ListPapers fetches the raw paper listing for a subject. The envelope is
// left to the caller to normalize.
func (c *Client) ListPapers(ctx context.Context, subject domain.Subject) (json.RawMessage, error) {
	return c.get(ctx, "/FindAll/"+string(subject)+"/Papers", nil)
}

// FindQuestion fetches one question by paper and 1-based number.
func (c *Client) FindQuestion(ctx context.Context, paperID string, questionNumber int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("paper_id", paperID)
	q.Set("question_number", strconv.Itoa(questionNumber))
	return c.get(ctx, "/Find/Question/Id", q)
}

// FindPaperByYear resolves a single paper lazily, without a prior listing.
func (c *Client) FindPaperByYear(ctx context.Context, subject domain.Subject, year string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("subject", string(subject))
	q.Set("year", year)
	return c.get(ctx, "/Find/Papers/Subject/Year", q)
}

// FindPaperByID fetches paper metadata directly.
func (c *Client) FindPaperByID(ctx context.Context, subject domain.Subject, paperID string) (json.RawMessage, error) {
	return c.get(ctx, "/FindOne/"+string(subject)+"/Paper/"+url.PathEscape(paperID), nil)
}

// StartPaper begins a server-side attempt and returns its answers ID.
func (c *Client) StartPaper(ctx context.Context, paperID string) (domain.SessionStart, error) {
	q := url.Values{}
	q.Set("paper_id", paperID)
	raw, err := c.post(ctx, "/Start/Paper", q)
	if err != nil {
		return domain.SessionStart{}, err
	}
	obj, err := NormalizeObject(raw)
	if err != nil {
		return domain.SessionStart{}, err
	}
	var start domain.SessionStart
	if err := json.Unmarshal(obj, &start); err != nil {
		return domain.SessionStart{}, fmt.Errorf("decode session start: %w", err)
	}
	if start.AnswersID == "" {
		return domain.SessionStart{}, domain.ErrUnexpectedResponseFormat
	}
	return start, nil
}

// SaveAnswer persists one selection remotely. Positions are 1-indexed on
// the wire; callers convert from internal 0-indexed state.
func (c *Client) SaveAnswer(ctx context.Context, answersID string, questionNumber, selectedOption int) error {
	q := url.Values{}
	q.Set("paper_answers_id", answersID)
	q.Set("question_number", strconv.Itoa(questionNumber))
	q.Set("selected_option_index", strconv.Itoa(selectedOption))
	_, err := c.post(ctx, "/save/Answer", q)
	return err
}

// CompletePaper finalizes server-side scoring for an attempt.
func (c *Client) CompletePaper(ctx context.Context, answersID string) error {
	q := url.Values{}
	q.Set("paper_answers_id", answersID)
	_, err := c.post(ctx, "/Complete/Paper", q)
	return err
}

// ResultSummaries fetches the full summary collection; callers filter by
// answers ID.
func (c *Client) ResultSummaries(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/FindAll/Papers/Result/Summary", nil)
}

// CheckAnswers fetches per-question correctness for a completed attempt.
func (c *Client) CheckAnswers(ctx context.Context, answersID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("paper_answers_id", answersID)
	return c.get(ctx, "/Check/Answers", q)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, query)
}

func (c *Client) post(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, query)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d", domain.ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return json.RawMessage(body), nil
}
