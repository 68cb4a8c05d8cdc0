// Package adapter translates the per-subject backend response shapes into
// the common Paper/Question model. One generic adapter parameterized by a
// Strategy serves every subject.
package adapter

import (
	"context"
	"encoding/json"
	"log"
	"strconv"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"exam-practice-service/internal/backend"
	"exam-practice-service/internal/cache"
	"exam-practice-service/internal/domain"
)

// APIClient is the slice of the backend client the adapter consumes.
type APIClient interface {
	ListPapers(ctx context.Context, subject domain.Subject) (json.RawMessage, error)
	FindQuestion(ctx context.Context, paperID string, questionNumber int) (json.RawMessage, error)
	FindPaperByYear(ctx context.Context, subject domain.Subject, year string) (json.RawMessage, error)
	FindPaperByID(ctx context.Context, subject domain.Subject, paperID string) (json.RawMessage, error)
}

// Adapter fetches and normalizes one subject's papers and questions,
// consulting the caches before the network.
type Adapter struct {
	client    APIClient
	strategy  Strategy
	papers    cache.PaperCache
	questions *cache.QuestionCache
	// sf collapses concurrent fetches of one question key so prefetch
	// never races a foreground fetch.
	sf singleflight.Group
}

func New(client APIClient, strategy Strategy, papers cache.PaperCache, questions *cache.QuestionCache) *Adapter {
	return &Adapter{
		client:    client,
		strategy:  strategy,
		papers:    papers,
		questions: questions,
	}
}

func (a *Adapter) Subject() domain.Subject {
	return a.strategy.Subject
}

// ListPapers returns the subject's papers, from cache unless forceRefresh.
// When the fetch fails, an expired cache entry beats an error.
func (a *Adapter) ListPapers(ctx context.Context, forceRefresh bool) ([]domain.Paper, error) {
	if !forceRefresh {
		if papers, ok := a.papers.Get(ctx, a.strategy.Subject); ok {
			return papers, nil
		}
	}

	raw, err := a.client.ListPapers(ctx, a.strategy.Subject)
	if err != nil {
		if stale, ok := a.papers.GetIgnoringExpiry(ctx, a.strategy.Subject); ok {
			log.Printf("%s papers fetch failed, serving stale cache: %v", a.strategy.Subject, err)
			return stale, nil
		}
		return nil, err
	}

	papers, err := backend.DecodePaperList(raw, a.strategy.Subject)
	if err != nil {
		return nil, err
	}
	a.papers.Put(ctx, a.strategy.Subject, papers)
	return papers, nil
}

// FetchQuestion returns one normalized question, from the question cache
// when useCache is set. Image links are rewritten before caching so every
// consumer sees the embeddable form.
func (a *Adapter) FetchQuestion(ctx context.Context, paperID string, questionNumber int, useCache bool) (domain.Question, error) {
	if useCache {
		if q, ok := a.questions.Get(a.strategy.Subject, paperID, questionNumber); ok {
			return q, nil
		}
	}

	key := paperID + ":" + strconv.Itoa(questionNumber)
	result, err, _ := a.sf.Do(key, func() (interface{}, error) {
		if useCache {
			if q, ok := a.questions.Get(a.strategy.Subject, paperID, questionNumber); ok {
				return q, nil
			}
		}
		raw, err := a.client.FindQuestion(ctx, paperID, questionNumber)
		if err != nil {
			return domain.Question{}, err
		}
		q, err := backend.DecodeQuestion(raw)
		if err != nil {
			return domain.Question{}, err
		}
		a.rewriteImages(&q)
		a.questions.Put(a.strategy.Subject, paperID, questionNumber, q)
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

// FetchPaperByYear resolves a paper on demand, for users who start practice
// without a prior listing fetch.
func (a *Adapter) FetchPaperByYear(ctx context.Context, year string) (domain.Paper, error) {
	raw, err := a.client.FindPaperByYear(ctx, a.strategy.Subject, year)
	if err != nil {
		return domain.Paper{}, err
	}
	return backend.DecodePaper(raw, a.strategy.Subject)
}

// FetchPaperByID fetches paper metadata directly.
func (a *Adapter) FetchPaperByID(ctx context.Context, paperID string) (domain.Paper, error) {
	raw, err := a.client.FindPaperByID(ctx, a.strategy.Subject, paperID)
	if err != nil {
		return domain.Paper{}, err
	}
	return backend.DecodePaper(raw, a.strategy.Subject)
}

// Prefetch warms the question cache in parallel. Individual failures are
// logged and swallowed; the batch itself never fails.
func (a *Adapter) Prefetch(ctx context.Context, paperID string, questionNumbers []int) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, num := range questionNumbers {
		num := num
		g.Go(func() error {
			if _, err := a.FetchQuestion(ctx, paperID, num, true); err != nil {
				log.Printf("prefetch %s q%d: %v", paperID, num, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// CacheStatus reports the subject's paper-list cache entry.
func (a *Adapter) CacheStatus(ctx context.Context) cache.Status {
	return a.papers.Status(ctx, a.strategy.Subject)
}

// ClearCache drops both the persistent paper-list entry and the in-memory
// questions for this subject.
func (a *Adapter) ClearCache(ctx context.Context) {
	a.papers.Clear(ctx, a.strategy.Subject)
	a.questions.ClearSubject(a.strategy.Subject)
}

func (a *Adapter) rewriteImages(q *domain.Question) {
	rewrite := a.strategy.RewriteImageURL
	if rewrite == nil {
		return
	}
	rewriteAll := func(urls []string) {
		for i, u := range urls {
			urls[i] = rewrite(u)
		}
	}
	switch q.Type {
	case domain.QuestionStandard:
		if q.Standard == nil {
			return
		}
		rewriteAll(q.Standard.Images)
		for i := range q.Standard.Options {
			if q.Standard.Options[i].Type == "image" && q.Standard.Options[i].URL != "" {
				q.Standard.Options[i].URL = rewrite(q.Standard.Options[i].URL)
			}
		}
	case domain.QuestionGrouped:
		if q.Grouped != nil {
			rewriteAll(q.Grouped.Images)
		}
	case domain.QuestionAssertionReason:
		if q.AssertionReason != nil {
			rewriteAll(q.AssertionReason.Images)
		}
	}
}

