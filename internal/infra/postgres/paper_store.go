// Package postgres loads curated demo papers from a JSONB table, replacing
// the generated set on deployments that maintain their own local paper data.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"exam-practice-service/internal/domain"
	"exam-practice-service/internal/infra/memory"
)

// PaperStore reads demo papers and their answer keys from Postgres.
type PaperStore struct {
	pool *pgxpool.Pool
}

func NewPaperStore(pool *pgxpool.Pool) *PaperStore {
	return &PaperStore{pool: pool}
}

// LoadSet reads every stored paper into a DemoPaperSet.
func (s *PaperStore) LoadSet(ctx context.Context) (*memory.DemoPaperSet, error) {
	rows, err := s.pool.Query(ctx, `SELECT paper, answer_key FROM demo_papers`)
	if err != nil {
		return nil, fmt.Errorf("load demo papers: %w", err)
	}
	defer rows.Close()

	var papers []domain.Paper
	keys := make(map[string][]int)
	for rows.Next() {
		var rawPaper, rawKey []byte
		if err := rows.Scan(&rawPaper, &rawKey); err != nil {
			return nil, fmt.Errorf("scan demo paper: %w", err)
		}
		var paper domain.Paper
		if err := json.Unmarshal(rawPaper, &paper); err != nil {
			return nil, fmt.Errorf("unmarshal demo paper: %w", err)
		}
		var key []int
		if err := json.Unmarshal(rawKey, &key); err != nil {
			return nil, fmt.Errorf("unmarshal answer key for %s: %w", paper.ID, err)
		}
		papers = append(papers, paper)
		keys[paper.ID] = key
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate demo papers: %w", err)
	}
	if len(papers) == 0 {
		return nil, domain.ErrPaperNotFound
	}
	return memory.NewDemoPaperSetFrom(papers, keys), nil
}
