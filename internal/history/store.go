// Package history persists locally scored attempts. Records are append-only
// and immutable; nothing deletes them short of an explicit clear.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"exam-practice-service/internal/domain"
)

// Store is the SQLite-backed attempt log.
type Store struct {
	db *sqlx.DB
}

// Open connects to (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open attempt store: %w", err)
	}
	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL,
			paper_year INTEGER NOT NULL,
			date TIMESTAMP NOT NULL,
			score INTEGER NOT NULL,
			total_questions INTEGER NOT NULL,
			percentage REAL NOT NULL,
			time_taken INTEGER NOT NULL,
			answers TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create attempts table: %w", err)
	}
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS onboarding (
			user_id TEXT PRIMARY KEY,
			completed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create onboarding table: %w", err)
	}
	return nil
}

type attemptRow struct {
	ID             string  `db:"id"`
	PaperID        string  `db:"paper_id"`
	PaperYear      int     `db:"paper_year"`
	Date           string  `db:"date"`
	Score          int     `db:"score"`
	TotalQuestions int     `db:"total_questions"`
	Percentage     float64 `db:"percentage"`
	TimeTaken      int     `db:"time_taken"`
	Answers        string  `db:"answers"`
}

func (r attemptRow) toRecord() (domain.AttemptRecord, error) {
	rec := domain.AttemptRecord{
		ID:             r.ID,
		PaperID:        r.PaperID,
		PaperYear:      r.PaperYear,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		Percentage:     r.Percentage,
		TimeTakenSecs:  r.TimeTaken,
	}
	if err := json.Unmarshal([]byte(r.Answers), &rec.Answers); err != nil {
		return rec, fmt.Errorf("decode answers for attempt %s: %w", r.ID, err)
	}
	if t, err := parseTimestamp(r.Date); err == nil {
		rec.Date = t
	}
	return rec, nil
}

// Append inserts one attempt record.
func (s *Store) Append(ctx context.Context, rec domain.AttemptRecord) error {
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attempts (
			id, paper_id, paper_year, date, score,
			total_questions, percentage, time_taken, answers
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PaperID, rec.PaperYear, rec.Date.UTC().Format(timeLayout),
		rec.Score, rec.TotalQuestions, rec.Percentage, rec.TimeTakenSecs, string(answers),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// List returns every attempt, newest first.
func (s *Store) List(ctx context.Context) ([]domain.AttemptRecord, error) {
	var rows []attemptRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM attempts ORDER BY date DESC`); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return rowsToRecords(rows)
}

// ByPaper returns attempts for one paper, newest first.
func (s *Store) ByPaper(ctx context.Context, paperID string) ([]domain.AttemptRecord, error) {
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM attempts WHERE paper_id = ? ORDER BY date DESC`, paperID)
	if err != nil {
		return nil, fmt.Errorf("attempts by paper: %w", err)
	}
	return rowsToRecords(rows)
}

// Get fetches one attempt by ID.
func (s *Store) Get(ctx context.Context, id string) (domain.AttemptRecord, error) {
	var row attemptRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM attempts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AttemptRecord{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("get attempt: %w", err)
	}
	return row.toRecord()
}

// PaperStats summarises past attempts at one paper.
type PaperStats struct {
	Attempts          int     `json:"attempts"`
	BestScore         int     `json:"best_score"`
	BestPercentage    float64 `json:"best_percentage"`
	AveragePercentage float64 `json:"average_percentage"`
}

// StatsByPaper aggregates best and average results for one paper.
// A paper with no attempts yields zeroed stats, not an error.
func (s *Store) StatsByPaper(ctx context.Context, paperID string) (PaperStats, error) {
	var stats PaperStats
	err := s.db.GetContext(ctx, &stats.Attempts,
		`SELECT COUNT(*) FROM attempts WHERE paper_id = ?`, paperID)
	if err != nil {
		return PaperStats{}, fmt.Errorf("count attempts: %w", err)
	}
	if stats.Attempts == 0 {
		return stats, nil
	}
	row := s.db.QueryRowxContext(ctx, `
		SELECT MAX(score), MAX(percentage), AVG(percentage)
		FROM attempts WHERE paper_id = ?`, paperID)
	if err := row.Scan(&stats.BestScore, &stats.BestPercentage, &stats.AveragePercentage); err != nil {
		return PaperStats{}, fmt.Errorf("aggregate attempts: %w", err)
	}
	return stats, nil
}

// Clear drops the whole log. Only an explicit cache-clear reaches this.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM attempts`); err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}
	return nil
}

// MarkOnboarded records that a user has completed the one-time onboarding
// prompt, so it is never shown to them again.
func (s *Store) MarkOnboarded(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO onboarding (user_id) VALUES (?)`, userID)
	if err != nil {
		return fmt.Errorf("mark onboarded: %w", err)
	}
	return nil
}

// IsOnboarded reports whether the onboarding flag is set for a user.
func (s *Store) IsOnboarded(ctx context.Context, userID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM onboarding WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("check onboarded: %w", err)
	}
	return count > 0, nil
}

func rowsToRecords(rows []attemptRow) ([]domain.AttemptRecord, error) {
	records := make([]domain.AttemptRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
