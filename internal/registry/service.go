// Package registry keeps a queryable index of minted quizzes so listings
// don't require enumerating ledger objects.
package registry

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/errors"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/event"
)

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	s := &Service{db: c.DB}

	if c.EventBus != nil {
		c.EventBus.Subscribe(domain.EventNameQuizMinted, func(ctx context.Context, e event.Event) error {
			return s.Record(ctx, e.(domain.EventQuizMinted).Quiz)
		})
	}

	return s
}

// Record inserts the quiz row. Re-recording the same quiz id is a no-op, so
// replayed mint events are harmless.
func (s *Service) Record(ctx context.Context, rec domain.QuizRecord) error {
	const stmt = `
INSERT INTO quizzes (quiz_id, content_uri, owner, name, create_time)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (quiz_id) DO NOTHING;`

	_, err := s.db.Exec(ctx, stmt, rec.QuizID, rec.ContentURI, rec.Owner, rec.Name, time.UnixMilli(rec.CreateTime))
	if err != nil {
		return fmt.Errorf("registry: insert quiz %s: %w", rec.QuizID, err)
	}
	return nil
}

// List returns all recorded quizzes, newest first.
func (s *Service) List(ctx context.Context) ([]domain.QuizRecord, error) {
	const stmt = `
SELECT quiz_id, content_uri, owner, name, create_time
FROM quizzes
ORDER BY create_time DESC;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("registry: list quizzes: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("registry: collect quizzes: %w", err)
	}

	return records, nil
}

// Get returns a single recorded quiz.
func (s *Service) Get(ctx context.Context, quizID string) (domain.QuizRecord, error) {
	const stmt = `
SELECT quiz_id, content_uri, owner, name, create_time
FROM quizzes
WHERE quiz_id = $1;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return domain.QuizRecord{}, fmt.Errorf("registry: get quiz %s: %w", quizID, err)
	}

	rec, err := pgx.CollectOneRow(rows, scanRecord)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.QuizRecord{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("registry: quiz not found: %s", quizID),
			errors.WithCause(domain.ErrQuizNotFound))
	}
	if err != nil {
		return domain.QuizRecord{}, fmt.Errorf("registry: scan quiz %s: %w", quizID, err)
	}

	return rec, nil
}

func scanRecord(r pgx.CollectableRow) (domain.QuizRecord, error) {
	var (
		rec domain.QuizRecord
		ts  time.Time
	)
	if err := r.Scan(&rec.QuizID, &rec.ContentURI, &rec.Owner, &rec.Name, &ts); err != nil {
		return domain.QuizRecord{}, err
	}
	rec.CreateTime = ts.UnixMilli()
	return rec, nil
}
