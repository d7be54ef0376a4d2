package postgres

import (
	"context"
	"fmt"

	"quiz-room-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const selectQuestions = `SELECT id::text, type, level, COALESCE(topic_tag, ''), content, correct_answer, COALESCE(explanation, '') FROM questions`

// QuestionSource loads questions (JSONB content and answers) from Postgres.
type QuestionSource struct {
	pool *pgxpool.Pool
}

func NewQuestionSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool}
}

// Fetch draws up to count random questions matching the filter.
func (s *QuestionSource) Fetch(ctx context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error) {
	if count <= 0 {
		return nil, nil
	}
	var (
		rows pgx.Rows
		err  error
	)
	if types := filter.Types(); len(types) > 0 {
		rows, err = s.pool.Query(ctx, selectQuestions+` WHERE type = ANY($1) ORDER BY RANDOM() LIMIT $2`, types, count)
	} else {
		rows, err = s.pool.Query(ctx, selectQuestions+` ORDER BY RANDOM() LIMIT $1`, count)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	return scanQuestions(rows)
}

// LoadQuestions returns the full candidate pool for the filter; used behind the caches.
func (s *QuestionSource) LoadQuestions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if types := filter.Types(); len(types) > 0 {
		rows, err = s.pool.Query(ctx, selectQuestions+` WHERE type = ANY($1)`, types)
	} else {
		rows, err = s.pool.Query(ctx, selectQuestions)
	}
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return scanQuestions(rows)
}

func scanQuestions(rows pgx.Rows) ([]domain.Question, error) {
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var (
			q       domain.Question
			content []byte
			answer  []byte
		)
		if err := rows.Scan(&q.ID, &q.Type, &q.Level, &q.TopicTag, &content, &answer, &q.Explanation); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Content = content
		q.CorrectAnswer = domain.Answer(answer)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return out, nil
}
