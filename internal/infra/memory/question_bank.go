package memory

import (
	"context"

	"quiz-room-service/internal/domain"

	"github.com/samber/lo"
)

// QuestionLoader returns the full candidate pool for a filter from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error)
}

// QuestionBank is a static question source backed by a slice (useful for tests/demos).
type QuestionBank struct {
	questions []domain.Question
}

func NewQuestionBank(questions []domain.Question) *QuestionBank {
	return &QuestionBank{questions: questions}
}

// LoadQuestions returns every question whose type matches the filter.
func (b *QuestionBank) LoadQuestions(_ context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	types := filter.Types()
	if len(types) == 0 {
		return append([]domain.Question(nil), b.questions...), nil
	}
	return lo.Filter(b.questions, func(q domain.Question, _ int) bool {
		return lo.Contains(types, q.Type)
	}), nil
}

// Fetch returns up to count random questions matching the filter.
func (b *QuestionBank) Fetch(ctx context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error) {
	pool, err := b.LoadQuestions(ctx, filter)
	if err != nil {
		return nil, err
	}
	return Sample(pool, count), nil
}

// Sample picks up to count distinct questions in random order.
func Sample(pool []domain.Question, count int) []domain.Question {
	if count <= 0 || len(pool) == 0 {
		return nil
	}
	return lo.Samples(pool, count)
}
