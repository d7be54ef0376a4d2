package redis

import (
	"context"
	"sync"
	"testing"

	"quiz-room-service/internal/domain"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

type countingLoader struct {
	questions []domain.Question
	err       error

	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadQuestions(_ context.Context, _ domain.QuestionFilter) ([]domain.Question, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.questions, nil
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Type: domain.TypeMCQ, Content: []byte(`{"text":"2 + 2?"}`), CorrectAnswer: domain.Answer(`"B"`)},
		{ID: "q2", Type: domain.TypeMatchColumn, Content: []byte(`{"left":["a","b"]}`), CorrectAnswer: domain.Answer(`{"0":"1","1":"0"}`)},
	}
}
