package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-room-service/internal/domain"
)

func TestQuestionCacheCaches(t *testing.T) {
	loader := &countingLoader{QuestionLoader: NewQuestionBank(sampleQuestions())}
	cache := NewQuestionCache(loader, time.Minute)

	if _, err := cache.Fetch(context.Background(), domain.QuestionFilter{Pattern: domain.PatternMixed}, 2); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected loader once, got %d", loader.count())
	}

	if _, err := cache.Fetch(context.Background(), domain.QuestionFilter{Pattern: domain.PatternMixed}, 2); err != nil {
		t.Fatalf("fetch 2: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.count())
	}

	// different pattern is a different pool
	if _, err := cache.Fetch(context.Background(), domain.QuestionFilter{Pattern: domain.PatternDiagramOnly}, 2); err != nil {
		t.Fatalf("fetch diagram: %v", err)
	}
	if loader.count() != 2 {
		t.Fatalf("expected second load for new pattern, got %d", loader.count())
	}
}

func TestQuestionCacheExpires(t *testing.T) {
	loader := &countingLoader{QuestionLoader: NewQuestionBank(sampleQuestions())}
	cache := NewQuestionCache(loader, time.Minute)
	now := time.Now()
	cache.clock = func() time.Time { return now }

	filter := domain.QuestionFilter{Pattern: domain.PatternMixed}
	_, _ = cache.Fetch(context.Background(), filter, 1)
	now = now.Add(2 * time.Minute)
	_, _ = cache.Fetch(context.Background(), filter, 1)

	if loader.count() != 2 {
		t.Fatalf("expected reload after ttl, got %d loads", loader.count())
	}

	cache.Invalidate()
	_, _ = cache.Fetch(context.Background(), filter, 1)
	if loader.count() != 3 {
		t.Fatalf("expected reload after invalidate, got %d loads", loader.count())
	}
}

func TestQuestionCacheDoesNotCacheErrors(t *testing.T) {
	loader := &countingLoader{err: errors.New("db down")}
	cache := NewQuestionCache(loader, time.Minute)

	filter := domain.QuestionFilter{Pattern: domain.PatternMixed}
	if _, err := cache.Fetch(context.Background(), filter, 1); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := cache.Fetch(context.Background(), filter, 1); err == nil {
		t.Fatalf("expected error")
	}
	if loader.count() != 2 {
		t.Fatalf("errors must not be cached, got %d loads", loader.count())
	}
}

func TestQuestionBankFiltersByPattern(t *testing.T) {
	bank := NewQuestionBank(sampleQuestions())

	got, err := bank.Fetch(context.Background(), domain.QuestionFilter{Pattern: domain.PatternAssertionOnly}, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].Type != domain.TypeAssertionReason {
		t.Fatalf("expected only the assertion question, got %+v", got)
	}

	mixed, _ := bank.Fetch(context.Background(), domain.QuestionFilter{Pattern: domain.PatternMixed}, 2)
	if len(mixed) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(mixed))
	}
	if mixed[0].ID == mixed[1].ID {
		t.Fatalf("sample must not repeat questions: %+v", mixed)
	}

	none, _ := bank.Fetch(context.Background(), domain.QuestionFilter{Pattern: domain.PatternMixed}, 0)
	if len(none) != 0 {
		t.Fatalf("expected empty sample for count 0, got %d", len(none))
	}
}

type countingLoader struct {
	QuestionLoader
	err error

	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.QuestionLoader.LoadQuestions(ctx, filter)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Type: domain.TypeMCQ, Content: []byte(`{"text":"2 + 2?"}`), CorrectAnswer: domain.Answer(`"B"`)},
		{ID: "q2", Type: domain.TypeAssertionReason, Content: []byte(`{"assertion":"a","reason":"r"}`), CorrectAnswer: domain.Answer(`"A"`)},
		{ID: "q3", Type: domain.TypeDiagramBased, Content: []byte(`{"image":"cell.png"}`), CorrectAnswer: domain.Answer(`"C"`)},
		{ID: "q4", Type: domain.TypeMatchColumn, Content: []byte(`{"left":["x"],"right":["y"]}`), CorrectAnswer: domain.Answer(`{"0":"0"}`)},
	}
}
