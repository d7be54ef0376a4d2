package cli

import (
	"context"
	"testing"
	"time"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/config"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
	redisinfra "quiz-room-service/internal/infra/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestQuestionSourceWithoutTTLSamplesStoreDirectly(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	store := memory.NewQuestionBank(sampleQuestions())

	source := questionSource(store, 0, nil, logger)
	if source != app.QuestionSource(store) {
		t.Fatalf("expected the store itself when caching is disabled, got %T", source)
	}
	got, err := source.Fetch(context.Background(), domain.QuestionFilter{Pattern: domain.PatternAssertionOnly}, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].Type != domain.TypeAssertionReason {
		t.Fatalf("expected the single assertion question, got %+v", got)
	}
}

func TestQuestionSourcePicksCache(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	store := memory.NewQuestionBank(sampleQuestions())

	if source := questionSource(store, time.Minute, nil, logger); source == nil {
		t.Fatalf("expected a cache")
	} else if _, ok := source.(*memory.QuestionCache); !ok {
		t.Fatalf("expected in-memory cache without redis, got %T", source)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	if _, ok := questionSource(store, time.Minute, client, logger).(*redisinfra.QuestionCache); !ok {
		t.Fatalf("expected redis cache when a client is configured")
	}
}

func TestQuestionLoaderFallsBackToSampleBank(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	store, err := questionLoader(config.QuestionsConfig{}, nil, logger)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	all, err := store.LoadQuestions(context.Background(), domain.QuestionFilter{Pattern: domain.PatternMixed})
	if err != nil || len(all) != len(sampleQuestions()) {
		t.Fatalf("expected the built-in bank, got %d questions err=%v", len(all), err)
	}
	if hook.LastEntry() == nil {
		t.Fatalf("expected a warning about the built-in bank")
	}
}

func TestRoomDefaultsRejectsInvalidOverrides(t *testing.T) {
	defaults, err := roomDefaults(config.RoomConfig{DefaultQuestionCount: 5})
	if err != nil {
		t.Fatalf("roomDefaults: %v", err)
	}
	if defaults.QuestionCount != 5 || defaults.TimePerQuestion != app.DefaultRoomConfig.TimePerQuestion {
		t.Fatalf("unexpected defaults %+v", defaults)
	}
	if _, err := roomDefaults(config.RoomConfig{DefaultTimePerQuestion: -1}); err == nil {
		t.Fatalf("expected negative time per question to be rejected")
	}
}
