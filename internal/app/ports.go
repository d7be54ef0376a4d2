package app

import (
	"context"
	"time"

	"quiz-room-service/internal/domain"
)

// QuestionSource supplies questions for a room (Postgres, cache, static bank).
type QuestionSource interface {
	Fetch(ctx context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error)
}

// Broadcaster pushes events to subscribers of a topic. Publish is fire-and-forget:
// implementations absorb delivery failures and must be safe for concurrent use.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, event domain.Event)
}

// RoomIndex mirrors which rooms exist into an external store (e.g. Redis liveness keys).
type RoomIndex interface {
	Track(ctx context.Context, roomID, hostID string) error
	Untrack(ctx context.Context, roomID string) error
}

// Timer is a handle to a scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs callbacks after a delay without blocking the caller.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler is backed by time.AfterFunc.
func RealScheduler() Scheduler {
	return realScheduler{}
}
