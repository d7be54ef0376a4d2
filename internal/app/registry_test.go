package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestRemoveIsIdempotent(t *testing.T) {
	f := newFixture(sampleQuestions(1))

	roomID, err := f.registry.Create(context.Background(), "host", app.DefaultRoomConfig)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.registry.Remove(roomID)
	f.registry.Remove(roomID)
	f.registry.Remove("never-existed")

	if _, err := f.registry.Get(roomID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected not found after remove, got %v", err)
	}
	if f.registry.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", f.registry.Len())
	}
}

func TestCreateAllocatesDistinctShortIDs(t *testing.T) {
	f := newFixture(nil)

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		id, err := f.registry.Create(context.Background(), "host", app.DefaultRoomConfig)
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if len(id) != 8 {
			t.Fatalf("expected 8 character id, got %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestCreateFailsWhenIDSpaceIsExhausted(t *testing.T) {
	f := newFixture(nil, app.WithIDGenerator(func() string { return "same-id" }))

	if _, err := f.registry.Create(context.Background(), "host", app.DefaultRoomConfig); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := f.registry.Create(context.Background(), "host", app.DefaultRoomConfig); !errors.Is(err, domain.ErrRoomIDExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
}

func TestReapEvictsOnlyIdleWaitingRooms(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	logger, hook := logtest.NewNullLogger()
	f := newFixture(sampleQuestions(2), app.WithClock(clock), app.WithLogger(logger))

	idle, _ := f.driver.CreateRoom(ctx, "host", domain.RoomConfig{QuestionCount: 2, TimePerQuestion: 5})
	playing, _ := f.driver.CreateRoom(ctx, "host", domain.RoomConfig{QuestionCount: 2, TimePerQuestion: 5})
	_ = f.driver.StartRoom(ctx, playing, "host")

	if evicted := f.registry.Reap(30 * time.Minute); len(evicted) != 0 {
		t.Fatalf("nothing should be reaped yet, got %v", evicted)
	}

	clockMu.Lock()
	now = now.Add(31 * time.Minute)
	clockMu.Unlock()

	evicted := f.registry.Reap(30 * time.Minute)
	if len(evicted) != 1 || evicted[0] != idle {
		t.Fatalf("expected only %s reaped, got %v", idle, evicted)
	}
	if _, err := f.registry.Get(idle); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected idle room removed, got %v", err)
	}
	if _, err := f.registry.Get(playing); err != nil {
		t.Fatalf("playing room must survive reaping: %v", err)
	}
	closed := f.broadcaster.onTopic(domain.RoomTopic(idle))
	if len(closed) != 1 || closed[0].Type != domain.EventRoomClosed {
		t.Fatalf("expected room_closed for idle room, got %+v", closed)
	}

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "reaped idle rooms" && entry.Level == logrus.InfoLevel {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected reap to be logged")
	}
}

func TestRunReaperStopsWithContext(t *testing.T) {
	f := newFixture(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.registry.RunReaper(ctx, time.Millisecond, time.Hour)
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("reaper did not stop")
	}
}

type recordingIndex struct {
	mu      sync.Mutex
	tracked map[string]string
	tracks  int
	fail    bool
}

func (i *recordingIndex) trackCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.tracks
}

func (i *recordingIndex) Track(_ context.Context, roomID, hostID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.tracks++
	if i.fail {
		return fmt.Errorf("index unavailable")
	}
	i.tracked[roomID] = hostID
	return nil
}

func (i *recordingIndex) Untrack(_ context.Context, roomID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.tracked, roomID)
	return nil
}

func TestRegistryMirrorsRoomsIntoIndex(t *testing.T) {
	ctx := context.Background()
	idx := &recordingIndex{tracked: make(map[string]string)}
	f := newFixture(sampleQuestions(1), app.WithRoomIndex(idx))

	roomID, _ := f.driver.CreateRoom(ctx, "host", domain.RoomConfig{QuestionCount: 1, TimePerQuestion: 5})
	if idx.tracked[roomID] != "host" {
		t.Fatalf("expected room tracked, got %+v", idx.tracked)
	}

	_ = f.driver.StartRoom(ctx, roomID, "host")
	f.scheduler.fire()
	if _, ok := idx.tracked[roomID]; ok {
		t.Fatalf("expected room untracked after game over")
	}
}

func TestReapRefreshesIndexForLiveRooms(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	idx := &recordingIndex{tracked: make(map[string]string)}
	f := newFixture(sampleQuestions(2), app.WithRoomIndex(idx), app.WithClock(clock))

	idle, _ := f.driver.CreateRoom(ctx, "host", domain.RoomConfig{QuestionCount: 2, TimePerQuestion: 5})
	playing, _ := f.driver.CreateRoom(ctx, "host", domain.RoomConfig{QuestionCount: 2, TimePerQuestion: 5})
	_ = f.driver.StartRoom(ctx, playing, "host")
	if got := idx.trackCount(); got != 2 {
		t.Fatalf("expected 2 tracks after create, got %d", got)
	}

	f.registry.Reap(30 * time.Minute)
	if got := idx.trackCount(); got != 4 {
		t.Fatalf("expected both live rooms refreshed, got %d tracks", got)
	}

	clockMu.Lock()
	now = now.Add(31 * time.Minute)
	clockMu.Unlock()

	f.registry.Reap(30 * time.Minute)
	if got := idx.trackCount(); got != 5 {
		t.Fatalf("expected only the playing room refreshed, got %d tracks", got)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.tracked[idle]; ok {
		t.Fatalf("reaped room %s must leave the index", idle)
	}
	if idx.tracked[playing] != "host" {
		t.Fatalf("playing room %s must stay indexed, got %+v", playing, idx.tracked)
	}
}

func TestIndexFailureDoesNotFailCreate(t *testing.T) {
	idx := &recordingIndex{tracked: make(map[string]string), fail: true}
	f := newFixture(nil, app.WithRoomIndex(idx))

	if _, err := f.registry.Create(context.Background(), "host", app.DefaultRoomConfig); err != nil {
		t.Fatalf("index failure must be absorbed, got %v", err)
	}
}

func TestCreateRoomAppliesDefaultsAndValidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	roomID, err := f.driver.CreateRoom(ctx, "host", domain.RoomConfig{})
	if err != nil {
		t.Fatalf("create with defaults failed: %v", err)
	}
	view, _ := f.driver.RoomView(ctx, roomID)
	if view.Config != app.DefaultRoomConfig {
		t.Fatalf("expected default config, got %+v", view.Config)
	}

	invalid := []domain.RoomConfig{
		{QuestionCount: -1},
		{TimePerQuestion: -5},
		{Pattern: "everything"},
	}
	for _, cfg := range invalid {
		_, err := f.driver.CreateRoom(ctx, "host", cfg)
		if !errors.Is(err, domain.ErrInvalidRoomConfig) {
			t.Fatalf("expected invalid config for %+v, got %v", cfg, err)
		}
		if app.ErrorCode(err) != app.CodeInvalidConfig {
			t.Fatalf("expected INVALID_CONFIG code, got %s", app.ErrorCode(err))
		}
	}
	if _, err := f.driver.CreateRoom(ctx, "", domain.RoomConfig{}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected host id to be required, got %v", err)
	}
}

func TestErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{domain.ErrRoomNotFound, app.CodeRoomNotFound},
		{domain.ErrRoomNotJoinable, app.CodeRoomNotJoinable},
		{domain.ErrForbidden, app.CodeForbidden},
		{domain.ErrRoomAlreadyStarted, app.CodeRoomAlreadyStarted},
		{domain.ErrParticipantNotFound, app.CodeParticipantNotFound},
		{fmt.Errorf("wrap: %w", domain.ErrRoomNotFound), app.CodeRoomNotFound},
		{domain.ErrInvalidRequest, app.CodeBadRequest},
		{domain.ErrRoomIDExhausted, app.CodeInternal},
	}
	for _, tc := range cases {
		if got := app.ErrorCode(tc.err); got != tc.want {
			t.Fatalf("ErrorCode(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestJoinRoomRequiresParticipantID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	roomID, _ := f.driver.CreateRoom(ctx, "host", app.DefaultRoomConfig)

	_, err := f.driver.JoinRoom(ctx, roomID, domain.Participant{Name: "nameless"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if app.ErrorCode(err) != app.CodeBadRequest {
		t.Fatalf("expected BAD_REQUEST code, got %s", app.ErrorCode(err))
	}
	view, _ := f.driver.RoomView(ctx, roomID)
	if len(view.Participants) != 0 {
		t.Fatalf("rejected join must not add a participant, got %+v", view.Participants)
	}
}
