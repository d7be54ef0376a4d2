package app

import (
	"context"
	"sync"
	"time"

	"quiz-room-service/internal/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const maxRoomIDAttempts = 16

// RoomRegistry owns the lifecycle of active rooms. Its map lock only guards
// structural changes and is never held while a room lock is taken.
type RoomRegistry struct {
	source      QuestionSource
	broadcaster Broadcaster
	scheduler   Scheduler
	index       RoomIndex
	newID       func() string
	now         func() time.Time
	log         logrus.FieldLogger

	mu    sync.RWMutex
	rooms map[string]*Room
}

// RegistryOption customizes a RoomRegistry.
type RegistryOption func(*RoomRegistry)

// WithScheduler replaces the time.AfterFunc scheduler (tests use a manual one).
func WithScheduler(s Scheduler) RegistryOption {
	return func(r *RoomRegistry) { r.scheduler = s }
}

// WithRoomIndex mirrors room creation and removal into an external index.
func WithRoomIndex(idx RoomIndex) RegistryOption {
	return func(r *RoomRegistry) { r.index = idx }
}

// WithClock is test-only for deterministic creation times.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *RoomRegistry) { r.now = now }
}

// WithIDGenerator overrides room id allocation.
func WithIDGenerator(gen func() string) RegistryOption {
	return func(r *RoomRegistry) { r.newID = gen }
}

func WithLogger(log logrus.FieldLogger) RegistryOption {
	return func(r *RoomRegistry) { r.log = log }
}

func NewRoomRegistry(source QuestionSource, broadcaster Broadcaster, opts ...RegistryOption) *RoomRegistry {
	r := &RoomRegistry{
		source:      source,
		broadcaster: broadcaster,
		scheduler:   RealScheduler(),
		newID:       shortID,
		now:         time.Now,
		log:         logrus.StandardLogger(),
		rooms:       make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("component", "registry")
	return r
}

// shortID is the first 8 hex characters of a random UUID.
func shortID() string {
	return uuid.NewString()[:8]
}

// Create allocates a room in the waiting state and returns its id.
func (r *RoomRegistry) Create(ctx context.Context, hostID string, cfg domain.RoomConfig) (string, error) {
	r.mu.Lock()
	var room *Room
	for attempt := 0; attempt < maxRoomIDAttempts && room == nil; attempt++ {
		id := r.newID()
		if _, taken := r.rooms[id]; taken {
			continue
		}
		room = newRoom(id, hostID, cfg, r.now(), roomDeps{
			source:      r.source,
			broadcaster: r.broadcaster,
			scheduler:   r.scheduler,
			log:         r.log,
			onFinish:    r.Remove,
		})
		r.rooms[id] = room
	}
	r.mu.Unlock()

	if room == nil {
		return "", domain.ErrRoomIDExhausted
	}
	r.track(ctx, room)
	r.log.WithFields(logrus.Fields{"room_id": room.ID(), "host_id": hostID}).Info("room created")
	return room.ID(), nil
}

// Get looks a room up by id.
func (r *RoomRegistry) Get(roomID string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// Remove deletes a room; removing an unknown id is a no-op.
func (r *RoomRegistry) Remove(roomID string) {
	r.mu.Lock()
	_, ok := r.rooms[roomID]
	delete(r.rooms, roomID)
	r.mu.Unlock()
	if !ok {
		return
	}
	r.untrack(roomID)
	r.log.WithField("room_id", roomID).Debug("room removed")
}

func (r *RoomRegistry) track(ctx context.Context, room *Room) {
	if r.index == nil {
		return
	}
	if err := r.index.Track(ctx, room.ID(), room.HostID()); err != nil {
		r.log.WithError(err).WithField("room_id", room.ID()).Warn("room index track failed")
	}
}

func (r *RoomRegistry) untrack(roomID string) {
	if r.index == nil {
		return
	}
	if err := r.index.Untrack(context.Background(), roomID); err != nil {
		r.log.WithError(err).WithField("room_id", roomID).Warn("room index untrack failed")
	}
}

// Len returns the number of live rooms.
func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *RoomRegistry) snapshot() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.rooms)
}

// Reap evicts rooms that are still waiting idleTTL after creation and returns their ids.
// Surviving rooms are re-tracked so index entries outlive long games.
func (r *RoomRegistry) Reap(idleTTL time.Duration) []string {
	now := r.now()
	var evicted []string
	for _, room := range r.snapshot() {
		if room.expireIfIdle(now, idleTTL) {
			r.Remove(room.ID())
			evicted = append(evicted, room.ID())
			continue
		}
		r.refresh(room)
	}
	if len(evicted) > 0 {
		r.log.WithField("rooms", evicted).Info("reaped idle rooms")
	}
	return evicted
}

func (r *RoomRegistry) refresh(room *Room) {
	if r.index == nil {
		return
	}
	r.track(context.Background(), room)
	// the room may have finished between the snapshot and the refresh
	if _, err := r.Get(room.ID()); err != nil {
		r.untrack(room.ID())
	}
}

// RunReaper calls Reap every interval until ctx is done.
func (r *RoomRegistry) RunReaper(ctx context.Context, interval, idleTTL time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Reap(idleTTL)
		}
	}
}

// Close tears down every room: timers are cancelled before rooms leave the registry.
func (r *RoomRegistry) Close() {
	for _, room := range r.snapshot() {
		room.shutdown(domain.CloseReasonShutdown)
		r.Remove(room.ID())
	}
}
