package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RoomIndex marks room liveness in Redis so operators (or other instances) can see
// which rooms exist. Rooms themselves stay in process memory.
//
//	SET quiz:room:{roomID} {hostID} EX ttl
type RoomIndex struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomIndex(client *redis.Client, ttl time.Duration) *RoomIndex {
	return &RoomIndex{
		client: client,
		ttl:    ttl,
	}
}

func (i *RoomIndex) Track(ctx context.Context, roomID, hostID string) error {
	return i.client.Set(ctx, i.key(roomID), hostID, i.ttl).Err()
}

func (i *RoomIndex) Untrack(ctx context.Context, roomID string) error {
	return i.client.Del(ctx, i.key(roomID)).Err()
}

// Host returns the host recorded for a live room.
func (i *RoomIndex) Host(ctx context.Context, roomID string) (string, bool, error) {
	host, err := i.client.Get(ctx, i.key(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return host, true, nil
}

func (i *RoomIndex) key(roomID string) string {
	return "quiz:room:" + roomID
}
