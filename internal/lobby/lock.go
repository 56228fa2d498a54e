package lobby

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Lock elects one process per daily event.
type Lock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisLock takes keys with SET NX. Keys are never released; they expire with their TTL.
type RedisLock struct {
	client *redis.Client
	owner  string
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client, owner: uuid.NewString()}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}
	return ok, nil
}

// EventKey is the lock key of the event held on day, in loc.
func EventKey(day time.Time, loc *time.Location) string {
	return "lobby:event:" + day.In(loc).Format("2006-01-02")
}
