package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("employee calendar lock not acquired")
)

// Locker serializes writes to one employee's calendar across API replicas.
type Locker interface {
	WithEmployeeLock(ctx context.Context, employeeID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisEmployeeLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisEmployeeLocker creates a locker that uses a per employee Redis key
func NewRedisEmployeeLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisEmployeeLocker{
		client: client,
		ttl:    ttl,
	}
}

func lockKey(employeeID uuid.UUID) string {
	return fmt.Sprintf("lock:employee:%s", employeeID.String())
}

func (l *redisEmployeeLocker) WithEmployeeLock(ctx context.Context, employeeID uuid.UUID, fn func(ctx context.Context) error) error {
	key := lockKey(employeeID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire employee lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		// release on a fresh context so a cancelled request still frees the key
		relCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.release(relCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisEmployeeLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release employee lock: %w", err)
	}
	return nil
}

// WithEmployeeLocks takes the locks for several employees in a stable order,
// for operations that move bookings between calendars.
func WithEmployeeLocks(ctx context.Context, l Locker, ids []uuid.UUID, fn func(ctx context.Context) error) error {
	seen := make(map[uuid.UUID]bool, len(ids))
	ordered := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, id)
	}
	sortIDs(ordered)

	var run func(ctx context.Context, i int) error
	run = func(ctx context.Context, i int) error {
		if i == len(ordered) {
			return fn(ctx)
		}
		return l.WithEmployeeLock(ctx, ordered[i], func(ctx context.Context) error {
			return run(ctx, i+1)
		})
	}
	return run(ctx, 0)
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

// NopLocker runs fn without any locking. Used where Redis is not wired,
// the database exclusion constraint still guards the calendar.
type NopLocker struct{}

func (NopLocker) WithEmployeeLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
