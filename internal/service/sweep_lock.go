package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrSweepInProgress means another sweep currently holds the lease.
var ErrSweepInProgress = errors.New("a generation sweep is already in progress")

const sweepLockKey = "fieldtask:generation:sweep-lock"

// releaseScript deletes the lock only when it still holds our token, so an
// expired lease taken over by another sweep is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// SweepLock is a short-TTL redis lease that keeps overlapping trigger
// invocations (cron jitter, manual re-runs) from sweeping concurrently. The
// schedule advance stays CAS-guarded regardless, so the lease is an
// optimization, not the correctness boundary.
type SweepLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSweepLock(client *redis.Client, ttl time.Duration) *SweepLock {
	return &SweepLock{client: client, ttl: ttl}
}

// Acquire takes the lease. Returns ErrSweepInProgress when it is held
// elsewhere; the returned release func is safe to call exactly once.
func (l *SweepLock) Acquire(ctx context.Context) (release func(), err error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, sweepLockKey, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSweepInProgress
	}
	return func() {
		// Release on a fresh context: the sweep's context may already be
		// done when we get here.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{sweepLockKey}, token).Err()
	}, nil
}
