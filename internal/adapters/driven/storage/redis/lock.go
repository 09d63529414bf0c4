package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// errLockHeld signals that another holder owns the session lock.
var errLockHeld = errors.New("session lock held")

// releaseScript deletes the lock only if it still carries our token, so an
// expired lock taken over by another replica is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockSession takes the session lock with SET NX PX, retrying until it is
// free or ctx is done. The lock expires after the configured TTL if the
// holder never releases it.
func (s *Store) LockSession(ctx context.Context, sessionID string) (func(), error) {
	key := s.lockKey(sessionID)
	token := uuid.NewString()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.lockRetry
	policy.MaxInterval = 20 * s.lockRetry
	policy.MaxElapsedTime = 0

	op := func() error {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquiring session lock: %w", err))
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	return func() {
		// The caller's context may already be cancelled; release regardless.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, s.client, []string{key}, token).Err()
	}, nil
}
