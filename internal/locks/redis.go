package locks

import (
	"context"
	"time"

	"github.com/go-redis/redis"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

const (
	redisLockPrefix     = "secureimage:lock:"
	redisLockRetryDelay = 250 * time.Millisecond
)

// unlockScript deletes the lock only if it is still held by the caller.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// redisClient is the subset of *redis.Client used by the locker.
type redisClient interface {
	SetNX(key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(script string, keys []string, args ...interface{}) *redis.Cmd
	EvalSha(sha1 string, keys []string, args ...interface{}) *redis.Cmd
	ScriptExists(hashes ...string) *redis.BoolSliceCmd
	ScriptLoad(script string) *redis.StringCmd
}

type redisLocker struct {
	client redisClient
	ttl    time.Duration
}

// NewRedisLocker returns a Locker that coordinates processes across hosts
// using Redis keys that expire after ttl so that a crashed holder cannot
// block others forever.
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
	}
}

func (r *redisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := redisLockPrefix + safeKey(key)
	token := uuid.NewV4().String()
	for {
		ok, err := r.client.SetNX(redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "error obtaining redis lock %s", redisKey)
		}
		if ok {
			break
		}
		select {
		case <-time.After(redisLockRetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return func() {
		if err := unlockScript.Run(r.client, []string{redisKey}, token).Err(); err != nil {
			glog.Errorf("error releasing redis lock %s: %s", redisKey, err)
		}
	}, nil
}
