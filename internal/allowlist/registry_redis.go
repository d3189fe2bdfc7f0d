package allowlist

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"passport/pkg/platform/sentinel"
)

// Redis key prefix for registry entries. NONE is stored as an absent key.
const statusKeyPrefix = "allowlist:status:"

// setStatusScript refuses to overwrite ADMIN with anything else.
var setStatusScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == 'ADMIN' and ARGV[1] ~= 'ADMIN' then
	return 0
end
if ARGV[1] == 'NONE' then
	redis.call('DEL', KEYS[1])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// removeAdminScript demotes KEYS[2] when KEYS[1] holds ADMIN.
var removeAdminScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= 'ADMIN' then
	return 0
end
redis.call('DEL', KEYS[2])
return 1
`)

// RedisRegistry shares the allow-list across instances.
type RedisRegistry struct {
	client redis.Cmdable
}

func NewRedisRegistry(client redis.Cmdable) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func statusKey(account common.Address) string {
	return statusKeyPrefix + account.Hex()
}

func (r *RedisRegistry) Status(ctx context.Context, account common.Address) (Status, error) {
	v, err := r.client.Get(ctx, statusKey(account)).Result()
	if errors.Is(err, redis.Nil) {
		return StatusNone, nil
	}
	if err != nil {
		return "", errors.Join(sentinel.ErrUnavailable, err)
	}
	return Status(v), nil
}

func (r *RedisRegistry) SetStatus(ctx context.Context, account common.Address, status Status) error {
	if !status.IsValid() {
		return ErrInvalidStatus
	}
	ok, err := setStatusScript.Run(ctx, r.client, []string{statusKey(account)}, string(status)).Int()
	if err != nil {
		return errors.Join(sentinel.ErrUnavailable, err)
	}
	if ok == 0 {
		return ErrProtectedStatus
	}
	return nil
}

func (r *RedisRegistry) RemoveAdmin(ctx context.Context, caller, account common.Address) error {
	if caller == account {
		return ErrCannotRevokeOwnAdmin
	}
	ok, err := removeAdminScript.Run(ctx, r.client, []string{statusKey(caller), statusKey(account)}).Int()
	if err != nil {
		return errors.Join(sentinel.ErrUnavailable, err)
	}
	if ok == 0 {
		return ErrNotAdmin
	}
	return nil
}
