package signature

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"passport/internal/chain"
	"passport/pkg/platform/sentinel"
)

//go:generate mockgen -source=used.go -destination=mocks/mocks.go -package=mocks UsedSet

// UsedSet remembers consumed signed digests.
type UsedSet interface {
	IsUsed(ctx context.Context, digest common.Hash) (bool, error)
	// MarkUsed records digest or returns sentinel.ErrAlreadyUsed. The mark is
	// journaled and disappears when the active call fails.
	MarkUsed(ctx context.Context, digest common.Hash) error
}

// MemoryUsedSet is the in-process UsedSet.
type MemoryUsedSet struct {
	mu   sync.RWMutex
	used map[common.Hash]struct{}
}

func NewMemoryUsedSet() *MemoryUsedSet {
	return &MemoryUsedSet{used: make(map[common.Hash]struct{})}
}

func (s *MemoryUsedSet) IsUsed(_ context.Context, digest common.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.used[digest]
	return ok, nil
}

func (s *MemoryUsedSet) MarkUsed(ctx context.Context, digest common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.used[digest]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.used[digest] = struct{}{}
	chain.Record(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.used, digest)
	})
	return nil
}

// Redis key prefix for consumed signatures
const usedSignatureKeyPrefix = "sig:used:"

// RedisUsedSet shares consumed digests across instances with SETNX.
type RedisUsedSet struct {
	client redis.Cmdable
}

func NewRedisUsedSet(client redis.Cmdable) *RedisUsedSet {
	return &RedisUsedSet{client: client}
}

func (s *RedisUsedSet) IsUsed(ctx context.Context, digest common.Hash) (bool, error) {
	_, err := s.client.Get(ctx, usedSignatureKeyPrefix+digest.Hex()).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisUsedSet) MarkUsed(ctx context.Context, digest common.Hash) error {
	key := usedSignatureKeyPrefix + digest.Hex()
	ok, err := s.client.SetNX(ctx, key, "1", 0).Result()
	if err != nil {
		return errors.Join(sentinel.ErrUnavailable, err)
	}
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	chain.Record(ctx, func() {
		_ = s.client.Del(context.WithoutCancel(ctx), key).Err()
	})
	return nil
}
