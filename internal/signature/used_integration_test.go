//go:build integration

package signature_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"passport/internal/chain"
	"passport/internal/signature"
	"passport/pkg/platform/sentinel"
	"passport/pkg/testutil/containers"
)

type RedisUsedSetSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	set   *signature.RedisUsedSet
}

func TestRedisUsedSetSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisUsedSetSuite))
}

func (s *RedisUsedSetSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.set = signature.NewRedisUsedSet(s.redis.Client)
}

func (s *RedisUsedSetSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisUsedSetSuite) TestMarkUsedOnce() {
	ctx := context.Background()
	digest := common.HexToHash("0xabc")

	s.Require().NoError(s.set.MarkUsed(ctx, digest))
	s.ErrorIs(s.set.MarkUsed(ctx, digest), sentinel.ErrAlreadyUsed)

	used, err := s.set.IsUsed(ctx, digest)
	s.Require().NoError(err)
	s.True(used)
}

func (s *RedisUsedSetSuite) TestFailedCallDeletesMark() {
	ctx := context.Background()
	digest := common.HexToHash("0xdef")
	env := chain.New()

	err := env.Execute(ctx, "write", func(ctx context.Context) error {
		s.Require().NoError(s.set.MarkUsed(ctx, digest))
		return errors.New("abort")
	})
	s.Error(err)

	used, err := s.set.IsUsed(ctx, digest)
	s.Require().NoError(err)
	s.False(used)
}
