//go:build integration

package dedup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycverify/internal/verification/dedup"
	id "kycverify/pkg/domain"
	"kycverify/pkg/testutil/containers"
)

type RedisGateSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	gate  *dedup.RedisGate
}

func TestRedisGateSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisGateSuite))
}

func (s *RedisGateSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.gate = dedup.NewRedisGate(s.redis.Client)
}

func (s *RedisGateSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisGateSuite) TestClaimAndExpire() {
	ctx := context.Background()
	project := id.NewProjectID()
	first, second := id.NewVerificationID(), id.NewVerificationID()

	holder, claimed, err := s.gate.Claim(ctx, project, first, 300*time.Millisecond)
	s.Require().NoError(err)
	s.True(claimed)
	s.Equal(first, holder)

	holder, claimed, err = s.gate.Claim(ctx, project, second, 300*time.Millisecond)
	s.Require().NoError(err)
	s.False(claimed)
	s.Equal(first, holder)

	s.Eventually(func() bool {
		_, claimed, err := s.gate.Claim(ctx, project, second, 300*time.Millisecond)
		return err == nil && claimed
	}, 2*time.Second, 50*time.Millisecond)
}

func (s *RedisGateSuite) TestProjectsAreIsolated() {
	ctx := context.Background()
	_, claimed, err := s.gate.Claim(ctx, id.NewProjectID(), id.NewVerificationID(), time.Second)
	s.Require().NoError(err)
	s.True(claimed)

	_, claimed, err = s.gate.Claim(ctx, id.NewProjectID(), id.NewVerificationID(), time.Second)
	s.Require().NoError(err)
	s.True(claimed)
}
