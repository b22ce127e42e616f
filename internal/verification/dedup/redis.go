package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "kycverify/pkg/domain"
)

const keyPrefix = "kyc:dedup:"

// RedisGate claims a project's dedup window with SET NX PX.
type RedisGate struct {
	client redis.UniversalClient
}

func NewRedisGate(client redis.UniversalClient) *RedisGate {
	return &RedisGate{client: client}
}

func (g *RedisGate) Claim(ctx context.Context, projectID id.ProjectID, vid id.VerificationID, ttl time.Duration) (id.VerificationID, bool, error) {
	key := keyPrefix + projectID.String()
	ok, err := g.client.SetNX(ctx, key, vid.String(), ttl).Result()
	if err != nil {
		return id.VerificationID{}, false, fmt.Errorf("claim dedup window: %w", err)
	}
	if ok {
		return vid, true, nil
	}
	raw, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return id.VerificationID{}, false, nil
	}
	if err != nil {
		return id.VerificationID{}, false, fmt.Errorf("read dedup holder: %w", err)
	}
	holder, err := id.ParseVerificationID(raw)
	if err != nil {
		return id.VerificationID{}, false, fmt.Errorf("corrupt dedup holder %q: %w", raw, err)
	}
	return holder, false, nil
}
