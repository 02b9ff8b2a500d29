package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/qrmenu/menu-relay/stepup"
	"github.com/redis/go-redis/v9"
)

var _ stepup.Store = (*Store)(nil)

const keyPrefix = "stepup:challenge:"

// attemptScript runs one verification attempt atomically.
//
// KEYS[1] challenge hash
// ARGV[1] code hash, ARGV[2] now (unix ms), ARGV[3] max attempts
var attemptScript = redis.NewScript(`
local c = redis.call('HMGET', KEYS[1], 'code_hash', 'expires_at', 'attempts', 'locked')
if not c[1] then
	return 'not_found'
end
if c[4] == '1' then
	return 'locked'
end
if tonumber(ARGV[2]) >= tonumber(c[2]) then
	redis.call('DEL', KEYS[1])
	return 'expired'
end
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if c[1] == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 'matched'
end
if attempts >= tonumber(ARGV[3]) then
	redis.call('HSET', KEYS[1], 'locked', '1')
	return 'locked'
end
return 'mismatch'
`)

// Store keeps step-up challenges in Redis hashes. Redis removes each record at
// its retention deadline.
type Store struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func key(identityID string) string {
	return keyPrefix + identityID
}

func (s *Store) Put(ctx context.Context, c stepup.Challenge, retainUntil time.Time) error {
	k := key(c.IdentityID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			"code_hash", c.CodeHash,
			"issued_at", strconv.FormatInt(c.IssuedAt.UnixMilli(), 10),
			"expires_at", strconv.FormatInt(c.ExpiresAt.UnixMilli(), 10),
			"attempts", "0",
			"locked", "0",
		)
		pipe.PExpireAt(ctx, k, retainUntil)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "[redisstore.Put]")
	}
	return nil
}

func (s *Store) Attempt(ctx context.Context, identityID, codeHash string, now time.Time, maxAttempts int) (stepup.Outcome, error) {
	res, err := attemptScript.Run(ctx, s.client, []string{key(identityID)}, codeHash, now.UnixMilli(), maxAttempts).Text()
	if err != nil {
		return stepup.OutcomeNotFound, errors.Wrap(err, "[redisstore.Attempt]")
	}
	switch res {
	case "not_found":
		return stepup.OutcomeNotFound, nil
	case "expired":
		return stepup.OutcomeExpired, nil
	case "locked":
		return stepup.OutcomeLocked, nil
	case "mismatch":
		return stepup.OutcomeMismatch, nil
	case "matched":
		return stepup.OutcomeMatched, nil
	}
	return stepup.OutcomeNotFound, fmt.Errorf("[redisstore.Attempt] unexpected script result %q", res)
}
