package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/repository"
)

const (
	sessionPrefix  = "verify:session:"
	identityPrefix = "verify:identity:"
)

// saveScript replaces the identity's previous live session, if any.
//
// KEYS[1] identity index, KEYS[2] new session key
// ARGV[1] payload, ARGV[2] ttl millis, ARGV[3] new token, ARGV[4] session prefix
var saveScript = redis.NewScript(`
local previous = redis.call("GET", KEYS[1])
if previous and previous ~= ARGV[3] then
  redis.call("DEL", ARGV[4] .. previous)
end
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
redis.call("SET", KEYS[1], ARGV[3], "PX", ARGV[2])
return 1
`)

// consumeScript returns the session payload and deletes it in one step.
//
// KEYS[1] session key, ARGV[1] token, ARGV[2] identity prefix
var consumeScript = redis.NewScript(`
local payload = redis.call("GET", KEYS[1])
if not payload then
  return false
end
redis.call("DEL", KEYS[1])
local ok, decoded = pcall(cjson.decode, payload)
if ok and decoded["identity"] then
  local index = ARGV[2] .. decoded["identity"]
  if redis.call("GET", index) == ARGV[1] then
    redis.call("DEL", index)
  end
end
return payload
`)

// RedisSessionStore implements SessionStore backed by Redis.
type RedisSessionStore struct {
	client redis.UniversalClient
}

var _ repository.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore constructs a Redis-backed session store.
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// SaveSession stores the encoded session with TTL.
func (s *RedisSessionStore) SaveSession(ctx context.Context, session verification.OAuthSession, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("save session: ttl must be positive")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	keys := []string{identityKey(session.Identity), sessionKey(session.CorrelationToken)}
	err = saveScript.Run(ctx, s.client, keys, payload, ttl.Milliseconds(), session.CorrelationToken, sessionPrefix).Err()
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// ConsumeSession loads and deletes the session in a single script call.
func (s *RedisSessionStore) ConsumeSession(ctx context.Context, token string) (*verification.OAuthSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := consumeScript.Run(ctx, s.client, []string{sessionKey(token)}, token, identityPrefix).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("consume session: %w", err)
	}
	var session verification.OAuthSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func sessionKey(token string) string {
	return sessionPrefix + strings.TrimSpace(token)
}

func identityKey(identity verification.IdentityRef) string {
	return identityPrefix + strings.TrimSpace(identity.String())
}
