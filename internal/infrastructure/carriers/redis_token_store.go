package carriers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisTokenStore shares carrier tokens between processes. The refresh
// lock is a SET NX key owned by a random value.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenStore creates a store on an existing client. The caller
// keeps ownership of the client.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: "carrier_token:"}
}

func (s *RedisTokenStore) tokenKey(carrier string) string {
	return s.prefix + carrier
}

func (s *RedisTokenStore) lockKey(carrier string) string {
	return s.prefix + carrier + ":lock"
}

// Load returns the shared token of a carrier
func (s *RedisTokenStore) Load(ctx context.Context, carrier string) (Token, bool, error) {
	data, err := s.client.Get(ctx, s.tokenKey(carrier)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, fmt.Errorf("failed to load carrier token: %w", err)
	}

	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return Token{}, false, fmt.Errorf("failed to decode carrier token: %w", err)
	}
	return t, true, nil
}

// Save stores the token until it expires. Tokens without an expiry are
// kept until overwritten.
func (s *RedisTokenStore) Save(ctx context.Context, carrier string, token Token) error {
	ttl := token.TTL(time.Now())
	if token.ExpiresAt != nil && ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode carrier token: %w", err)
	}
	if err := s.client.Set(ctx, s.tokenKey(carrier), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save carrier token: %w", err)
	}
	return nil
}

var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes the per-carrier refresh lock
func (s *RedisTokenStore) Lock(ctx context.Context, carrier string, ttl time.Duration) (func(), bool, error) {
	owner := uuid.NewString()
	key := s.lockKey(carrier)

	ok, err := s.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to take refresh lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseLock.Run(ctx, s.client, []string{key}, owner).Err()
	}
	return unlock, true, nil
}
