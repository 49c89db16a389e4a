//go:build integration

package carriers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	sharedtesting "github.com/usama216/shipping-market-sub004/pkg/testing"
)

func setupRedisTokenStore(t *testing.T) (*RedisTokenStore, *redis.Client) {
	ctx := context.Background()
	container, err := sharedtesting.NewRedisContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	client := redis.NewClient(&redis.Options{Addr: container.Addr})
	require.NoError(t, client.Ping(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTokenStore(client), client
}

func TestRedisTokenStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store, client := setupRedisTokenStore(t)

	_, ok, err := store.Load(ctx, domain.CarrierFedEx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, domain.CarrierFedEx, Token{AccessToken: "fx", ExpiresAt: expiry(time.Hour)}))
	got, ok, err := store.Load(ctx, domain.CarrierFedEx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fx", got.AccessToken)
	require.NotNil(t, got.ExpiresAt)
	ttl, err := client.TTL(ctx, store.tokenKey(domain.CarrierFedEx)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Minute)

	// a token without expiry is kept without a TTL and stays non-expiring
	require.NoError(t, store.Save(ctx, domain.CarrierUPS, Token{AccessToken: "ups"}))
	got, ok, err = store.Load(ctx, domain.CarrierUPS)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, got.ExpiresAt)
	assert.True(t, got.Valid(time.Now()))
	ttl, err = client.TTL(ctx, store.tokenKey(domain.CarrierUPS)).Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)

	// already expired tokens are not stored
	past := time.Now().Add(-time.Minute)
	require.NoError(t, store.Save(ctx, domain.CarrierDHL, Token{AccessToken: "old", ExpiresAt: &past}))
	_, ok, err = store.Load(ctx, domain.CarrierDHL)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisTokenStore_LockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisTokenStore(t)

	unlock, acquired, err := store.Lock(ctx, domain.CarrierUPS, 5*time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	_, acquired, err = store.Lock(ctx, domain.CarrierUPS, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, acquired)

	// other carriers have their own lock
	otherUnlock, acquired, err := store.Lock(ctx, domain.CarrierFedEx, 5*time.Second)
	require.NoError(t, err)
	require.True(t, acquired)
	otherUnlock()

	unlock()
	unlock, acquired, err = store.Lock(ctx, domain.CarrierUPS, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)
	unlock()
}

func TestRedisTokenStore_UnlockOnlyReleasesOwnLock(t *testing.T) {
	ctx := context.Background()
	store, client := setupRedisTokenStore(t)

	staleUnlock, acquired, err := store.Lock(ctx, domain.CarrierDHL, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(250 * time.Millisecond)
	freshUnlock, acquired, err := store.Lock(ctx, domain.CarrierDHL, 5*time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	staleUnlock()
	exists, err := client.Exists(ctx, store.lockKey(domain.CarrierDHL)).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, exists)

	freshUnlock()
	exists, err = client.Exists(ctx, store.lockKey(domain.CarrierDHL)).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, exists)
}

func TestAuthSession_WaitsForSharedRefresh(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisTokenStore(t)

	// another process holds the refresh lock
	unlock, acquired, err := store.Lock(ctx, domain.CarrierFedEx, 5*time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	var calls int32
	session := NewAuthSession(domain.CarrierFedEx, countingFetcher(&calls, time.Hour), Deps{Tokens: store})

	done := make(chan string, 1)
	go func() {
		tok, err := session.Token(ctx)
		assert.NoError(t, err)
		done <- tok
	}()

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, store.Save(ctx, domain.CarrierFedEx, Token{AccessToken: "from-holder", ExpiresAt: expiry(time.Hour)}))
	unlock()

	select {
	case tok := <-done:
		assert.Equal(t, "from-holder", tok)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not pick up the shared token")
	}
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
	assert.True(t, session.IsAuthenticated())
}

func TestAuthSession_SharedStoreAcrossSessions(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisTokenStore(t)

	var calls int32
	first := NewAuthSession(domain.CarrierUPS, countingFetcher(&calls, time.Hour), Deps{Tokens: store})
	second := NewAuthSession(domain.CarrierUPS, countingFetcher(&calls, time.Hour), Deps{Tokens: store})

	a, err := first.Token(ctx)
	require.NoError(t, err)
	b, err := second.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
