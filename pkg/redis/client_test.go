package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pickup-orders/pkg/config"
)

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, "k", "2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	assert.ErrorIs(t, err, Nil)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "pickup:idempotency:place_order:abc", client.IdempotencyKey("place_order", "abc"))
	assert.Equal(t, "pickup:webhook:payment.captured:pay_1", client.WebhookEventKey("payment.captured", "pay_1"))
	assert.Equal(t, "pickup:webhook:payment.failed", client.WebhookEventKey("payment.failed", " "))
	assert.Equal(t, "pickup:lock:stale_payment_expiry", client.LockKey("stale_payment_expiry"))
	assert.Equal(t, "pickup:rl:place_order:user-1", client.RateLimitKey("place_order", "user-1"))
	assert.Equal(t, "pickup:channel:order-updates", client.ChannelName("order-updates"))
}

func TestPublishAndSubscribeGuards(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	require.NoError(t, client.Publish(ctx, "pickup:channel:order-updates", []byte(`{"rooms":[]}`)))
	assert.Equal(t, []string{`pickup:channel:order-updates={"rooms":[]}`}, mock.published)

	_, _, err := client.Subscribe(ctx, "pickup:channel:order-updates")
	require.Error(t, err, "subscribing needs a live connection")
	require.Error(t, (&Client{}).Publish(ctx, "c", nil))
}

func TestIncrWithTTLSetsExpiryOnFirstHit(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	count, err := client.IncrWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, mock.expiries["counter"])

	mock.expiries["counter"] = 0
	count, err = client.IncrWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Zero(t, mock.expiries["counter"], "expiry only set on first increment")
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	require.Error(t, client.Ping(context.Background()))
	_, err := client.SetNX(context.Background(), "k", "v", 0)
	require.Error(t, err)
	require.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	_, err = optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)
}

type mockCmdable struct {
	data      map[string]string
	counters  map[string]int64
	expiries  map[string]time.Duration
	published []string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     make(map[string]string),
		counters: make(map[string]int64),
		expiries: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.counters[key]++
	return redis.NewIntResult(m.counters[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expiries[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	m.published = append(m.published, channel+"="+fmt.Sprintf("%s", message))
	return redis.NewIntResult(1, nil)
}
