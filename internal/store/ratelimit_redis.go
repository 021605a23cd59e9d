package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/ratelimit-demo-go/internal/ratelimit"
	"golang.org/x/sync/singleflight"
)

const (
	malformedCounterReply = "MALFORMED_COUNTER"
	notIntegerReply       = "value is not an integer"

	// ConnectTimeout bounds a shared connection attempt. Callers stop waiting
	// earlier when their own context ends.
	ConnectTimeout = 5 * time.Second
)

// fixedWindowScript performs the whole check-and-increment on the server so
// concurrent callers cannot both observe limit-1 and overshoot.
// Returns {acquired, count, ttl_ms}.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local current = redis.call('GET', key)
if not current then
  redis.call('SET', key, 1, 'PX', window)
  return {1, 1, window}
end

if not string.match(current, '^%-?%d+$') then
  return redis.error_reply('` + malformedCounterReply + `')
end
local count = tonumber(current)

local ttl = redis.call('PTTL', key)
if ttl < 0 then
  redis.call('PEXPIRE', key, window)
  ttl = window
end

if count < limit then
  count = redis.call('INCR', key)
  return {1, count, ttl}
end

return {0, count, ttl}
`)

// Connector establishes a ready-to-use Redis client.
type Connector func(ctx context.Context) (redis.UniversalClient, error)

// RedisConnector returns a Connector that dials with opts and verifies the
// connection with PING.
func RedisConnector(opts *redis.Options) Connector {
	return ClientConnector(func() redis.UniversalClient { return redis.NewClient(opts) })
}

// ClientConnector wraps a client factory, verifying each new client with PING.
func ClientConnector(newClient func() redis.UniversalClient) Connector {
	return func(ctx context.Context) (redis.UniversalClient, error) {
		client := newClient()

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()

			return nil, err
		}

		return client, nil
	}
}

// RedisCounterStore is a Redis implementation of ratelimit.Store.
//
// The client is established on first use and then reused for the lifetime of
// the store. Concurrent callers share a single connection attempt, and each
// stops waiting when its own context ends. A failed attempt is not cached; the
// next call tries again.
type RedisCounterStore struct {
	connect Connector
	group   singleflight.Group

	mu     sync.Mutex
	client redis.UniversalClient
}

// NewRedisCounterStore creates a Redis-backed counter store that connects lazily.
func NewRedisCounterStore(connect Connector) *RedisCounterStore {
	return &RedisCounterStore{connect: connect}
}

func (r *RedisCounterStore) current() redis.UniversalClient {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.client
}

func (r *RedisCounterStore) conn(ctx context.Context) (redis.UniversalClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ratelimit.ErrStoreUnavailable, err)
	}

	if client := r.current(); client != nil {
		return client, nil
	}

	attempt := r.group.DoChan("connect", func() (any, error) {
		if client := r.current(); client != nil {
			return client, nil
		}

		// Detached from the first caller so its cancellation does not fail
		// the attempt for everyone else waiting on it.
		connectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ConnectTimeout)
		defer cancel()

		client, err := r.connect(connectCtx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.client = client
		r.mu.Unlock()

		return client, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for connection: %w", ratelimit.ErrStoreUnavailable, ctx.Err())
	case res := <-attempt:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: connecting: %w", ratelimit.ErrStoreUnavailable, res.Err)
		}

		client, _ := res.Val.(redis.UniversalClient)

		return client, nil
	}
}

func (r *RedisCounterStore) Acquire(
	ctx context.Context, key string, limit int64, window time.Duration,
) (ratelimit.Counter, error) {
	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		return ratelimit.Counter{}, fmt.Errorf("%w: window must be at least 1ms, got %s",
			ratelimit.ErrInvalidPolicy, window)
	}

	client, err := r.conn(ctx)
	if err != nil {
		return ratelimit.Counter{}, err
	}

	res, err := fixedWindowScript.Run(ctx, client, []string{key}, limit, windowMS).Result()
	if err != nil {
		return ratelimit.Counter{}, classifyScriptError(err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return ratelimit.Counter{}, fmt.Errorf("%w: unexpected script result %T", ratelimit.ErrMalformedCounter, res)
	}

	acquired, err := asInt64(values[0])
	if err != nil {
		return ratelimit.Counter{}, err
	}

	count, err := asInt64(values[1])
	if err != nil {
		return ratelimit.Counter{}, err
	}

	ttlMS, err := asInt64(values[2])
	if err != nil {
		return ratelimit.Counter{}, err
	}

	return ratelimit.Counter{
		Count:    count,
		Acquired: acquired == 1,
		TTL:      time.Duration(ttlMS) * time.Millisecond,
	}, nil
}

// Ping checks Redis connectivity, establishing the client if needed.
func (r *RedisCounterStore) Ping(ctx context.Context) error {
	client, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return client.Ping(ctx).Err()
}

// Shutdown closes the client if one was established.
func (r *RedisCounterStore) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil

	return err
}

func classifyScriptError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, malformedCounterReply) ||
		strings.Contains(msg, notIntegerReply) ||
		strings.HasPrefix(msg, "WRONGTYPE") {
		return fmt.Errorf("%w: %w", ratelimit.ErrMalformedCounter, err)
	}

	return fmt.Errorf("%w: running limit script: %w", ratelimit.ErrStoreUnavailable, err)
}

func asInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ratelimit.ErrMalformedCounter, x, err)
		}

		return n, nil
	default:
		return 0, fmt.Errorf("%w: unsupported numeric type %T", ratelimit.ErrMalformedCounter, v)
	}
}

// Compile-time check.
var _ ratelimit.Store = (*RedisCounterStore)(nil)
