package settings

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisStore keeps local state in Redis under a key prefix. Counters use
// INCRBYFLOAT under prefix+"counter:".
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, eris.Wrapf(err, "settings: connect redis %s", opts.Addr)
	}
	return NewRedisStoreFromClient(client, opts.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) valueKey(key string) string   { return r.prefix + key }
func (r *RedisStore) counterKey(key string) string { return r.prefix + "counter:" + key }

func (r *RedisStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := r.client.Get(ctx, r.valueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "settings: redis get %s", key)
	}
	return true, decode(b, dst)
}

func (r *RedisStore) Set(ctx context.Context, values map[string]any) error {
	pairs := make([]any, 0, 2*len(values))
	for k, v := range values {
		b, err := encode(v)
		if err != nil {
			return err
		}
		pairs = append(pairs, r.valueKey(k), b)
	}
	if len(pairs) == 0 {
		return nil
	}
	return eris.Wrap(r.client.MSet(ctx, pairs...).Err(), "settings: redis mset")
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.valueKey(k)
	}
	return eris.Wrap(r.client.Del(ctx, full...).Err(), "settings: redis del")
}

func (r *RedisStore) AddFloat(ctx context.Context, key string, delta float64) (float64, error) {
	v, err := r.client.IncrByFloat(ctx, r.counterKey(key), delta).Result()
	return v, eris.Wrapf(err, "settings: redis incrbyfloat %s", key)
}

func (r *RedisStore) Float(ctx context.Context, key string) (float64, error) {
	v, err := r.client.Get(ctx, r.counterKey(key)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, eris.Wrapf(err, "settings: redis get %s", key)
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
