package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures so callers can
// distinguish "absent" from "backend down".
var ErrRedisUnavailable = errors.New("kv: redis unavailable")

// Redis implements Store on a go-redis client. All keys are namespaced under
// a fixed prefix so one Redis database can host several cores.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps client. An empty prefix defaults to "authcore".
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "authcore"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string {
	return r.prefix + ":" + k
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return data, nil
}

// Set implements Store. A zero ttl stores the key without expiry.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete implements Store. Deleting an absent key is not an error.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// List implements Store using SCAN, so it is safe against large keyspaces.
func (r *Redis) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.key(prefix)+"*", 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix+":"))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return keys, nil
}

type redisWrite struct {
	key    string
	value  []byte
	ttl    time.Duration
	delete bool
}

type redisTx struct {
	ctx    context.Context
	tx     *redis.Tx
	prefix string
	writes []redisWrite
}

func (t *redisTx) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := t.tx.Get(ctx, t.prefix+":"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return data, nil
}

func (t *redisTx) Set(key string, value []byte, ttl time.Duration) {
	t.writes = append(t.writes, redisWrite{key: t.prefix + ":" + key, value: value, ttl: ttl})
}

func (t *redisTx) Delete(key string) {
	t.writes = append(t.writes, redisWrite{key: t.prefix + ":" + key, delete: true})
}

// Atomic implements Store with WATCH/MULTI/EXEC. The staged writes commit in
// a single transaction; a concurrent change to any watched key aborts the
// commit and surfaces ErrConflict.
func (r *Redis) Atomic(ctx context.Context, keys []string, fn func(tx Tx) error) error {
	watched := make([]string, len(keys))
	for i, k := range keys {
		watched[i] = r.key(k)
	}

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		stage := &redisTx{ctx: ctx, tx: tx, prefix: r.prefix}
		if err := fn(stage); err != nil {
			return err
		}
		if len(stage.writes) == 0 {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range stage.writes {
				if w.delete {
					pipe.Del(ctx, w.key)
					continue
				}
				pipe.Set(ctx, w.key, w.value, w.ttl)
			}
			return nil
		})
		return err
	}, watched...)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}
