package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Get returns redis.Nil when the key is missing.
func Get[T any](rdb *redis.Client, ctx context.Context, key string) (*T, error) {
	raw, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

const generationTTL = 24 * time.Hour

// Generation returns the counter stored at genKey, 0 when it is unset.
func Generation(rdb *redis.Client, ctx context.Context, genKey string) (int64, error) {
	gen, err := rdb.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Invalidate drops key and bumps genKey, so a SetJSONIfGeneration holding the
// previous generation does not write a stale value back.
func Invalidate(rdb *redis.Client, ctx context.Context, key, genKey string) error {
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

// SetJSONIfGeneration writes v under key only while genKey still holds gen.
// It reports whether the value was written.
func SetJSONIfGeneration(rdb *redis.Client, ctx context.Context, key, genKey string, gen int64, v any, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}

	written := false
	err = rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return written, err
}
