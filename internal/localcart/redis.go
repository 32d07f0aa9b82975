package localcart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// maxTxAttempts bounds optimistic retries when another process writes the
// key between WATCH and EXEC.
const maxTxAttempts = 10

// RedisBackend stores the cart under a single key with no expiry. Updates
// run under WATCH/MULTI so writers in other processes cannot interleave.
type RedisBackend struct {
	client *redis.Client
	key    string
	lock   *sync.Mutex
}

// NewRedisBackend creates a backend storing the cart at "cartcore:cart:<device>".
func NewRedisBackend(client *redis.Client, device string) *RedisBackend {
	key := cacheKey(device)
	opts := client.Options()
	location := fmt.Sprintf("redis:%s/%d/%s", opts.Addr, opts.DB, key)
	return &RedisBackend{client: client, key: key, lock: storageLocks.get(location)}
}

func (r *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisBackend) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, r.key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis get failed: %w", err)
		}
		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, r.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis update failed: %w", err)
		}
		return nil
	}
	return fmt.Errorf("redis update failed after %d attempts: %w", maxTxAttempts, redis.TxFailedErr)
}

func (r *RedisBackend) Delete(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(device string) string {
	return fmt.Sprintf("cartcore:cart:%s", device)
}
