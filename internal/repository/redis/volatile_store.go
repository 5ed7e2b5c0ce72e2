package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/client"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

const (
	opTimeout        = 5 * time.Second
	maxUpdateRetries = 8
)

// VolatileStore keeps rate-limit counters and lockouts in Redis.
type VolatileStore struct {
	client *client.RedisClient
}

func NewVolatileStore(client *client.RedisClient) *VolatileStore {
	return &VolatileStore{client: client}
}

func (s *VolatileStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := s.client.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to read volatile key", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, nil
}

func (s *VolatileStore) PutWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Client.Set(ctx, key, value, ttl).Err(); err != nil {
		util.Error("Failed to write volatile key",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	util.Debug("Volatile key written", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (s *VolatileStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Client.Del(ctx, keys...).Err(); err != nil {
		util.Error("Failed to delete volatile keys", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Update runs fn under WATCH and commits with MULTI/EXEC, retrying when
// another client modified key in between.
func (s *VolatileStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte) ([]byte, error)) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				return err
			}
			current = nil
		}

		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		util.Error("Failed to update volatile key", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to update %s: %w", key, err)
	}

	util.Warn("Volatile key update kept conflicting", zap.String("key", key), zap.Int("attempts", maxUpdateRetries))
	return repository.ErrConflict
}

func (s *VolatileStore) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}
