package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/redis/go-redis/v9"

	"github.com/medigo-health/medigo_api/model"
)

type RedisService struct {
	appContext.DefaultService
	redis *redis.Client
}

const REDIS_SVC = "redis_svc"

const identityCacheTTL = 30 * time.Minute

func (svc RedisService) Id() string {
	return REDIS_SVC
}

func (svc *RedisService) Configure(ctx *appContext.Context) error {
	svc.initRedisClient()
	return svc.DefaultService.Configure(ctx)
}

func (svc *RedisService) Start() error {
	if svc.redis != nil {
		ctx := context.Background()
		if _, err := svc.redis.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}
	return nil
}

func (svc *RedisService) initRedisClient() {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisPassword := os.Getenv("REDIS_PASSWORD")

	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			redisDB = db
		}
	}

	svc.redis = redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})
}

func (svc *RedisService) GetClient() *redis.Client {
	return svc.redis
}

func identityKey(id string) string {
	return "identity:" + id
}

// GetIdentity returns (nil, nil) on a cache miss. Concurrent misses for the
// same id are harmless; whoever repopulates last wins.
func (svc *RedisService) GetIdentity(ctx context.Context, id string) (*model.Identity, error) {
	if svc.redis == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	result, err := svc.redis.Get(ctx, identityKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var identity model.Identity
	if err := json.Unmarshal([]byte(result), &identity); err != nil {
		// Poisoned entry; drop it and treat as a miss.
		svc.redis.Del(ctx, identityKey(id))
		return nil, nil
	}
	return &identity, nil
}

func (svc *RedisService) SetIdentity(ctx context.Context, identity *model.Identity) error {
	if svc.redis == nil {
		return fmt.Errorf("redis client not initialized")
	}

	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	return svc.redis.Set(ctx, identityKey(identity.ID), data, identityCacheTTL).Err()
}

func (svc *RedisService) DeleteIdentity(ctx context.Context, id string) error {
	if svc.redis == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return svc.redis.Del(ctx, identityKey(id)).Err()
}

func (svc *RedisService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if svc.redis == nil {
		return fmt.Errorf("redis client not initialized")
	}

	var data []byte
	var err error

	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		data, err = json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value: %w", err)
		}
	}

	return svc.redis.Set(ctx, key, data, expiration).Err()
}

func (svc *RedisService) Get(ctx context.Context, key string) (string, error) {
	if svc.redis == nil {
		return "", fmt.Errorf("redis client not initialized")
	}

	result, err := svc.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return result, err
}

func (svc *RedisService) Delete(ctx context.Context, keys ...string) error {
	if svc.redis == nil {
		return fmt.Errorf("redis client not initialized")
	}

	return svc.redis.Del(ctx, keys...).Err()
}
