package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/storyduet/storyduet-go/internal/constants"
	"github.com/storyduet/storyduet-go/internal/domain"
	"github.com/storyduet/storyduet-go/pkg/errors"
	"go.uber.org/zap"
)

type CacheService struct {
	client *redis.Client
	logger *zap.Logger
}

const (
	sessionSnapshotKey = "storyduet:session:snapshot"
	analysisKeyPrefix  = "storyduet:analysis:"
)

type CacheConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func NewCacheService(cfg CacheConfig, logger *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  constants.RedisConfig.ReadyTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), constants.RedisConfig.ReadyTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewCacheError("failed to connect to Redis", "ping", "", err)
	}

	logger.Info("Redis connected",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)

	return &CacheService{
		client: client,
		logger: logger,
	}, nil
}

func (c *CacheService) Get(ctx context.Context, key string, dest any) error {
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // Key doesn't exist - not an error
	}
	if err != nil {
		c.logger.Error("Cache get failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("get failed", "get", key, err)
	}

	if dest != nil {
		if err := json.Unmarshal([]byte(value), dest); err != nil {
			c.logger.Error("Cache unmarshal failed", zap.String("key", key), zap.Error(err))
			return errors.NewCacheError("unmarshal failed", "get", key, err)
		}
	}

	return nil
}

func (c *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return errors.NewCacheError("marshal failed", "set", key, err)
	}

	if err := c.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		c.logger.Error("Cache set failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("set failed", "set", key, err)
	}

	return nil
}

func (c *CacheService) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("Cache delete failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("delete failed", "del", key, err)
	}
	return nil
}

// SaveSnapshot keeps the in-progress session around so a reconnecting client
// can resume instead of starting over. Best effort; the machine logs and
// ignores failures.
func (c *CacheService) SaveSnapshot(ctx context.Context, session *domain.Session) error {
	return c.Set(ctx, sessionSnapshotKey, session, constants.CacheTTL.SessionSnapshot)
}

func (c *CacheService) ClearSnapshot(ctx context.Context) error {
	return c.Del(ctx, sessionSnapshotKey)
}

// LoadSnapshot returns the saved session, or nil when none exists.
func (c *CacheService) LoadSnapshot(ctx context.Context) (*domain.Session, error) {
	var session domain.Session
	value, err := c.client.Get(ctx, sessionSnapshotKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewCacheError("get failed", "get", sessionSnapshotKey, err)
	}
	if err := json.Unmarshal([]byte(value), &session); err != nil {
		return nil, errors.NewCacheError("unmarshal failed", "get", sessionSnapshotKey, err)
	}
	return &session, nil
}

// CacheAnalysis stores a completed analysis keyed by story id so the result
// screen can be re-rendered without another model pass.
func (c *CacheService) CacheAnalysis(ctx context.Context, storyID string, record *domain.AnalysisRecord) error {
	if storyID == "" || storyID == domain.StoryIDUnsaved {
		return nil
	}
	return c.Set(ctx, analysisKeyPrefix+storyID, record, constants.CacheTTL.AnalysisRecord)
}

func (c *CacheService) GetCachedAnalysis(ctx context.Context, storyID string) (*domain.AnalysisRecord, error) {
	value, err := c.client.Get(ctx, analysisKeyPrefix+storyID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewCacheError("get failed", "get", analysisKeyPrefix+storyID, err)
	}
	var record domain.AnalysisRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return nil, errors.NewCacheError("unmarshal failed", "get", analysisKeyPrefix+storyID, err)
	}
	return &record, nil
}

func (c *CacheService) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *CacheService) Close() error {
	return c.client.Close()
}
