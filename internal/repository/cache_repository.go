package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/models"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

const teacherNameKeyPrefix = "teacher:name:"

// CacheRepository wraps Redis for small lookups that are expensive to repeat:
// teacher names and the selection window. A nil client behaves as an always
// empty cache.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Get retrieves and unmarshals the cached value into the provided destination.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set marshals the provided value and stores it with the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys.
func (r *CacheRepository) Delete(ctx context.Context, keys ...string) error {
	if r.client == nil || len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// TeacherNames looks up cached names for ids in one round trip. It returns
// the hits and the ids that still need resolving. Redis failures degrade to
// all misses.
func (r *CacheRepository) TeacherNames(ctx context.Context, ids []int64) ([]models.Teacher, []int64) {
	if r.client == nil || len(ids) == 0 {
		return nil, ids
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = teacherNameKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		r.logger.Warn("teacher name cache unavailable", zap.Error(err))
		return nil, ids
	}

	var hits []models.Teacher
	var misses []int64
	for i, v := range values {
		name, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		hits = append(hits, models.Teacher{ID: ids[i], Name: name})
	}
	return hits, misses
}

// SetTeacherNames caches resolved names with ttl. Failures are logged only.
func (r *CacheRepository) SetTeacherNames(ctx context.Context, teachers []models.Teacher, ttl time.Duration) {
	if r.client == nil || len(teachers) == 0 {
		return
	}
	pipe := r.client.Pipeline()
	for _, t := range teachers {
		pipe.Set(ctx, teacherNameKey(t.ID), t.Name, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("failed to cache teacher names", zap.Error(err), zap.Int("count", len(teachers)))
	}
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func teacherNameKey(id int64) string {
	return teacherNameKeyPrefix + strconv.FormatInt(id, 10)
}
