package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// CacheInvalidator 进度引擎写成功后要通知的缓存端口
type CacheInvalidator interface {
	Invalidate(ctx context.Context, key string) error
	InvalidateGroup(ctx context.Context, group string) error
}

func ProgressCacheKey(userID, courseID uint) string {
	return fmt.Sprintf("progress:user:%d:course:%d", userID, courseID)
}

// EnrolledCoursesGroup 按用户分组的已报名课程缓存注册表
func EnrolledCoursesGroup(userID uint) string {
	return fmt.Sprintf("courses:enrolled:user:%d", userID)
}

type CacheService struct {
	Redis *redis.Client

	mu  sync.RWMutex
	ttl time.Duration
}

func NewCacheService(rdb *redis.Client, ttl time.Duration) *CacheService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CacheService{Redis: rdb, ttl: ttl}
}

func (s *CacheService) TTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttl
}

// SetTTL 配置热更新时调整缓存有效期，非法值忽略
func (s *CacheService) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

func (s *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := s.Redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *CacheService) SetJSON(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Redis.Set(ctx, key, raw, s.TTL()).Err()
}

// SetJSONInGroup 写入缓存并把 key 登记到分组注册表，供整组失效
func (s *CacheService) SetJSONInGroup(ctx context.Context, group, key string, value interface{}) error {
	if err := s.SetJSON(ctx, key, value); err != nil {
		return err
	}
	pipe := s.Redis.TxPipeline()
	pipe.SAdd(ctx, group, key)
	pipe.Expire(ctx, group, s.TTL())
	_, err := pipe.Exec(ctx)
	return err
}

func (s *CacheService) Invalidate(ctx context.Context, key string) error {
	return s.Redis.Del(ctx, key).Err()
}

// InvalidateGroup 删除注册表里的全部成员以及注册表本身
func (s *CacheService) InvalidateGroup(ctx context.Context, group string) error {
	members, err := s.Redis.SMembers(ctx, group).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	keys := append(members, group)
	return s.Redis.Del(ctx, keys...).Err()
}
