package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/callinsight/internal/model"
)

// AnalysisCacheConfig 分析结果缓存配置。
type AnalysisCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// AnalysisCache 分析结果缓存。
// 缓存键覆盖影响结果的全部请求参数，参数不同的请求互不串扰。
type AnalysisCache struct {
	redis  *goredis.Client
	config *AnalysisCacheConfig
}

// NewAnalysisCache 创建分析结果缓存实例。
func NewAnalysisCache(redis *goredis.Client, config *AnalysisCacheConfig) *AnalysisCache {
	if config == nil {
		config = &AnalysisCacheConfig{
			Enabled:   false,
			TTL:       1 * time.Hour,
			KeyPrefix: "analyzer:result:",
		}
	}
	return &AnalysisCache{
		redis:  redis,
		config: config,
	}
}

// generateCacheKey 基于全部请求参数生成缓存键（SHA256）。
func (c *AnalysisCache) generateCacheKey(question, theme, method string, chunkSize, topK int) string {
	payload := fmt.Sprintf("%s|%s|%s|%d|%d", question, theme, method, chunkSize, topK)
	hash := sha256.Sum256([]byte(payload))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get 从缓存获取分析结果。未命中返回 (nil, nil)。
func (c *AnalysisCache) Get(ctx context.Context, question, theme, method string, chunkSize, topK int) (*model.AnalysisResult, error) {
	if !c.config.Enabled || c.redis == nil {
		return nil, nil
	}

	cacheKey := c.generateCacheKey(question, theme, method, chunkSize, topK)

	data, err := c.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == goredis.Nil {
			logger.Debugw("cache miss", "method", method, "key", cacheKey)
			return nil, nil
		}
		logger.Warnw("failed to get from cache", "error", err.Error(), "key", cacheKey)
		return nil, err
	}

	var result model.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("failed to unmarshal cached result", "error", err.Error(), "key", cacheKey)
		// 删除损坏的缓存
		_ = c.redis.Del(ctx, cacheKey).Err()
		return nil, err
	}

	logger.Infow("cache hit", "method", method, "key", cacheKey, "answer_length", len(result.Answer))
	return &result, nil
}

// Set 将分析结果写入缓存。
func (c *AnalysisCache) Set(ctx context.Context, question, theme, method string, chunkSize, topK int, result *model.AnalysisResult) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	cacheKey := c.generateCacheKey(question, theme, method, chunkSize, topK)

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("failed to marshal result for caching", "error", err.Error())
		return err
	}

	if err := c.redis.Set(ctx, cacheKey, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set cache", "error", err.Error(), "key", cacheKey)
		return err
	}

	logger.Debugw("cached analysis result", "method", method, "key", cacheKey, "ttl", c.config.TTL)
	return nil
}

// Clear 清除所有分析结果缓存。
func (c *AnalysisCache) Clear(ctx context.Context) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	deletedCount := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
		} else {
			deletedCount++
		}
	}

	if err := iter.Err(); err != nil {
		logger.Warnw("error during cache scan", "error", err.Error())
		return err
	}

	logger.Infow("cleared analysis cache", "deleted_count", deletedCount)
	return nil
}

// GetStats 获取缓存统计信息。
func (c *AnalysisCache) GetStats(ctx context.Context) (map[string]interface{}, error) {
	if !c.config.Enabled || c.redis == nil {
		return map[string]interface{}{
			"enabled": false,
		}, nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	keyCount := 0
	for iter.Next(ctx) {
		keyCount++
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"enabled":    true,
		"key_count":  keyCount,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
