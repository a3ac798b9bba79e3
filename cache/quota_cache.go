package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sunobot/model"

	"github.com/go-redis/redis/v8"
)

const (
	quotaKey = "quota:user:%d" // Hash: count, date
	quotaTTL = 48 * time.Hour  // 跨过一次日切后自动过期
)

// QuotaCache 基于 Redis 的额度存储，实现 quota.Store
type QuotaCache struct {
	client *redis.Client
}

// NewQuotaCache 使用全局客户端创建额度存储
func NewQuotaCache() *QuotaCache {
	return &QuotaCache{client: RedisClient}
}

// NewQuotaCacheWithClient 使用指定客户端
func NewQuotaCacheWithClient(client *redis.Client) *QuotaCache {
	return &QuotaCache{client: client}
}

// Load 读取用户记录，不存在时第二个返回值为 false
func (c *QuotaCache) Load(ctx context.Context, userID int64) (model.UserQuota, bool, error) {
	if c.client == nil {
		return model.UserQuota{}, false, fmt.Errorf("Redis client not initialized")
	}

	fields, err := c.client.HGetAll(ctx, fmt.Sprintf(quotaKey, userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return model.UserQuota{}, false, nil
		}
		return model.UserQuota{}, false, fmt.Errorf("failed to load quota: %w", err)
	}
	if len(fields) == 0 {
		return model.UserQuota{}, false, nil
	}

	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return model.UserQuota{}, false, fmt.Errorf("corrupt quota count %q: %w", fields["count"], err)
	}
	return model.UserQuota{UserID: userID, Count: count, Date: fields["date"]}, true, nil
}

// Save 覆盖写入用户记录并刷新过期时间
func (c *QuotaCache) Save(ctx context.Context, q model.UserQuota) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(quotaKey, q.UserID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, "count", q.Count, "date", q.Date)
	pipe.Expire(ctx, key, quotaTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save quota: %w", err)
	}
	return nil
}
