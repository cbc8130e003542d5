package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/quantrix-platform/quantrix-rbm/internal/guard"
)

const actorRoleKeyPrefix = "rbm:actor:role:"

// RoleCache 操作者角色缓存
// 角色由身份子系统写入 redis，本服务只读。未知操作者返回空角色，
// guard 会把空角色解析为空能力集
type RoleCache struct {
	client redis.UniversalClient
}

// NewRoleCache 创建角色缓存
func NewRoleCache(client redis.UniversalClient) *RoleCache {
	return &RoleCache{client: client}
}

// GetRole 查询操作者角色
func (c *RoleCache) GetRole(ctx context.Context, actorID string) (guard.Role, error) {
	role, err := c.client.Get(ctx, actorRoleKeyPrefix+actorID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return guard.Role(role), nil
}

// SetRole 写入操作者角色 (测试/种子数据使用)
func (c *RoleCache) SetRole(ctx context.Context, actorID string, role guard.Role) error {
	return c.client.Set(ctx, actorRoleKeyPrefix+actorID, string(role), 0).Err()
}
