// internal/service/fulfillment/infrastructure/redis_ledger.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	pkgredis "codevend/internal/pkg/redis"
	"codevend/internal/service/fulfillment/domain"
)

const acquireOrderScript = "ledger_acquire_order"

// acquireOrderLua 原子地完成"查永久记录 + 抢占处理权"两步：
// 永久记录已存在返回 -1，抢占成功返回 1，抢占键已被占返回 0。
const acquireOrderLua = `
if redis.call('EXISTS', KEYS[1]) == 1 then
  return -1
end
if redis.call('SET', KEYS[2], ARGV[1], 'NX', 'PX', ARGV[2]) then
  return 1
end
return 0
`

// RedisLedger 是 domain.LedgerRepository 的 Redis 实现。
//
// 永久记录是 fulfillment:orders:{id} 键，存在即已处理；
// 抢占键 fulfillment:inflight:{id} 用 SET NX + TTL 实现 insert-if-absent
// 的去重闸门。抢占走 Lua 脚本，连同永久记录的检查一起原子执行，
// HasProcessed 和 AcquireOrder 之间刚落账的并发重投也抢不到处理权。
// 两个键带相同的 hash tag，集群模式下落在同一个槽。
type RedisLedger struct {
	redisClient *pkgredis.Client
}

func NewRedisLedger(redisClient *pkgredis.Client) *RedisLedger {
	// 脚本内容非空，注册不会失败
	_ = redisClient.LoadScriptFromContent(acquireOrderScript, acquireOrderLua)
	return &RedisLedger{redisClient: redisClient}
}

func orderKey(orderID string) string {
	return fmt.Sprintf("fulfillment:orders:{%s}", orderID)
}

func inflightKey(orderID string) string {
	return fmt.Sprintf("fulfillment:inflight:{%s}", orderID)
}

// HasProcessed 检查永久记录是否存在。
// Redis 不可达按 ErrStoreUnavailable 上抛，调用方 fail-closed。
func (l *RedisLedger) HasProcessed(ctx context.Context, orderID string) (bool, error) {
	n, err := l.redisClient.GetClient().Exists(ctx, orderKey(orderID)).Result()
	if err != nil {
		return false, errors.Wrapf(domain.ErrStoreUnavailable, "ledger exists check: %v", err)
	}
	return n > 0, nil
}

// AcquireOrder 抢占订单处理权，先写者赢。
func (l *RedisLedger) AcquireOrder(ctx context.Context, orderID string, ttl time.Duration) (domain.AcquireStatus, error) {
	result, err := l.redisClient.RunScript(ctx, acquireOrderScript,
		[]string{orderKey(orderID), inflightKey(orderID)},
		time.Now().Format(time.RFC3339Nano), ttl.Milliseconds(),
	)
	if err != nil {
		return domain.AcquireHeld, errors.Wrapf(domain.ErrStoreUnavailable, "ledger acquire: %v", err)
	}
	switch result {
	case int64(1):
		return domain.AcquireAcquired, nil
	case int64(0):
		return domain.AcquireHeld, nil
	case int64(-1):
		return domain.AcquireAlreadyProcessed, nil
	default:
		return domain.AcquireHeld, errors.Wrapf(domain.ErrStoreUnavailable, "ledger acquire: unexpected script result %v", result)
	}
}

// ReleaseOrder 释放处理权。键不存在不算错。
func (l *RedisLedger) ReleaseOrder(ctx context.Context, orderID string) error {
	if err := l.redisClient.GetClient().Del(ctx, inflightKey(orderID)).Err(); err != nil {
		return errors.Wrapf(domain.ErrStoreUnavailable, "ledger release: %v", err)
	}
	return nil
}

// MarkProcessed 写入永久记录。重复写入是幂等的。
func (l *RedisLedger) MarkProcessed(ctx context.Context, orderID string) error {
	if err := l.redisClient.GetClient().Set(ctx, orderKey(orderID), time.Now().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return errors.Wrapf(domain.ErrStoreUnavailable, "ledger mark processed: %v", err)
	}
	return nil
}
