// internal/service/fulfillment/infrastructure/adapter/zk_range_locker.go
package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codevend/internal/pkg/zookeeper"
)

const defaultLockTimeout = 30 * time.Second

// ZkRangeLocker 实现了 domain.RangeLocker 接口。
// 用 ZooKeeper 分布式锁把同一个 (池, 子区间) 的认领扫描串行化，
// 多实例部署时扫描不会在同一段上互相竞争。
type ZkRangeLocker struct {
	conn *zookeeper.Conn
}

func NewZkRangeLocker(conn *zookeeper.Conn) *ZkRangeLocker {
	return &ZkRangeLocker{conn: conn}
}

// WithLock 持有子区间锁执行 fn。锁的等待时间受 ctx 的截止时间约束。
func (l *ZkRangeLocker) WithLock(ctx context.Context, pool, subRange string, fn func() error) error {
	lock, err := zookeeper.NewDistributedLock(l.conn, lockResourceID(pool, subRange))
	if err != nil {
		return fmt.Errorf("failed to create range lock: %w", err)
	}

	timeout := defaultLockTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := lock.Lock(timeout); err != nil {
		return fmt.Errorf("failed to acquire range lock %s/%s: %w", pool, subRange, err)
	}
	defer lock.Unlock()

	return fn()
}

// lockResourceID 生成锁节点名。":" 等字符替换掉，保持 ZNode 命名整洁。
func lockResourceID(pool, subRange string) string {
	sanitized := strings.NewReplacer(":", "_", "/", "_").Replace(subRange)
	return pool + "-" + sanitized
}
