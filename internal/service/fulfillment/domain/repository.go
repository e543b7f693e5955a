// internal/service/fulfillment/domain/repository.go
package domain

import (
	"context"
	"time"
)

// AcquireStatus 是抢占订单处理权的三种结果。
// 两种未抢到的情形分开表示，调用方的日志和跳过原因才不会误导排查。
type AcquireStatus int

const (
	AcquireAcquired         AcquireStatus = iota // 抢到了，本次调用负责处理
	AcquireHeld                                  // 处理权被并发调用持有
	AcquireAlreadyProcessed                      // 永久记录已存在，订单早已完成
)

// LedgerRepository 是幂等账本的持久化接口。
// 账本记录的存在与否是"该订单是否已触发发码和买家通知"的唯一事实来源。
type LedgerRepository interface {
	// HasProcessed 检查订单是否已经完成过发货。
	// 成功返回过的 MarkProcessed 对所有后续调用可见。
	HasProcessed(ctx context.Context, orderID string) (bool, error)

	// AcquireOrder 以 insert-if-absent 的方式抢占订单的处理权，
	// 这是真正的去重闸门：先写者赢，输家按 Skipped 处理。
	// 永久记录已存在的订单同样抢不到，并以 AcquireAlreadyProcessed 区分。
	// 抢占带 TTL，持有者崩溃后自动过期，订单可被重投处理。
	AcquireOrder(ctx context.Context, orderID string, ttl time.Duration) (AcquireStatus, error)

	// ReleaseOrder 释放处理权，让失败的订单可以立即被重投重试。
	ReleaseOrder(ctx context.Context, orderID string) error

	// MarkProcessed 写入永久的完成记录。幂等，重复调用不算错。
	MarkProcessed(ctx context.Context, orderID string) error
}

// CodePoolRepository 是码池的持久化接口。
// 认领标记只能由 MarkClaimed 单向置位。
type CodePoolRepository interface {
	// ReadRange 按 position 升序返回一个子区间的全部条目。
	ReadRange(ctx context.Context, pool, subRange string) ([]CodeEntry, error)

	// MarkClaimed 条件认领：仅当条目当前未被认领时置位并记下订单号。
	// 返回 false 表示并发竞争中输给了别的订单，条目已被占用。
	MarkClaimed(ctx context.Context, pool, subRange string, position int, orderID string) (bool, error)

	// FindClaimedByOrder 返回此订单之前已认领的条目（按 position 升序），
	// 用于崩溃后重投时复用同一批码而不是重复认领。
	FindClaimedByOrder(ctx context.Context, orderID, pool, subRange string) ([]CodeEntry, error)

	// Seed 向子区间追加一批未认领的码（运维操作）。
	Seed(ctx context.Context, pool, subRange string, values []string) error
}

// RangeLocker 把同一个 (池, 子区间) 的认领扫描串行化，
// 避免多个并发分配在同一段上互相踩踏。
type RangeLocker interface {
	WithLock(ctx context.Context, pool, subRange string, fn func() error) error
}
