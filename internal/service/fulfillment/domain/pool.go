// internal/service/fulfillment/domain/pool.go
package domain

import "time"

// CodeEntry 是码池中的一行：一个不透明的兑换码和它的认领状态。
// 认领标记和码值是同一条结构化记录，而不是派生的第二个存储位置。
// 一旦 Claimed 为 true，永不回退，也永不再次发放。
type CodeEntry struct {
	Pool      string
	SubRange  string
	Position  int // 池内序号，认领严格按此升序进行
	Value     string
	Claimed   bool
	OrderID   string // 认领它的订单号，空表示未认领
	ClaimedAt time.Time
}
