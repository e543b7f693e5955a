// internal/service/fulfillment/domain/allocator.go
package domain

import (
	"context"

	"github.com/pkg/errors"
)

// Allocator 从共享码池里为一个订单独占认领 N 个未使用的码。
//
// 算法：按 position 升序扫描子区间，对每个未认领条目做一次条件认领
// （仅当仍未认领时成功），直到凑够 quantity 个或条目耗尽。
// 条件认领输掉说明有并发订单抢先，跳过该条目继续扫描即可，
// 两边都不会拿到同一个码。
type Allocator struct {
	pool   CodePoolRepository
	locker RangeLocker
}

func NewAllocator(pool CodePoolRepository, locker RangeLocker) *Allocator {
	return &Allocator{pool: pool, locker: locker}
}

// Allocate 为 orderID 认领 quantity 个码，按认领顺序（position 升序）返回。
//
// 不会静默返回少于 quantity 个：子区间耗尽时返回 ErrInsufficientCodes，
// 扫描中已置位的认领保持置位，不回滚（接受的槽位损耗）。
//
// 同一订单重复调用（重投场景）会优先复用它之前认领过的条目，
// 所以崩溃后重试发出的是同一批码，而不是再扣一批。
func (a *Allocator) Allocate(ctx context.Context, orderID string, cls Classification, quantity int) ([]string, error) {
	if quantity < 1 {
		return nil, errors.Errorf("allocation quantity must be >= 1, got %d", quantity)
	}

	var codes []string
	err := a.locker.WithLock(ctx, cls.Pool, cls.SubRange, func() error {
		// 先复用本订单已认领的条目
		previous, err := a.pool.FindClaimedByOrder(ctx, orderID, cls.Pool, cls.SubRange)
		if err != nil {
			return err
		}
		for _, entry := range previous {
			if len(codes) == quantity {
				break
			}
			codes = append(codes, entry.Value)
		}
		if len(codes) == quantity {
			return nil
		}

		entries, err := a.pool.ReadRange(ctx, cls.Pool, cls.SubRange)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			if len(codes) == quantity {
				break
			}
			if entry.Claimed {
				continue
			}
			claimed, err := a.pool.MarkClaimed(ctx, cls.Pool, cls.SubRange, entry.Position, orderID)
			if err != nil {
				return err
			}
			if !claimed {
				// 读到未认领但置位失败：并发认领抢先了，换下一条
				continue
			}
			codes = append(codes, entry.Value)
		}

		if len(codes) < quantity {
			return errors.Wrapf(ErrInsufficientCodes,
				"pool %s range %s: wanted %d, found %d", cls.Pool, cls.SubRange, quantity, len(codes))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}
