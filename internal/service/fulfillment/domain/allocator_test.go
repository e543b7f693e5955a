package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codevend/internal/service/fulfillment/domain"
)

// memPool 是 CodePoolRepository 的内存实现，按插入顺序维护 position。
type memPool struct {
	entries []domain.CodeEntry
	// loseClaims 里列出的 position 在 MarkClaimed 时返回 false，
	// 用来模拟读到未认领但被并发订单抢先置位的情况。
	loseClaims map[int]bool
}

func (p *memPool) ReadRange(_ context.Context, pool, subRange string) ([]domain.CodeEntry, error) {
	var out []domain.CodeEntry
	for _, e := range p.entries {
		if e.Pool == pool && e.SubRange == subRange {
			out = append(out, e)
		}
	}
	return out, nil
}

func (p *memPool) MarkClaimed(_ context.Context, pool, subRange string, position int, orderID string) (bool, error) {
	if p.loseClaims[position] {
		return false, nil
	}
	for i := range p.entries {
		e := &p.entries[i]
		if e.Pool == pool && e.SubRange == subRange && e.Position == position && !e.Claimed {
			e.Claimed = true
			e.OrderID = orderID
			return true, nil
		}
	}
	return false, nil
}

func (p *memPool) FindClaimedByOrder(_ context.Context, orderID, pool, subRange string) ([]domain.CodeEntry, error) {
	var out []domain.CodeEntry
	for _, e := range p.entries {
		if e.Pool == pool && e.SubRange == subRange && e.Claimed && e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (p *memPool) Seed(_ context.Context, pool, subRange string, values []string) error {
	for i, v := range values {
		p.entries = append(p.entries, domain.CodeEntry{
			Pool: pool, SubRange: subRange, Position: len(p.entries) + i, Value: v,
		})
	}
	return nil
}

// passthroughLocker 直接执行回调，不加任何锁。
type passthroughLocker struct{ calls int }

func (l *passthroughLocker) WithLock(_ context.Context, _, _ string, fn func() error) error {
	l.calls++
	return fn()
}

func poolWith(entries ...domain.CodeEntry) *memPool {
	return &memPool{entries: entries, loseClaims: map[int]bool{}}
}

func entry(position int, value string, claimed bool) domain.CodeEntry {
	return domain.CodeEntry{Pool: "Game1", SubRange: "A:B", Position: position, Value: value, Claimed: claimed}
}

var testCls = domain.Classification{Pool: "Game1", SubRange: "A:B"}

func TestAllocator_ClaimsInAscendingPosition(t *testing.T) {
	pool := poolWith(entry(0, "c1", false), entry(1, "c2", true), entry(2, "c3", false))
	locker := &passthroughLocker{}
	alloc := domain.NewAllocator(pool, locker)

	codes, err := alloc.Allocate(context.Background(), "order-1", testCls, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3"}, codes)
	assert.Equal(t, 1, locker.calls)
}

func TestAllocator_InsufficientCodesKeepsPartialClaims(t *testing.T) {
	pool := poolWith(entry(0, "c1", false), entry(1, "c2", true))
	alloc := domain.NewAllocator(pool, &passthroughLocker{})

	_, err := alloc.Allocate(context.Background(), "order-1", testCls, 2)
	require.ErrorIs(t, err, domain.ErrInsufficientCodes)

	// 扫描中的认领不回滚
	assert.True(t, pool.entries[0].Claimed)
	assert.Equal(t, "order-1", pool.entries[0].OrderID)
}

func TestAllocator_SkipsEntriesLostToConcurrentClaim(t *testing.T) {
	pool := poolWith(entry(0, "c1", false), entry(1, "c2", false), entry(2, "c3", false))
	pool.loseClaims[0] = true
	alloc := domain.NewAllocator(pool, &passthroughLocker{})

	codes, err := alloc.Allocate(context.Background(), "order-1", testCls, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c3"}, codes)
}

func TestAllocator_ReusesClaimsOnRetry(t *testing.T) {
	pool := poolWith(entry(0, "c1", false), entry(1, "c2", false))
	alloc := domain.NewAllocator(pool, &passthroughLocker{})

	first, err := alloc.Allocate(context.Background(), "order-1", testCls, 2)
	require.NoError(t, err)

	// 崩溃后重投：同一个订单再次分配，必须拿回同一批码
	second, err := alloc.Allocate(context.Background(), "order-1", testCls, 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 且池子没有被再扣一批
	claimed := 0
	for _, e := range pool.entries {
		if e.Claimed {
			claimed++
		}
	}
	assert.Equal(t, 2, claimed)
}

func TestAllocator_RejectsNonPositiveQuantity(t *testing.T) {
	alloc := domain.NewAllocator(poolWith(), &passthroughLocker{})
	_, err := alloc.Allocate(context.Background(), "order-1", testCls, 0)
	assert.Error(t, err)
}
