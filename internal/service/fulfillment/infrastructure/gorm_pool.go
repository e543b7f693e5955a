// internal/service/fulfillment/infrastructure/gorm_pool.go
package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"codevend/internal/service/fulfillment/domain"
)

// GormCodePoolRepository 是 domain.CodePoolRepository 的 GORM 实现。
//
// 认领用条件 UPDATE（WHERE claimed = false）实现 compare-and-set：
// 受影响行数为 0 说明并发认领抢先，调用方换下一条即可，
// 同一条码绝不会被两个订单同时认领成功。
type GormCodePoolRepository struct {
	db *gorm.DB
}

func NewGormCodePoolRepository(db *gorm.DB) *GormCodePoolRepository {
	return &GormCodePoolRepository{db: db}
}

// ReadRange 按 position 升序返回子区间的全部条目。
func (r *GormCodePoolRepository) ReadRange(ctx context.Context, pool, subRange string) ([]domain.CodeEntry, error) {
	var models []CodeEntryModel
	err := r.db.WithContext(ctx).
		Where("pool = ? AND sub_range = ?", pool, subRange).
		Order("position ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStoreUnavailable, "read range %s/%s: %v", pool, subRange, err)
	}

	entries := make([]domain.CodeEntry, 0, len(models))
	for i := range models {
		entries = append(entries, ToDomainCodeEntry(&models[i]))
	}
	return entries, nil
}

// MarkClaimed 条件认领一条码。返回 false 表示它已经被别的订单占了。
func (r *GormCodePoolRepository) MarkClaimed(ctx context.Context, pool, subRange string, position int, orderID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&CodeEntryModel{}).
		Where("pool = ? AND sub_range = ? AND position = ? AND claimed = ?", pool, subRange, position, false).
		Updates(map[string]interface{}{
			"claimed":    true,
			"order_id":   orderID,
			"claimed_at": time.Now(),
		})
	if result.Error != nil {
		return false, errors.Wrapf(domain.ErrStoreUnavailable, "mark claimed %s/%s#%d: %v", pool, subRange, position, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// FindClaimedByOrder 返回此订单已认领的条目，按 position 升序。
func (r *GormCodePoolRepository) FindClaimedByOrder(ctx context.Context, orderID, pool, subRange string) ([]domain.CodeEntry, error) {
	var models []CodeEntryModel
	err := r.db.WithContext(ctx).
		Where("pool = ? AND sub_range = ? AND order_id = ?", pool, subRange, orderID).
		Order("position ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStoreUnavailable, "find claimed by order %s: %v", orderID, err)
	}

	entries := make([]domain.CodeEntry, 0, len(models))
	for i := range models {
		entries = append(entries, ToDomainCodeEntry(&models[i]))
	}
	return entries, nil
}

// Seed 向子区间追加一批未认领的码，position 接在现有最大值之后。
func (r *GormCodePoolRepository) Seed(ctx context.Context, pool, subRange string, values []string) error {
	if len(values) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPosition sql.NullInt64
		if err := tx.Model(&CodeEntryModel{}).
			Where("pool = ? AND sub_range = ?", pool, subRange).
			Select("MAX(position)").
			Scan(&maxPosition).Error; err != nil {
			return err
		}

		next := 1
		if maxPosition.Valid {
			next = int(maxPosition.Int64) + 1
		}

		models := make([]CodeEntryModel, 0, len(values))
		for i, value := range values {
			models = append(models, CodeEntryModel{
				Pool:     pool,
				SubRange: subRange,
				Position: next + i,
				Value:    value,
			})
		}
		return tx.Create(&models).Error
	})
	if err != nil {
		return errors.Wrapf(domain.ErrStoreUnavailable, "seed %s/%s: %v", pool, subRange, err)
	}
	return nil
}
