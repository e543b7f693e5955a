// internal/service/fulfillment/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"

	"codevend/internal/service/fulfillment/domain"
)

// CodeEntryModel 对应数据库中的 code_entries 表。
// (pool, sub_range, position) 唯一确定一条码，claimed 只会从 0 置为 1。
type CodeEntryModel struct {
	ID        uint           `gorm:"primarykey"`
	Pool      string         `gorm:"size:64;uniqueIndex:idx_pool_range_pos,priority:1;not null"`
	SubRange  string         `gorm:"size:32;column:sub_range;uniqueIndex:idx_pool_range_pos,priority:2;not null"`
	Position  int            `gorm:"uniqueIndex:idx_pool_range_pos,priority:3;not null"`
	Value     string         `gorm:"size:255;not null"`
	Claimed   bool           `gorm:"not null;default:false"`
	OrderID   sql.NullString `gorm:"size:64;index"`
	ClaimedAt sql.NullTime
}

// TableName 指定 GORM 应该使用的表名。
func (CodeEntryModel) TableName() string {
	return "code_entries"
}

// ToDomainCodeEntry 将数据库模型转换为领域模型。
func ToDomainCodeEntry(m *CodeEntryModel) domain.CodeEntry {
	entry := domain.CodeEntry{
		Pool:     m.Pool,
		SubRange: m.SubRange,
		Position: m.Position,
		Value:    m.Value,
		Claimed:  m.Claimed,
	}
	if m.OrderID.Valid {
		entry.OrderID = m.OrderID.String
	}
	if m.ClaimedAt.Valid {
		entry.ClaimedAt = m.ClaimedAt.Time
	}
	return entry
}
