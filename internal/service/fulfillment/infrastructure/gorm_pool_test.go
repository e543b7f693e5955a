package infrastructure_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"codevend/internal/service/fulfillment/domain"
	"codevend/internal/service/fulfillment/infrastructure"
)

func newMockRepo(t *testing.T) (*infrastructure.GormCodePoolRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	return infrastructure.NewGormCodePoolRepository(db), mock
}

func entryColumns() []string {
	return []string{"id", "pool", "sub_range", "position", "value", "claimed", "order_id", "claimed_at"}
}

func TestGormCodePoolRepository_ReadRange(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows(entryColumns()).
		AddRow(1, "Game1", "A:B", 0, "CODE-1", false, nil, nil).
		AddRow(2, "Game1", "A:B", 1, "CODE-2", true, "order-9", nil)

	mock.ExpectQuery("SELECT \\* FROM `code_entries` WHERE pool = \\? AND sub_range = \\? ORDER BY position ASC").
		WithArgs("Game1", "A:B").
		WillReturnRows(rows)

	entries, err := repo.ReadRange(context.Background(), "Game1", "A:B")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "CODE-1", entries[0].Value)
	assert.False(t, entries[0].Claimed)
	assert.True(t, entries[1].Claimed)
	assert.Equal(t, "order-9", entries[1].OrderID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormCodePoolRepository_MarkClaimed(t *testing.T) {
	t.Run("claims an unclaimed entry", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `code_entries` SET").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		claimed, err := repo.MarkClaimed(context.Background(), "Game1", "A:B", 0, "order-1")
		require.NoError(t, err)
		assert.True(t, claimed)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loses to a concurrent claim", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `code_entries` SET").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		claimed, err := repo.MarkClaimed(context.Background(), "Game1", "A:B", 0, "order-1")
		require.NoError(t, err)
		assert.False(t, claimed, "zero rows affected means another order got there first")
	})
}

func TestGormCodePoolRepository_FindClaimedByOrder(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows(entryColumns()).
		AddRow(1, "Game1", "A:B", 0, "CODE-1", true, "order-1", nil)

	mock.ExpectQuery("SELECT \\* FROM `code_entries` WHERE pool = \\? AND sub_range = \\? AND order_id = \\? ORDER BY position ASC").
		WithArgs("Game1", "A:B", "order-1").
		WillReturnRows(rows)

	entries, err := repo.FindClaimedByOrder(context.Background(), "order-1", "Game1", "A:B")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "CODE-1", entries[0].Value)
}

func TestGormCodePoolRepository_Seed(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT MAX\\(position\\) FROM `code_entries`").
		WithArgs("Game1", "A:B").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(4))
	mock.ExpectExec("INSERT INTO `code_entries`").
		WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectCommit()

	err := repo.Seed(context.Background(), "Game1", "A:B", []string{"CODE-5", "CODE-6"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormCodePoolRepository_SeedEmptyIsNoop(t *testing.T) {
	repo, mock := newMockRepo(t)
	require.NoError(t, repo.Seed(context.Background(), "Game1", "A:B", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormCodePoolRepository_OutageMapsToStoreUnavailable(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT \\* FROM `code_entries`").
		WillReturnError(assert.AnError)

	_, err := repo.ReadRange(context.Background(), "Game1", "A:B")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
