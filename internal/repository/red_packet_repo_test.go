package repository

import (
	"context"
	"testing"

	"redpacket/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestMarkClaimed_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRedPacketRepository(db)

	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusClaimed, sqlmock.AnyArg(), int64(7),
			model.PacketStatusIdle, model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkClaimed(context.Background(), nil, 7)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkClaimed_ConflictWhenAlreadyClaimed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRedPacketRepository(db)

	// 并发领取里输掉的一方：UPDATE 条件未命中任何行
	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusClaimed, sqlmock.AnyArg(), int64(7),
			model.PacketStatusIdle, model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkClaimed(context.Background(), nil, 7)
	assert.ErrorIs(t, err, ErrPacketConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkBound_ConflictWhenNotIdle(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRedPacketRepository(db)

	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusBound, sqlmock.AnyArg(), int64(3), model.PacketStatusIdle).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkBound(context.Background(), nil, 3)
	assert.ErrorIs(t, err, ErrPacketConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelease_NoopWhenNotBound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRedPacketRepository(db)

	// 红包已被领取时解绑不回写状态，也不报错
	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusIdle, sqlmock.AnyArg(), int64(3), model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Release(context.Background(), nil, 3)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPacketUpdateStatus_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRedPacketRepository(db)

	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusDisabled, sqlmock.AnyArg(), int64(7), model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), nil, 7, model.PacketStatusBound, model.PacketStatusDisabled)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPacketUpdateStatus_ConflictWhenStatusMoved(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRedPacketRepository(db)

	// 读取时还是 bound，提交前已被并发领取改成 claimed：条件未命中，终态不被覆盖
	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusDisabled, sqlmock.AnyArg(), int64(7), model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), nil, 7, model.PacketStatusBound, model.PacketStatusDisabled)
	assert.ErrorIs(t, err, ErrPacketConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGiftUpdateStatus_RejectsInvalidTransition(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewGiftRepository(db)

	// claimed 是终态，状态机直接拦下，不产生任何 SQL
	err := repo.UpdateStatus(context.Background(), nil, 1, model.GiftStatusClaimed, model.GiftStatusActive)
	assert.ErrorIs(t, err, ErrGiftStatusInvalid)
}

func TestGiftUpdateStatus_ConflictWhenStatusMoved(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGiftRepository(db)

	mock.ExpectExec("UPDATE `gift_qrcodes` SET").
		WithArgs(model.GiftStatusClaimed, sqlmock.AnyArg(), int64(1), model.GiftStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), nil, 1, model.GiftStatusActive, model.GiftStatusClaimed)
	assert.ErrorIs(t, err, ErrGiftStatusInvalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}
