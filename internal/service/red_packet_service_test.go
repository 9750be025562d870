package service

import (
	"context"
	"testing"

	"redpacket/internal/model"
	"redpacket/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func newPacketServiceWithDB(db *gorm.DB) *RedPacketService {
	return &RedPacketService{
		db:          db,
		packetRepo:  repository.NewRedPacketRepository(db),
		bindingRepo: repository.NewBindingRepository(db),
	}
}

func expectPacketByID(mock sqlmock.Sqlmock, id int64, status string) {
	rows := sqlmock.NewRows([]string{"id", "amount", "level", "status", "content_type"}).
		AddRow(id, "8.80", 1, status, model.ContentTypeURL)
	mock.ExpectQuery("SELECT (.+) FROM `red_packets`").WillReturnRows(rows)
}

func TestDisableRedPacket_Success(t *testing.T) {
	db, mock := newMockDB(t)
	s := newPacketServiceWithDB(db)

	expectPacketByID(mock, 7, model.PacketStatusBound)
	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusDisabled, sqlmock.AnyArg(), int64(7), model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.DisableRedPacket(context.Background(), 7)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisableRedPacket_ConflictWithConcurrentClaim(t *testing.T) {
	db, mock := newMockDB(t)
	s := newPacketServiceWithDB(db)

	// 读到 bound，但停用提交前红包已被并发领取：
	// 条件更新未命中，claimed 终态保持不变，操作报冲突
	expectPacketByID(mock, 7, model.PacketStatusBound)
	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusDisabled, sqlmock.AnyArg(), int64(7), model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DisableRedPacket(context.Background(), 7)
	assert.ErrorIs(t, err, repository.ErrPacketConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisableRedPacket_RejectsTerminalStatus(t *testing.T) {
	db, mock := newMockDB(t)
	s := newPacketServiceWithDB(db)

	// 已领取的红包在校验层就被拦下，不发任何 UPDATE
	expectPacketByID(mock, 7, model.PacketStatusClaimed)

	err := s.DisableRedPacket(context.Background(), 7)
	assert.ErrorIs(t, err, ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnableRedPacket_RestoresBoundWhenBindingExists(t *testing.T) {
	db, mock := newMockDB(t)
	s := newPacketServiceWithDB(db)

	expectPacketByID(mock, 7, model.PacketStatusDisabled)
	bindingRows := sqlmock.NewRows([]string{"id", "gift_qrcode_id", "red_packet_id", "status"}).
		AddRow(3, 1, 7, model.BindingStatusActive)
	mock.ExpectQuery("SELECT (.+) FROM `gift_bindings`").WillReturnRows(bindingRows)
	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusBound, sqlmock.AnyArg(), int64(7), model.PacketStatusDisabled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.EnableRedPacket(context.Background(), 7)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
