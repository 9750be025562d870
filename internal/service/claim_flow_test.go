package service

import (
	"context"
	"testing"

	"redpacket/internal/config"
	"redpacket/internal/model"
	"redpacket/internal/repository"

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

func newClaimServiceWithDB(db *gorm.DB) *ClaimService {
	return &ClaimService{
		db: db,
		cfg: &config.Config{
			Kafka: config.KafkaConfig{
				Topic: config.KafkaTopicConfig{ClaimResult: "redpacket.claim.result"},
			},
			Security: config.SecurityConfig{
				SecretKey:           "test-secret",
				ContentTicketExpire: 30,
			},
		},
		giftRepo:     repository.NewGiftRepository(db),
		packetRepo:   repository.NewRedPacketRepository(db),
		bindingRepo:  repository.NewBindingRepository(db),
		claimLogRepo: repository.NewClaimLogRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
	}
}

func claimReq() *ClaimRequest {
	return &ClaimRequest{IP: "10.0.0.1", UA: "test-ua", HostBase: "http://localhost:8080"}
}

func expectGiftForUpdate(mock sqlmock.Sqlmock, id int64, status string) {
	rows := sqlmock.NewRows([]string{"id", "status", "binding_mode", "dispatch_strategy"}).
		AddRow(id, status, model.BindingModeManual, model.StrategyRandom)
	mock.ExpectQuery("SELECT (.+) FROM `gift_qrcodes`").WillReturnRows(rows)
}

func expectActiveBindings(mock sqlmock.Sqlmock, giftID int64, packetIDs ...int64) {
	rows := sqlmock.NewRows([]string{"id", "gift_qrcode_id", "red_packet_id", "status"})
	for i, packetID := range packetIDs {
		rows.AddRow(int64(i+1), giftID, packetID, model.BindingStatusActive)
	}
	mock.ExpectQuery("SELECT (.+) FROM `gift_bindings`").WillReturnRows(rows)
}

func expectPackets(mock sqlmock.Sqlmock, statusByID map[int64]string, ids ...int64) {
	rows := sqlmock.NewRows([]string{"id", "amount", "level", "status", "content_type", "content_value"})
	for _, id := range ids {
		rows.AddRow(id, "8.80", 1, statusByID[id], model.ContentTypeURL, "https://shop.example.com/1")
	}
	mock.ExpectQuery("SELECT (.+) FROM `red_packets`").WillReturnRows(rows)
}

// ============================================================
// 锁内复核与候选评估的拒绝分支
// ============================================================

func TestClaimInTx_RecheckRejections(t *testing.T) {
	testCases := []struct {
		name       string
		giftStatus string
		wantErr    error
	}{
		{name: "行锁后发现已领取", giftStatus: model.GiftStatusClaimed, wantErr: ErrGiftClaimed},
		{name: "行锁后发现已停用", giftStatus: model.GiftStatusDisabled, wantErr: ErrGiftDisabled},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			s := newClaimServiceWithDB(db)

			expectGiftForUpdate(mock, 1, tc.giftStatus)

			_, err := s.claimInTx(context.Background(), db, 1, claimReq(), "CLM1")
			assert.ErrorIs(t, err, tc.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestClaimInTx_NoBinding(t *testing.T) {
	db, mock := newMockDB(t)
	s := newClaimServiceWithDB(db)

	expectGiftForUpdate(mock, 1, model.GiftStatusActive)
	expectActiveBindings(mock, 1)

	_, err := s.claimInTx(context.Background(), db, 1, claimReq(), "CLM1")
	assert.ErrorIs(t, err, ErrNoBinding)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimInTx_DistinguishesDisabledFromMissing(t *testing.T) {
	t.Run("候选中有停用红包", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := newClaimServiceWithDB(db)

		expectGiftForUpdate(mock, 1, model.GiftStatusActive)
		expectActiveBindings(mock, 1, 5)
		expectPackets(mock, map[int64]string{5: model.PacketStatusDisabled}, 5)

		_, err := s.claimInTx(context.Background(), db, 1, claimReq(), "CLM1")
		assert.ErrorIs(t, err, ErrPacketDisabled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("候选红包记录丢失", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := newClaimServiceWithDB(db)

		expectGiftForUpdate(mock, 1, model.GiftStatusActive)
		expectActiveBindings(mock, 1, 5)
		expectPackets(mock, nil)

		_, err := s.claimInTx(context.Background(), db, 1, claimReq(), "CLM1")
		assert.ErrorIs(t, err, ErrPacketMissing)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// ============================================================
// 占有红包的竞争重选
// ============================================================

func TestClaimPacket_RetryExcludesLostPacket(t *testing.T) {
	db, mock := newMockDB(t)
	s := newClaimServiceWithDB(db)

	// amount_desc 先选中金额更大的 2 号；它输掉竞争后剔除重选，拿到 1 号
	candidates := []*model.RedPacket{
		packet(1, "5.00", 1),
		packet(2, "9.00", 1),
	}

	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusClaimed, sqlmock.AnyArg(), int64(2),
			model.PacketStatusIdle, model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusClaimed, sqlmock.AnyArg(), int64(1),
			model.PacketStatusIdle, model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 1))

	picked, err := s.claimPacket(context.Background(), db, model.StrategyAmountDesc, candidates)
	require.NoError(t, err)
	assert.Equal(t, int64(1), picked.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimPacket_RetryAlsoLoses(t *testing.T) {
	db, mock := newMockDB(t)
	s := newClaimServiceWithDB(db)

	candidates := []*model.RedPacket{
		packet(1, "5.00", 1),
		packet(2, "9.00", 1),
	}

	// 两次条件更新都未命中：只重选一次，之后拒绝
	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusClaimed, sqlmock.AnyArg(), int64(2),
			model.PacketStatusIdle, model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusClaimed, sqlmock.AnyArg(), int64(1),
			model.PacketStatusIdle, model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.claimPacket(context.Background(), db, model.StrategyAmountDesc, candidates)
	assert.ErrorIs(t, err, ErrPacketTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimPacket_SingleCandidateLost(t *testing.T) {
	db, mock := newMockDB(t)
	s := newClaimServiceWithDB(db)

	candidates := []*model.RedPacket{packet(7, "5.00", 1)}

	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusClaimed, sqlmock.AnyArg(), int64(7),
			model.PacketStatusIdle, model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.claimPacket(context.Background(), db, model.StrategyRandom, candidates)
	assert.ErrorIs(t, err, ErrPacketTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================
// 成功路径：三方状态 + 审计 + 事件同事务落盘
// ============================================================

func TestClaimInTx_Success(t *testing.T) {
	db, mock := newMockDB(t)
	s := newClaimServiceWithDB(db)

	expectGiftForUpdate(mock, 1, model.GiftStatusActive)
	expectActiveBindings(mock, 1, 5)
	expectPackets(mock, map[int64]string{5: model.PacketStatusIdle}, 5)

	// 红包占有
	mock.ExpectExec("UPDATE `red_packets` SET").
		WithArgs(model.PacketStatusClaimed, sqlmock.AnyArg(), int64(5),
			model.PacketStatusIdle, model.PacketStatusBound).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// 礼物码终结
	mock.ExpectExec("UPDATE `gift_qrcodes` SET").
		WithArgs(model.GiftStatusClaimed, sqlmock.AnyArg(), int64(1), model.GiftStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// 绑定终结
	mock.ExpectExec("UPDATE `gift_bindings` SET").
		WithArgs(model.BindingStatusClaimed, sqlmock.AnyArg(), int64(1), model.BindingStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// 成功审计行与发件箱事件同事务
	mock.ExpectExec("INSERT INTO `gift_claim_logs`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `outbox_message`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	picked, err := s.claimInTx(context.Background(), db, 1, claimReq(), "CLM1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), picked.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
