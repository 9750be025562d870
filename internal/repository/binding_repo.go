package repository

import (
	"context"
	"errors"

	"redpacket/internal/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ErrBindingConflict 红包已有绑定行占位（撞上唯一约束）
var ErrBindingConflict = errors.New("红包已被其他礼物绑定")

const mysqlDuplicateEntry = 1062

type BindingRepository struct {
	db *gorm.DB
}

func NewBindingRepository(db *gorm.DB) *BindingRepository {
	return &BindingRepository{db: db}
}

// Create 落一条 active 绑定行
// red_packet_id 的全表唯一约束是红包排他性的最后防线：MarkBound 之后、
// 本 INSERT 之前若别的事务抢先占位（含 claimed 红包的历史绑定行），
// 唯一键冲突在这里翻译成 ErrBindingConflict
func (r *BindingRepository) Create(ctx context.Context, tx *gorm.DB, giftID, packetID int64) error {
	if tx == nil {
		tx = r.db
	}
	binding := &model.GiftBinding{
		GiftQrcodeID: giftID,
		RedPacketID:  packetID,
		Status:       model.BindingStatusActive,
	}
	err := tx.WithContext(ctx).Create(binding).Error

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return ErrBindingConflict
	}
	return err
}

// ListActive 某礼物码当前的 active 绑定，按红包 id 升序
func (r *BindingRepository) ListActive(ctx context.Context, tx *gorm.DB, giftID int64) ([]*model.GiftBinding, error) {
	if tx == nil {
		tx = r.db
	}
	var bindings []*model.GiftBinding
	err := tx.WithContext(ctx).
		Where("gift_qrcode_id = ? AND status = ?", giftID, model.BindingStatusActive).
		Order("red_packet_id ASC").
		Find(&bindings).Error
	return bindings, err
}

// GetActiveByPacketID 红包当前的 active 绑定，没有则返回 nil
func (r *BindingRepository) GetActiveByPacketID(ctx context.Context, tx *gorm.DB, packetID int64) (*model.GiftBinding, error) {
	if tx == nil {
		tx = r.db
	}
	var binding model.GiftBinding
	err := tx.WithContext(ctx).
		Where("red_packet_id = ? AND status = ?", packetID, model.BindingStatusActive).
		First(&binding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &binding, nil
}

func (r *BindingRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Delete(&model.GiftBinding{}, id).Error
}

// MarkClaimedByGift 领取成功时把该礼物码的全部 active 绑定终结为 claimed
func (r *BindingRepository) MarkClaimedByGift(ctx context.Context, tx *gorm.DB, giftID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.GiftBinding{}).
		Where("gift_qrcode_id = ? AND status = ?", giftID, model.BindingStatusActive).
		Update("status", model.BindingStatusClaimed).Error
}

// CountActiveByGift 礼物码当前 active 绑定数（列表页展示用）
func (r *BindingRepository) CountActiveByGift(ctx context.Context, giftID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.GiftBinding{}).
		Where("gift_qrcode_id = ? AND status = ?", giftID, model.BindingStatusActive).
		Count(&count).Error
	return count, err
}
