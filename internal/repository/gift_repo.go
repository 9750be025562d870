package repository

import (
	"context"
	"errors"

	"redpacket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrGiftNotFound      = errors.New("礼物二维码不存在")
	ErrGiftStatusInvalid = errors.New("礼物二维码状态不合法")
)

type GiftRepository struct {
	db *gorm.DB
}

func NewGiftRepository(db *gorm.DB) *GiftRepository {
	return &GiftRepository{db: db}
}

func (r *GiftRepository) Create(ctx context.Context, tx *gorm.DB, gift *model.GiftQrcode) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(gift).Error
}

func (r *GiftRepository) GetByID(ctx context.Context, id int64) (*model.GiftQrcode, error) {
	var gift model.GiftQrcode
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&gift).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGiftNotFound
		}
		return nil, err
	}
	return &gift, nil
}

// GetByIDForUpdate 在事务内对礼物码行加排它锁
// 领取事务从这里开始串行化：同一个码的并发领取在此排队
func (r *GiftRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.GiftQrcode, error) {
	var gift model.GiftQrcode
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&gift).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGiftNotFound
		}
		return nil, err
	}
	return &gift, nil
}

func (r *GiftRepository) GetByTokenPlain(ctx context.Context, token string) (*model.GiftQrcode, error) {
	var gift model.GiftQrcode
	err := r.db.WithContext(ctx).Where("token_plain = ?", token).First(&gift).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &gift, nil
}

func (r *GiftRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*model.GiftQrcode, error) {
	var gift model.GiftQrcode
	err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&gift).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &gift, nil
}

func (r *GiftRepository) List(ctx context.Context, limit int) ([]*model.GiftQrcode, error) {
	var gifts []*model.GiftQrcode
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&gifts).Error
	return gifts, err
}

// UpdateStatus 按状态机迁移礼物码状态
// WHERE 带上 fromStatus 做条件更新，未命中视为状态已被并发改写
func (r *GiftRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string) error {
	if !model.CanGiftTransitionTo(fromStatus, toStatus) {
		return ErrGiftStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.GiftQrcode{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrGiftStatusInvalid
	}
	return nil
}

// UpdateFields 按列更新礼物码内容
// status 不允许出现在 values 里，状态迁移只走 UpdateStatus 的条件更新
func (r *GiftRepository) UpdateFields(ctx context.Context, tx *gorm.DB, id int64, values map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.GiftQrcode{}).
		Where("id = ?", id).
		Updates(values).Error
}

func (r *GiftRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Delete(&model.GiftQrcode{}, id).Error
}
