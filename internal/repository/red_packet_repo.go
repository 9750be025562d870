package repository

import (
	"context"
	"errors"

	"redpacket/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPacketNotFound = errors.New("礼物记录不存在")
	// ErrPacketConflict 红包状态在读取后被并发修改（CAS 未命中）
	ErrPacketConflict = errors.New("红包状态冲突")
)

type RedPacketRepository struct {
	db *gorm.DB
}

func NewRedPacketRepository(db *gorm.DB) *RedPacketRepository {
	return &RedPacketRepository{db: db}
}

func (r *RedPacketRepository) Create(ctx context.Context, tx *gorm.DB, packet *model.RedPacket) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(packet).Error
}

func (r *RedPacketRepository) CreateBatch(ctx context.Context, tx *gorm.DB, batch *model.RedPacketBatch) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(batch).Error
}

func (r *RedPacketRepository) GetByID(ctx context.Context, id int64) (*model.RedPacket, error) {
	var packet model.RedPacket
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&packet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPacketNotFound
		}
		return nil, err
	}
	return &packet, nil
}

// ListByIDs 按 id 升序加载一组红包（升序保证策略平局时取最小 id）
func (r *RedPacketRepository) ListByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*model.RedPacket, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if tx == nil {
		tx = r.db
	}
	var packets []*model.RedPacket
	err := tx.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&packets).Error
	return packets, err
}

// GetFirstIdle 取 id 最小的空闲红包，没有则返回 nil
func (r *RedPacketRepository) GetFirstIdle(ctx context.Context, tx *gorm.DB) (*model.RedPacket, error) {
	if tx == nil {
		tx = r.db
	}
	var packet model.RedPacket
	err := tx.WithContext(ctx).
		Where("status = ?", model.PacketStatusIdle).
		Order("id ASC").
		First(&packet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &packet, nil
}

func (r *RedPacketRepository) List(ctx context.Context, page, pageSize int) ([]*model.RedPacket, int64, error) {
	var packets []*model.RedPacket
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RedPacket{}).
		Where("status <> ?", model.PacketStatusDeleted)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&packets).Error

	return packets, total, err
}

// MarkBound 空闲红包进入绑定状态
// 条件更新保证并发绑定时只有一个同步操作能占用该红包
func (r *RedPacketRepository) MarkBound(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.RedPacket{}).
		Where("id = ? AND status = ?", id, model.PacketStatusIdle).
		Update("status", model.PacketStatusBound)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPacketConflict
	}
	return nil
}

// Release 解绑时把红包放回空闲
// 只有 bound 状态会被改写；红包若已被领取则保持不动（防御性空操作）
func (r *RedPacketRepository) Release(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.RedPacket{}).
		Where("id = ? AND status = ?", id, model.PacketStatusBound).
		Update("status", model.PacketStatusIdle).Error
}

// MarkClaimed 领取事务的核心写入
//
// 【关键点】WHERE 条件带上当前可领取状态集合，配合 RowsAffected 判断，
// 构成对红包行的乐观并发检查：同一红包的多个并发领取里只有一个 UPDATE
// 能命中，其余拿到 ErrPacketConflict 后由调用方重选或拒绝
func (r *RedPacketRepository) MarkClaimed(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.RedPacket{}).
		Where("id = ? AND status IN ?", id, []string{model.PacketStatusIdle, model.PacketStatusBound}).
		Update("status", model.PacketStatusClaimed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPacketConflict
	}
	return nil
}

// UpdateStatus 管理侧状态迁移
// WHERE 带上 fromStatus 做条件更新：读取到写入之间红包可能已被并发领取，
// 未命中返回 ErrPacketConflict，绝不覆盖 claimed 等终态
func (r *RedPacketRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.RedPacket{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPacketConflict
	}
	return nil
}

// UpdateFields 按列更新红包内容
// status 不允许出现在 values 里，状态迁移只走 Mark*/UpdateStatus 的条件更新
func (r *RedPacketRepository) UpdateFields(ctx context.Context, tx *gorm.DB, id int64, values map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.RedPacket{}).
		Where("id = ?", id).
		Updates(values).Error
}

// Delete 物理删除（仅非 claimed 红包走这条路径，绑定行由调用方先清理）
func (r *RedPacketRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Delete(&model.RedPacket{}, id).Error
}
