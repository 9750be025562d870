package repository

import (
	"context"

	"redpacket/internal/model"

	"gorm.io/gorm"
)

type ClaimLogRepository struct {
	db *gorm.DB
}

func NewClaimLogRepository(db *gorm.DB) *ClaimLogRepository {
	return &ClaimLogRepository{db: db}
}

func (r *ClaimLogRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.GiftClaimLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// ClaimLogQuery 审计日志查询条件
type ClaimLogQuery struct {
	GiftID   int64
	PacketID int64
	Result   string
	Keyword  string // 模糊匹配 reason / ip
	Page     int
	PageSize int
}

func (r *ClaimLogRepository) List(ctx context.Context, q ClaimLogQuery) ([]*model.GiftClaimLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.GiftClaimLog{})

	if q.GiftID > 0 {
		query = query.Where("gift_qrcode_id = ?", q.GiftID)
	}
	if q.PacketID > 0 {
		query = query.Where("red_packet_id = ?", q.PacketID)
	}
	if q.Result != "" {
		query = query.Where("result = ?", q.Result)
	}
	if q.Keyword != "" {
		like := "%" + q.Keyword + "%"
		query = query.Where("reason LIKE ? OR ip LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	var logs []*model.GiftClaimLog
	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error

	return logs, total, err
}

func (r *ClaimLogRepository) CreateAccessLog(ctx context.Context, entry *model.AccessLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
