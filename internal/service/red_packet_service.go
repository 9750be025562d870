package service

import (
	"context"
	"fmt"
	"log"

	"redpacket/internal/config"
	"redpacket/internal/infrastructure/storage"
	"redpacket/internal/model"
	"redpacket/internal/repository"
	"redpacket/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RedPacketService 红包（奖励单元）管理
type RedPacketService struct {
	db          *gorm.DB
	cfg         *config.Config
	channels    *storage.Channels
	packetRepo  *repository.RedPacketRepository
	bindingRepo *repository.BindingRepository
}

func NewRedPacketService(db *gorm.DB, cfg *config.Config, channels *storage.Channels) *RedPacketService {
	return &RedPacketService{
		db:          db,
		cfg:         cfg,
		channels:    channels,
		packetRepo:  repository.NewRedPacketRepository(db),
		bindingRepo: repository.NewBindingRepository(db),
	}
}

// RedPacketInput 创建/更新红包的入参
// Count 大于 1 时按同一批次复制创建（批量导入等额红包）
type RedPacketInput struct {
	Title        string `json:"title" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Level        int    `json:"level"`
	ContentType  string `json:"content_type"`
	ContentValue string `json:"content_value"`
	Count        int    `json:"count"`
}

func (in *RedPacketInput) parse() (decimal.Decimal, error) {
	if in.ContentType == "" {
		in.ContentType = model.ContentTypeURL
	}
	switch in.ContentType {
	case model.ContentTypeURL, model.ContentTypeText, model.ContentTypeQrImage:
	default:
		return decimal.Zero, validationErrorf("内容类型不合法: %s", in.ContentType)
	}
	if in.Level <= 0 {
		in.Level = 1
	}

	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return decimal.Zero, validationErrorf("金额格式不合法: %s", in.Amount)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, validationErrorf("金额必须大于 0")
	}
	if in.ContentType == model.ContentTypeURL && in.ContentValue == "" {
		return decimal.Zero, validationErrorf("url 类型红包必须提供跳转地址")
	}
	return amount, nil
}

// CreateRedPackets 创建红包，Count > 1 时归入同一批次
func (s *RedPacketService) CreateRedPackets(ctx context.Context, input *RedPacketInput) ([]*model.RedPacket, error) {
	amount, err := input.parse()
	if err != nil {
		return nil, err
	}

	count := input.Count
	if count <= 0 {
		count = 1
	}
	if count > 1000 {
		return nil, validationErrorf("单批次最多创建 1000 个红包")
	}

	var packets []*model.RedPacket
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var batchID int64
		if count > 1 {
			batch := &model.RedPacketBatch{
				BatchNo: idgen.GenerateBatchNo(),
				Source:  "manual",
			}
			if err := s.packetRepo.CreateBatch(ctx, tx, batch); err != nil {
				return fmt.Errorf("创建红包批次失败: %w", err)
			}
			batchID = batch.ID
		}

		for i := 0; i < count; i++ {
			packet := &model.RedPacket{
				BatchID:      batchID,
				Title:        input.Title,
				Amount:       amount,
				Level:        input.Level,
				ContentType:  input.ContentType,
				ContentValue: input.ContentValue,
				Status:       model.PacketStatusIdle,
			}
			// url 类型内容即跳转地址，冗余一份便于列表展示
			if packet.ContentType == model.ContentTypeURL {
				packet.ClaimURL = input.ContentValue
			}
			if err := s.packetRepo.Create(ctx, tx, packet); err != nil {
				return fmt.Errorf("创建红包失败: %w", err)
			}
			packets = append(packets, packet)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[RedPacket] 创建红包: count=%d, amount=%s", len(packets), amount.StringFixed(2))
	return packets, nil
}

func (s *RedPacketService) GetRedPacket(ctx context.Context, id int64) (*model.RedPacket, error) {
	return s.packetRepo.GetByID(ctx, id)
}

func (s *RedPacketService) ListRedPackets(ctx context.Context, page, pageSize int) ([]*model.RedPacket, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 20
	}
	return s.packetRepo.List(ctx, page, pageSize)
}

// UpdateRedPacket 更新红包内容
// 已领取/已删除的红包只读；绑定关系不在这里变动
func (s *RedPacketService) UpdateRedPacket(ctx context.Context, id int64, input *RedPacketInput) (*model.RedPacket, error) {
	packet, err := s.packetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if packet.Status == model.PacketStatusClaimed || packet.Status == model.PacketStatusDeleted {
		return nil, validationErrorf("红包当前状态 %s 不可修改", packet.Status)
	}

	amount, err := input.parse()
	if err != nil {
		return nil, err
	}

	packet.Title = input.Title
	packet.Amount = amount
	packet.Level = input.Level
	packet.ContentType = input.ContentType
	packet.ContentValue = input.ContentValue
	if packet.ContentType == model.ContentTypeURL {
		packet.ClaimURL = input.ContentValue
	} else {
		packet.ClaimURL = ""
	}

	// 按列更新，status 不随行回写（读取后可能已被并发领取）
	err = s.packetRepo.UpdateFields(ctx, nil, packet.ID, map[string]interface{}{
		"title":         packet.Title,
		"amount":        packet.Amount,
		"level":         packet.Level,
		"content_type":  packet.ContentType,
		"content_value": packet.ContentValue,
		"claim_url":     packet.ClaimURL,
	})
	if err != nil {
		return nil, fmt.Errorf("保存红包失败: %w", err)
	}
	return packet, nil
}

// UploadContentImage 上传 qr_image 类型红包的内容图片
func (s *RedPacketService) UploadContentImage(ctx context.Context, id int64, data []byte, contentType string) (*model.RedPacket, error) {
	packet, err := s.packetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if packet.ContentType != model.ContentTypeQrImage {
		return nil, validationErrorf("仅 qr_image 类型红包支持上传内容图片")
	}
	if packet.Status == model.PacketStatusClaimed || packet.Status == model.PacketStatusDeleted {
		return nil, validationErrorf("红包当前状态 %s 不可修改", packet.Status)
	}

	key := fmt.Sprintf("packets/%d/content.png", packet.ID)
	channelID, url, err := s.channels.Upload(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("上传内容图片失败: %w", err)
	}

	packet.ContentImageKey = key
	packet.ContentImageURL = url
	err = s.packetRepo.UpdateFields(ctx, nil, packet.ID, map[string]interface{}{
		"content_image_key": packet.ContentImageKey,
		"content_image_url": packet.ContentImageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("保存红包失败: %w", err)
	}

	log.Printf("[RedPacket] 上传内容图片: id=%d, channel=%s", packet.ID, channelID)
	return packet, nil
}

// DisableRedPacket 停用红包
// 绑定关系保留，领取评估时以"红包已停用"拒绝
func (s *RedPacketService) DisableRedPacket(ctx context.Context, id int64) error {
	packet, err := s.packetRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !model.PacketClaimable(packet.Status) {
		return validationErrorf("红包当前状态 %s 不可停用", packet.Status)
	}
	// 条件更新：若停用与领取撞车，领取先提交则这里报冲突，claimed 不被覆盖
	return s.packetRepo.UpdateStatus(ctx, nil, id, packet.Status, model.PacketStatusDisabled)
}

// EnableRedPacket 恢复停用的红包
// 仍挂着 active 绑定的回到 bound，否则回到 idle
func (s *RedPacketService) EnableRedPacket(ctx context.Context, id int64) error {
	packet, err := s.packetRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if packet.Status != model.PacketStatusDisabled {
		return validationErrorf("红包当前状态 %s 不可启用", packet.Status)
	}

	binding, err := s.bindingRepo.GetActiveByPacketID(ctx, nil, id)
	if err != nil {
		return err
	}
	target := model.PacketStatusIdle
	if binding != nil {
		target = model.PacketStatusBound
	}
	return s.packetRepo.UpdateStatus(ctx, nil, id, model.PacketStatusDisabled, target)
}

// DeleteRedPacket 删除红包
// 已领取的只做逻辑删除（审计日志还引用它），其余先解除绑定再物理删除
func (s *RedPacketService) DeleteRedPacket(ctx context.Context, id int64) error {
	packet, err := s.packetRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if packet.Status == model.PacketStatusDeleted {
		return nil
	}
	if packet.Status == model.PacketStatusClaimed {
		return s.packetRepo.UpdateStatus(ctx, nil, id, model.PacketStatusClaimed, model.PacketStatusDeleted)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		binding, err := s.bindingRepo.GetActiveByPacketID(ctx, tx, id)
		if err != nil {
			return err
		}
		if binding != nil {
			if err := s.bindingRepo.Delete(ctx, tx, binding.ID); err != nil {
				return fmt.Errorf("移除绑定失败: %w", err)
			}
		}
		return s.packetRepo.Delete(ctx, tx, id)
	})
}
