package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"redpacket/internal/config"
	"redpacket/internal/infrastructure/storage"
	"redpacket/internal/model"
	"redpacket/internal/repository"
	"redpacket/internal/security"
	"redpacket/pkg/qrcode"

	"gorm.io/gorm"
)

// GiftService 礼物二维码管理
type GiftService struct {
	db           *gorm.DB
	cfg          *config.Config
	channels     *storage.Channels
	giftRepo     *repository.GiftRepository
	packetRepo   *repository.RedPacketRepository
	bindingRepo  *repository.BindingRepository
	claimLogRepo *repository.ClaimLogRepository
	bindingSvc   *BindingService
}

func NewGiftService(db *gorm.DB, cfg *config.Config, channels *storage.Channels) *GiftService {
	return &GiftService{
		db:           db,
		cfg:          cfg,
		channels:     channels,
		giftRepo:     repository.NewGiftRepository(db),
		packetRepo:   repository.NewRedPacketRepository(db),
		bindingRepo:  repository.NewBindingRepository(db),
		claimLogRepo: repository.NewClaimLogRepository(db),
		bindingSvc:   NewBindingService(db),
	}
}

// GiftInput 创建/更新礼物二维码的入参
type GiftInput struct {
	Title            string     `json:"title" binding:"required"`
	BindingMode      string     `json:"binding_mode"`
	DispatchStrategy string     `json:"dispatch_strategy"`
	ActivateAt       *time.Time `json:"activate_at"`
	ExpireAt         *time.Time `json:"expire_at"`
	StyleType        string     `json:"style_type"`
	StyleConfig      string     `json:"style_config"`
	RedPacketIDs     []int64    `json:"red_packet_ids"`
}

func (in *GiftInput) normalize() {
	if in.BindingMode == "" {
		in.BindingMode = model.BindingModeManual
	}
	if in.DispatchStrategy == "" {
		in.DispatchStrategy = model.StrategyRandom
	}
	if in.StyleType == "" {
		in.StyleType = "festival"
	}
}

func (in *GiftInput) validate() error {
	if in.BindingMode != model.BindingModeManual && in.BindingMode != model.BindingModeAuto {
		return validationErrorf("绑定模式不合法: %s", in.BindingMode)
	}
	if !model.IsValidStrategy(in.DispatchStrategy) {
		return validationErrorf("派发策略不合法: %s", in.DispatchStrategy)
	}
	if in.ActivateAt != nil && in.ExpireAt != nil && !in.ActivateAt.Before(*in.ExpireAt) {
		return validationErrorf("激活时间必须早于过期时间")
	}
	return nil
}

// CreateGift 创建礼物二维码
// 先生成口令并渲染上传二维码图片，再在一个事务里落礼物行与绑定集合；
// 事务失败时尽力回收已上传的图片
func (s *GiftService) CreateGift(ctx context.Context, input *GiftInput) (*model.GiftQrcode, error) {
	input.normalize()
	if err := input.validate(); err != nil {
		return nil, err
	}

	token := security.NewGiftToken()
	tokenHash := security.HashGiftToken(s.cfg.Security.SecretKey, token)
	claimURL := buildClaimURL(s.cfg.Server.PublicBaseURL, token)

	channelID, objectKey, imageURL, err := s.renderAndUpload(ctx, claimURL, tokenHash)
	if err != nil {
		return nil, err
	}

	gift := &model.GiftQrcode{
		Title:            input.Title,
		Status:           model.GiftStatusDraft,
		TokenPlain:       token,
		TokenHash:        tokenHash,
		ActivateAt:       input.ActivateAt,
		ExpireAt:         input.ExpireAt,
		BindingMode:      input.BindingMode,
		DispatchStrategy: input.DispatchStrategy,
		StyleType:        input.StyleType,
		StyleConfig:      input.StyleConfig,
		StorageChannelID: channelID,
		ObjectKey:        objectKey,
		ImageURL:         imageURL,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.giftRepo.Create(ctx, tx, gift); err != nil {
			return fmt.Errorf("创建礼物二维码失败: %w", err)
		}
		return s.bindingSvc.SyncTx(ctx, tx, gift.ID, gift.BindingMode, input.RedPacketIDs)
	})
	if err != nil {
		s.removeObject(ctx, channelID, objectKey)
		return nil, err
	}

	log.Printf("[Gift] 创建礼物二维码: id=%d, mode=%s, strategy=%s, channel=%s",
		gift.ID, gift.BindingMode, gift.DispatchStrategy, channelID)
	return gift, nil
}

// UpdateGift 更新礼物二维码并同步绑定集合
// 已领取的礼物完全只读；token 与图片不在此轮换（见 RegenerateQrcode）
func (s *GiftService) UpdateGift(ctx context.Context, id int64, input *GiftInput) (*model.GiftQrcode, error) {
	gift, err := s.giftRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if gift.Status == model.GiftStatusClaimed {
		return nil, validationErrorf("已领取的礼物不可修改")
	}

	input.normalize()
	if err := input.validate(); err != nil {
		return nil, err
	}

	gift.Title = input.Title
	gift.BindingMode = input.BindingMode
	gift.DispatchStrategy = input.DispatchStrategy
	gift.ActivateAt = input.ActivateAt
	gift.ExpireAt = input.ExpireAt
	gift.StyleType = input.StyleType
	gift.StyleConfig = input.StyleConfig

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 按列更新，status 不随行回写（读取后可能已被并发领取）
		err := s.giftRepo.UpdateFields(ctx, tx, gift.ID, map[string]interface{}{
			"title":             gift.Title,
			"binding_mode":      gift.BindingMode,
			"dispatch_strategy": gift.DispatchStrategy,
			"activate_at":       gift.ActivateAt,
			"expire_at":         gift.ExpireAt,
			"style_type":        gift.StyleType,
			"style_config":      gift.StyleConfig,
		})
		if err != nil {
			return fmt.Errorf("保存礼物二维码失败: %w", err)
		}
		return s.bindingSvc.SyncTx(ctx, tx, gift.ID, gift.BindingMode, input.RedPacketIDs)
	})
	if err != nil {
		return nil, err
	}
	return gift, nil
}

// ActivateGift 上架（draft/disabled -> active）
func (s *GiftService) ActivateGift(ctx context.Context, id int64) error {
	return s.transitionGift(ctx, id, model.GiftStatusActive)
}

// DisableGift 停用礼物码，领取入口立即关闭
func (s *GiftService) DisableGift(ctx context.Context, id int64) error {
	return s.transitionGift(ctx, id, model.GiftStatusDisabled)
}

func (s *GiftService) transitionGift(ctx context.Context, id int64, toStatus string) error {
	gift, err := s.giftRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !model.CanGiftTransitionTo(gift.Status, toStatus) {
		return validationErrorf("礼物当前状态 %s 不能变更为 %s", gift.Status, toStatus)
	}
	return s.giftRepo.UpdateStatus(ctx, nil, id, gift.Status, toStatus)
}

// DeleteGift 删除礼物二维码
// 先释放其占用的全部红包再删主行；已领取的礼物保留作审计
func (s *GiftService) DeleteGift(ctx context.Context, id int64) error {
	gift, err := s.giftRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if gift.Status == model.GiftStatusClaimed {
		return validationErrorf("已领取的礼物不可删除")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		bindings, err := s.bindingRepo.ListActive(ctx, tx, gift.ID)
		if err != nil {
			return fmt.Errorf("查询绑定失败: %w", err)
		}
		for _, binding := range bindings {
			if err := s.bindingRepo.Delete(ctx, tx, binding.ID); err != nil {
				return fmt.Errorf("移除绑定失败: %w", err)
			}
			if err := s.packetRepo.Release(ctx, tx, binding.RedPacketID); err != nil {
				return fmt.Errorf("释放红包失败: %w", err)
			}
		}
		return s.giftRepo.Delete(ctx, tx, gift.ID)
	})
	if err != nil {
		return err
	}

	s.removeObject(ctx, gift.StorageChannelID, gift.ObjectKey)
	return nil
}

// RegenerateQrcode 轮换领取口令并重新生成二维码图片
// 旧口令与旧图片随之作废，适用于二维码泄露后的止损
func (s *GiftService) RegenerateQrcode(ctx context.Context, id int64) (*model.GiftQrcode, error) {
	gift, err := s.giftRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if gift.Status == model.GiftStatusClaimed {
		return nil, validationErrorf("已领取的礼物不可重新生成二维码")
	}

	oldChannelID, oldKey := gift.StorageChannelID, gift.ObjectKey

	token := security.NewGiftToken()
	tokenHash := security.HashGiftToken(s.cfg.Security.SecretKey, token)
	claimURL := buildClaimURL(s.cfg.Server.PublicBaseURL, token)

	channelID, objectKey, imageURL, err := s.renderAndUpload(ctx, claimURL, tokenHash)
	if err != nil {
		return nil, err
	}

	gift.TokenPlain = token
	gift.TokenHash = tokenHash
	gift.StorageChannelID = channelID
	gift.ObjectKey = objectKey
	gift.ImageURL = imageURL

	err = s.giftRepo.UpdateFields(ctx, nil, gift.ID, map[string]interface{}{
		"token_plain":        gift.TokenPlain,
		"token_hash":         gift.TokenHash,
		"storage_channel_id": gift.StorageChannelID,
		"object_key":         gift.ObjectKey,
		"image_url":          gift.ImageURL,
	})
	if err != nil {
		s.removeObject(ctx, channelID, objectKey)
		return nil, fmt.Errorf("保存礼物二维码失败: %w", err)
	}

	if oldKey != "" {
		s.removeObject(ctx, oldChannelID, oldKey)
	}
	log.Printf("[Gift] 重新生成二维码: id=%d, channel=%s", gift.ID, channelID)
	return gift, nil
}

// GiftListItem 列表页视图
type GiftListItem struct {
	*model.GiftQrcode
	ClaimURL       string `json:"claim_url"`
	ActiveBindings int64  `json:"active_bindings"`
}

func (s *GiftService) ListGifts(ctx context.Context, limit int) ([]*GiftListItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	gifts, err := s.giftRepo.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	items := make([]*GiftListItem, 0, len(gifts))
	for _, gift := range gifts {
		count, err := s.bindingRepo.CountActiveByGift(ctx, gift.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, &GiftListItem{
			GiftQrcode:     gift,
			ClaimURL:       buildClaimURL(s.cfg.Server.PublicBaseURL, gift.TokenPlain),
			ActiveBindings: count,
		})
	}
	return items, nil
}

// GiftDetail 详情视图：礼物码 + 当前绑定的红包
type GiftDetail struct {
	*model.GiftQrcode
	ClaimURL string             `json:"claim_url"`
	Packets  []*model.RedPacket `json:"packets"`
}

func (s *GiftService) GetGift(ctx context.Context, id int64) (*GiftDetail, error) {
	gift, err := s.giftRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	bindings, err := s.bindingRepo.ListActive(ctx, nil, gift.ID)
	if err != nil {
		return nil, err
	}
	packetIDs := make([]int64, 0, len(bindings))
	for _, b := range bindings {
		packetIDs = append(packetIDs, b.RedPacketID)
	}
	packets, err := s.packetRepo.ListByIDs(ctx, nil, packetIDs)
	if err != nil {
		return nil, err
	}

	return &GiftDetail{
		GiftQrcode: gift,
		ClaimURL:   buildClaimURL(s.cfg.Server.PublicBaseURL, gift.TokenPlain),
		Packets:    packets,
	}, nil
}

func (s *GiftService) ListClaimLogs(ctx context.Context, q repository.ClaimLogQuery) ([]*model.GiftClaimLog, int64, error) {
	return s.claimLogRepo.List(ctx, q)
}

// ExportClaimLogsCSV 导出审计日志（最多一万行，防止内存被超大活动拖垮）
func (s *GiftService) ExportClaimLogsCSV(ctx context.Context, q repository.ClaimLogQuery) ([]byte, error) {
	q.Page = 1
	q.PageSize = 10000
	logs, _, err := s.claimLogRepo.List(ctx, q)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "gift_qrcode_id", "red_packet_id", "result", "reason", "dispatch_strategy", "ip", "ua", "created_at"})
	for _, entry := range logs {
		packetID := ""
		if entry.RedPacketID != nil {
			packetID = strconv.FormatInt(*entry.RedPacketID, 10)
		}
		_ = w.Write([]string{
			strconv.FormatInt(entry.ID, 10),
			strconv.FormatInt(entry.GiftQrcodeID, 10),
			packetID,
			entry.Result,
			entry.Reason,
			entry.DispatchStrategy,
			entry.IP,
			entry.UA,
			entry.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *GiftService) renderAndUpload(ctx context.Context, claimURL, tokenHash string) (channelID, objectKey, imageURL string, err error) {
	png, err := qrcode.RenderPNG(claimURL, 0)
	if err != nil {
		return "", "", "", fmt.Errorf("渲染二维码失败: %w", err)
	}

	objectKey = giftObjectKey(tokenHash)
	channelID, imageURL, err = s.channels.Upload(ctx, objectKey, png, "image/png")
	if err != nil {
		return "", "", "", fmt.Errorf("上传二维码图片失败: %w", err)
	}
	return channelID, objectKey, imageURL, nil
}

// removeObject 清理存储对象，失败只记录
func (s *GiftService) removeObject(ctx context.Context, channelID, key string) {
	if key == "" {
		return
	}
	if err := s.channels.Delete(ctx, channelID, key); err != nil {
		log.Printf("[Gift] 清理二维码图片失败: channel=%s, key=%s, err=%v", channelID, key, err)
	}
}

// buildClaimURL 礼物码对外的领取地址
func buildClaimURL(base, token string) string {
	return strings.TrimRight(base, "/") + "/r/" + token
}

// giftObjectKey 二维码图片对象键，按年月分目录
func giftObjectKey(tokenHash string) string {
	return fmt.Sprintf("gifts/%s/%s.png", time.Now().UTC().Format("2006/01"), tokenHash[:16])
}
