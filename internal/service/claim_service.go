package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"redpacket/internal/config"
	"redpacket/internal/infrastructure/lock"
	"redpacket/internal/model"
	"redpacket/internal/repository"
	"redpacket/internal/security"
	"redpacket/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// 审计日志的拒绝原因码
const (
	ReasonNotActive      = "未到激活时间"
	ReasonExpired        = "已过期"
	ReasonCodeClaimed    = "该码已领取"
	ReasonCodeDisabled   = "二维码已停用"
	ReasonNoBinding      = "未绑定红包"
	ReasonPacketDisabled = "红包已停用"
	ReasonPacketMissing  = "红包不存在"
	ReasonPacketTaken    = "红包已被领取"
)

// 领取流程对外的拒绝错误，handler 据此决定展示方式
var (
	ErrGiftNotActive  = errors.New("礼物尚未激活")
	ErrGiftExpired    = errors.New("礼物已过期")
	ErrGiftClaimed    = errors.New("该礼物二维码已领取")
	ErrGiftDisabled   = errors.New("该礼物二维码已停用")
	ErrNoBinding      = errors.New("当前礼物未绑定红包")
	ErrPacketDisabled = errors.New("该礼物已失效")
	ErrPacketMissing  = errors.New("红包记录不存在")
	ErrPacketTaken    = errors.New("红包已被领取")
)

// ClaimService 领取事务
//
// 整个引擎唯一的并发敏感路径。正确性依赖三层配合：
//  1. Redis 领取锁把同一礼物码的并发请求在入口排队（减少冲突，非兜底）
//  2. 事务内对礼物码行 SELECT ... FOR UPDATE，锁内复核状态
//  3. 红包状态的条件更新（MarkClaimed）作为最终裁决：同一红包只有
//     一个事务能把它改成 claimed，输掉的一方在请求内重选一次或被拒绝
type ClaimService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cfg          *config.Config
	giftRepo     *repository.GiftRepository
	packetRepo   *repository.RedPacketRepository
	bindingRepo  *repository.BindingRepository
	claimLogRepo *repository.ClaimLogRepository
	outboxRepo   *repository.OutboxRepository
}

func NewClaimService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *ClaimService {
	return &ClaimService{
		db:           db,
		redisClient:  redisClient,
		cfg:          cfg,
		giftRepo:     repository.NewGiftRepository(db),
		packetRepo:   repository.NewRedPacketRepository(db),
		bindingRepo:  repository.NewBindingRepository(db),
		claimLogRepo: repository.NewClaimLogRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
	}
}

// ClaimRequest 一次扫码领取
type ClaimRequest struct {
	Token    string
	IP       string
	UA       string
	HostBase string // 内容凭证页地址的基准
}

// Claim 执行领取，成功返回最终跳转地址
//
// 除 token 无法解析（无主体可记）外，每个分支恰好写一行审计日志
func (s *ClaimService) Claim(ctx context.Context, req *ClaimRequest) (string, error) {
	gift, err := s.resolveGift(ctx, req.Token)
	if err != nil {
		return "", err
	}

	traceNo := idgen.GenerateClaimTraceNo()
	claimLock := lock.NewClaimLock(s.redisClient, gift.ID, traceNo)
	if err := claimLock.Lock(ctx, 50*time.Millisecond, 20); err != nil {
		return "", fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer claimLock.Unlock(ctx)

	now := time.Now().UTC()
	switch windowReason(gift, now) {
	case ReasonNotActive:
		s.writeRejectLog(ctx, gift.ID, req, ReasonNotActive)
		return "", ErrGiftNotActive
	case ReasonExpired:
		// 惰性过期：即使本次领取被拒绝，expired 状态也要持久化
		if gift.Status != model.GiftStatusExpired {
			if err := s.giftRepo.UpdateStatus(ctx, nil, gift.ID, gift.Status, model.GiftStatusExpired); err != nil {
				log.Printf("[Claim] 写入过期状态失败: giftID=%d, err=%v", gift.ID, err)
			}
		}
		s.writeRejectLog(ctx, gift.ID, req, ReasonExpired)
		return "", ErrGiftExpired
	}

	if gift.Status == model.GiftStatusClaimed {
		s.writeRejectLog(ctx, gift.ID, req, ReasonCodeClaimed)
		return "", ErrGiftClaimed
	}
	if gift.Status == model.GiftStatusDisabled {
		s.writeRejectLog(ctx, gift.ID, req, ReasonCodeDisabled)
		return "", ErrGiftDisabled
	}

	var selected *model.RedPacket
	err = s.db.Transaction(func(tx *gorm.DB) error {
		picked, err := s.claimInTx(ctx, tx, gift.ID, req, traceNo)
		if err != nil {
			return err
		}
		selected = picked
		return nil
	})
	if err != nil {
		if reason := reasonForClaimError(err); reason != "" {
			// 拒绝日志独立写入，不随已回滚的领取事务消失
			s.writeRejectLog(ctx, gift.ID, req, reason)
			return "", err
		}
		return "", fmt.Errorf("领取处理异常: %w", err)
	}

	log.Printf("[Claim] 领取成功: giftID=%d, packetID=%d, strategy=%s, trace=%s",
		gift.ID, selected.ID, gift.DispatchStrategy, traceNo)

	return s.resolveClaimTarget(selected, req.HostBase)
}

// claimInTx 事务体：锁内复核 -> 选包 -> 原子终结三方状态 -> 落审计与事件
func (s *ClaimService) claimInTx(ctx context.Context, tx *gorm.DB, giftID int64, req *ClaimRequest, traceNo string) (*model.RedPacket, error) {
	gift, err := s.giftRepo.GetByIDForUpdate(ctx, tx, giftID)
	if err != nil {
		return nil, err
	}

	// 拿到行锁后复核：锁前的检查可能已被并发领取推翻
	if gift.Status == model.GiftStatusClaimed {
		return nil, ErrGiftClaimed
	}
	if gift.Status == model.GiftStatusDisabled {
		return nil, ErrGiftDisabled
	}

	bindings, err := s.bindingRepo.ListActive(ctx, tx, gift.ID)
	if err != nil {
		return nil, fmt.Errorf("查询绑定失败: %w", err)
	}
	if len(bindings) == 0 {
		return nil, ErrNoBinding
	}

	packetIDs := make([]int64, 0, len(bindings))
	for _, b := range bindings {
		packetIDs = append(packetIDs, b.RedPacketID)
	}
	packets, err := s.packetRepo.ListByIDs(ctx, tx, packetIDs)
	if err != nil {
		return nil, fmt.Errorf("查询候选红包失败: %w", err)
	}

	candidates := make([]*model.RedPacket, 0, len(packets))
	disabledExists := false
	for _, p := range packets {
		if model.PacketClaimable(p.Status) {
			candidates = append(candidates, p)
		} else if p.Status == model.PacketStatusDisabled {
			disabledExists = true
		}
	}
	if len(candidates) == 0 {
		// 区分"红包被停用"和"红包丢失"，便于运营排查
		if disabledExists {
			return nil, ErrPacketDisabled
		}
		return nil, ErrPacketMissing
	}

	picked, err := s.claimPacket(ctx, tx, gift.DispatchStrategy, candidates)
	if err != nil {
		return nil, err
	}

	if err := s.giftRepo.UpdateStatus(ctx, tx, gift.ID, gift.Status, model.GiftStatusClaimed); err != nil {
		return nil, fmt.Errorf("更新礼物码状态失败: %w", err)
	}
	if err := s.bindingRepo.MarkClaimedByGift(ctx, tx, gift.ID); err != nil {
		return nil, fmt.Errorf("终结绑定状态失败: %w", err)
	}

	successLog := &model.GiftClaimLog{
		GiftQrcodeID:     gift.ID,
		RedPacketID:      &picked.ID,
		DispatchStrategy: gift.DispatchStrategy,
		IP:               req.IP,
		UA:               req.UA,
		Result:           model.ClaimResultSuccess,
	}
	if err := s.claimLogRepo.Create(ctx, tx, successLog); err != nil {
		return nil, fmt.Errorf("写入领取日志失败: %w", err)
	}

	if err := s.appendClaimEvent(ctx, tx, gift, picked, traceNo); err != nil {
		return nil, fmt.Errorf("写入领取事件失败: %w", err)
	}

	return picked, nil
}

// claimPacket 选包并用条件更新占有它；输掉竞争时剔除该包重选一次
func (s *ClaimService) claimPacket(ctx context.Context, tx *gorm.DB, strategy string, candidates []*model.RedPacket) (*model.RedPacket, error) {
	picked := SelectPacket(strategy, candidates)

	err := s.packetRepo.MarkClaimed(ctx, tx, picked.ID)
	if err == nil {
		return picked, nil
	}
	if !errors.Is(err, repository.ErrPacketConflict) {
		return nil, fmt.Errorf("占有红包失败: %w", err)
	}

	remaining := make([]*model.RedPacket, 0, len(candidates)-1)
	for _, p := range candidates {
		if p.ID != picked.ID {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) == 0 {
		return nil, ErrPacketTaken
	}

	picked = SelectPacket(strategy, remaining)
	if err := s.packetRepo.MarkClaimed(ctx, tx, picked.ID); err != nil {
		if errors.Is(err, repository.ErrPacketConflict) {
			return nil, ErrPacketTaken
		}
		return nil, fmt.Errorf("占有红包失败: %w", err)
	}
	return picked, nil
}

func (s *ClaimService) appendClaimEvent(ctx context.Context, tx *gorm.DB, gift *model.GiftQrcode, packet *model.RedPacket, traceNo string) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"trace_no":          traceNo,
		"gift_qrcode_id":    gift.ID,
		"red_packet_id":     packet.ID,
		"amount":            packet.Amount.StringFixed(2),
		"dispatch_strategy": gift.DispatchStrategy,
		"claimed_at":        time.Now().UTC().Format(time.RFC3339),
	})

	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: traceNo,
		Topic:      s.cfg.Kafka.Topic.ClaimResult,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}

// RevealContent 用内容凭证兑换红包内容
// 凭证过期/伪造返回 security 包的对应错误，由 handler 翻译为提示页
func (s *ClaimService) RevealContent(ctx context.Context, ticket string) (*model.RedPacket, error) {
	packetID, err := security.VerifyContentTicket(s.cfg.Security.SecretKey, ticket)
	if err != nil {
		return nil, err
	}
	return s.packetRepo.GetByID(ctx, packetID)
}

// resolveGift 先按明文 token 查找，再回退哈希查找（兼容旧链接）
func (s *ClaimService) resolveGift(ctx context.Context, token string) (*model.GiftQrcode, error) {
	gift, err := s.giftRepo.GetByTokenPlain(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("查询礼物二维码失败: %w", err)
	}
	if gift == nil {
		tokenHash := security.HashGiftToken(s.cfg.Security.SecretKey, token)
		gift, err = s.giftRepo.GetByTokenHash(ctx, tokenHash)
		if err != nil {
			return nil, fmt.Errorf("查询礼物二维码失败: %w", err)
		}
	}
	if gift == nil {
		return nil, repository.ErrGiftNotFound
	}
	return gift, nil
}

// resolveClaimTarget 解析最终送达内容
// url 类型直接返回链接；text/qr_image 签发短时内容凭证，密钥不进跳转地址
func (s *ClaimService) resolveClaimTarget(packet *model.RedPacket, hostBase string) (string, error) {
	if packet.ContentType == model.ContentTypeURL || packet.ContentType == "" {
		if packet.ContentValue != "" {
			return packet.ContentValue, nil
		}
		return packet.ClaimURL, nil
	}

	ttl := time.Duration(s.cfg.Security.ContentTicketExpire) * time.Minute
	ticket, err := security.CreateContentTicket(s.cfg.Security.SecretKey, packet.ID, ttl)
	if err != nil {
		return "", fmt.Errorf("签发内容凭证失败: %w", err)
	}
	return buildContentURL(hostBase, ticket), nil
}

func buildContentURL(hostBase, ticket string) string {
	return strings.TrimRight(hostBase, "/") + "/claim/content?ticket=" + url.QueryEscape(ticket)
}

// windowReason 时间窗校验，窗口内返回空串
func windowReason(gift *model.GiftQrcode, now time.Time) string {
	if gift.ActivateAt != nil && now.Before(*gift.ActivateAt) {
		return ReasonNotActive
	}
	if gift.ExpireAt != nil && now.After(*gift.ExpireAt) {
		return ReasonExpired
	}
	return ""
}

// reasonForClaimError 把拒绝错误映射为审计原因码，非拒绝错误返回空串
func reasonForClaimError(err error) string {
	switch {
	case errors.Is(err, ErrGiftClaimed):
		return ReasonCodeClaimed
	case errors.Is(err, ErrGiftDisabled):
		return ReasonCodeDisabled
	case errors.Is(err, ErrNoBinding):
		return ReasonNoBinding
	case errors.Is(err, ErrPacketDisabled):
		return ReasonPacketDisabled
	case errors.Is(err, ErrPacketMissing):
		return ReasonPacketMissing
	case errors.Is(err, ErrPacketTaken):
		return ReasonPacketTaken
	}
	return ""
}

// writeRejectLog 拒绝分支的审计行
// 审计写入失败只记录，不改变领取结论
func (s *ClaimService) writeRejectLog(ctx context.Context, giftID int64, req *ClaimRequest, reason string) {
	entry := &model.GiftClaimLog{
		GiftQrcodeID: giftID,
		IP:           req.IP,
		UA:           req.UA,
		Result:       model.ClaimResultRejected,
		Reason:       reason,
	}
	if err := s.claimLogRepo.Create(ctx, nil, entry); err != nil {
		log.Printf("[Claim] 写入拒绝日志失败: giftID=%d, reason=%s, err=%v", giftID, reason, err)
	}
}
