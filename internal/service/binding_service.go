package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"redpacket/internal/model"
	"redpacket/internal/repository"

	"gorm.io/gorm"
)

// ErrValidation 用户输入或业务状态冲突类错误
// handler 层据此翻译为 4xx，不会被当成服务端异常
var ErrValidation = errors.New("校验失败")

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// BindingService 绑定同步器
// 负责把"期望绑定集合"与当前 active 绑定做最小差量对齐，
// 同时维护红包侧的排他约束（一个红包最多服务一个礼物码）
type BindingService struct {
	packetRepo  *repository.RedPacketRepository
	bindingRepo *repository.BindingRepository
}

func NewBindingService(db *gorm.DB) *BindingService {
	return &BindingService{
		packetRepo:  repository.NewRedPacketRepository(db),
		bindingRepo: repository.NewBindingRepository(db),
	}
}

// SyncTx 在调用方事务内同步绑定集合
//
// auto 模式：已有绑定时保留其中 id 最小的一条（保证多次同步结果稳定，
// 不反复换绑），否则挑选 id 最小的空闲红包；目标集合恒为单元素。
// manual 模式：目标集合取 targetIDs 去重结果，必须非空，且每个红包
// 都存在、未被领取/删除、未被其他礼物码占用。
//
// 任一校验失败整个差量放弃（由外层事务回滚保证无半提交）。
func (s *BindingService) SyncTx(ctx context.Context, tx *gorm.DB, giftID int64, bindingMode string, targetIDs []int64) error {
	current, err := s.bindingRepo.ListActive(ctx, tx, giftID)
	if err != nil {
		return fmt.Errorf("查询当前绑定失败: %w", err)
	}

	currentIDs := make([]int64, 0, len(current))
	currentByPacket := make(map[int64]*model.GiftBinding, len(current))
	for _, b := range current {
		currentIDs = append(currentIDs, b.RedPacketID)
		currentByPacket[b.RedPacketID] = b
	}

	var target []int64
	if bindingMode == model.BindingModeAuto {
		target, err = s.resolveAutoTarget(ctx, tx, currentIDs)
		if err != nil {
			return err
		}
	} else {
		target, err = s.resolveManualTarget(ctx, tx, giftID, currentIDs, targetIDs)
		if err != nil {
			return err
		}
	}

	plan := planSync(currentIDs, target)

	// 先摘除：离开绑定集合的红包放回空闲（已领取的保持不动）
	for _, packetID := range plan.ToRemove {
		binding := currentByPacket[packetID]
		if binding == nil {
			continue
		}
		if err := s.bindingRepo.Delete(ctx, tx, binding.ID); err != nil {
			return fmt.Errorf("移除绑定失败: %w", err)
		}
		if err := s.packetRepo.Release(ctx, tx, packetID); err != nil {
			return fmt.Errorf("释放红包失败: %w", err)
		}
	}

	// 再新增：红包 idle -> bound，并落 active 绑定行
	for _, packetID := range plan.ToAdd {
		if err := s.packetRepo.MarkBound(ctx, tx, packetID); err != nil {
			if errors.Is(err, repository.ErrPacketConflict) {
				return validationErrorf("红包 %d 不可绑定，请刷新后重试", packetID)
			}
			return fmt.Errorf("占用红包失败: %w", err)
		}
		if err := s.bindingRepo.Create(ctx, tx, giftID, packetID); err != nil {
			if errors.Is(err, repository.ErrBindingConflict) {
				return validationErrorf("红包 %d 已被其他礼物绑定", packetID)
			}
			return fmt.Errorf("创建绑定失败: %w", err)
		}
	}

	return nil
}

func (s *BindingService) resolveAutoTarget(ctx context.Context, tx *gorm.DB, currentIDs []int64) ([]int64, error) {
	if keep := autoKeepID(currentIDs); keep > 0 {
		return []int64{keep}, nil
	}
	packet, err := s.packetRepo.GetFirstIdle(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("查询空闲红包失败: %w", err)
	}
	if packet == nil {
		return nil, validationErrorf("当前没有可自动绑定的红包")
	}
	return []int64{packet.ID}, nil
}

func (s *BindingService) resolveManualTarget(ctx context.Context, tx *gorm.DB, giftID int64, currentIDs, targetIDs []int64) ([]int64, error) {
	target := dedupIDs(targetIDs)
	if len(target) == 0 {
		return nil, validationErrorf("手动绑定模式下请至少选择一个红包")
	}

	packets, err := s.packetRepo.ListByIDs(ctx, tx, target)
	if err != nil {
		return nil, fmt.Errorf("查询红包失败: %w", err)
	}
	if len(packets) != len(target) {
		return nil, validationErrorf("存在无效红包，请刷新后重试")
	}

	currentSet := make(map[int64]bool, len(currentIDs))
	for _, id := range currentIDs {
		currentSet[id] = true
	}

	for _, packet := range packets {
		switch packet.Status {
		case model.PacketStatusClaimed:
			return nil, validationErrorf("红包 %d 已领取，不能绑定", packet.ID)
		case model.PacketStatusDeleted:
			return nil, validationErrorf("红包 %d 已删除，不能绑定", packet.ID)
		case model.PacketStatusDisabled:
			return nil, validationErrorf("红包 %d 已停用，不能绑定", packet.ID)
		case model.PacketStatusBound:
			if currentSet[packet.ID] {
				continue
			}
			binding, err := s.bindingRepo.GetActiveByPacketID(ctx, tx, packet.ID)
			if err != nil {
				return nil, fmt.Errorf("查询红包绑定失败: %w", err)
			}
			if binding != nil && binding.GiftQrcodeID != giftID {
				return nil, validationErrorf("红包 %d 已被其他礼物绑定", packet.ID)
			}
		}
	}

	return target, nil
}

// syncPlan 绑定同步差量
type syncPlan struct {
	ToAdd    []int64
	ToRemove []int64
}

// planSync 计算 current 与 target 集合之间的最小差量，输出按 id 升序
// 两侧相同的 id 不产生任何写入，保证同步操作幂等
func planSync(currentIDs, targetIDs []int64) syncPlan {
	currentSet := make(map[int64]bool, len(currentIDs))
	for _, id := range currentIDs {
		currentSet[id] = true
	}
	targetSet := make(map[int64]bool, len(targetIDs))
	for _, id := range targetIDs {
		targetSet[id] = true
	}

	var plan syncPlan
	for id := range currentSet {
		if !targetSet[id] {
			plan.ToRemove = append(plan.ToRemove, id)
		}
	}
	for id := range targetSet {
		if !currentSet[id] {
			plan.ToAdd = append(plan.ToAdd, id)
		}
	}

	sort.Slice(plan.ToRemove, func(i, j int) bool { return plan.ToRemove[i] < plan.ToRemove[j] })
	sort.Slice(plan.ToAdd, func(i, j int) bool { return plan.ToAdd[i] < plan.ToAdd[j] })
	return plan
}

// autoKeepID 自动模式下保留的绑定：现有集合里 id 最小的一个，空集返回 0
func autoKeepID(currentIDs []int64) int64 {
	var keep int64
	for _, id := range currentIDs {
		if keep == 0 || id < keep {
			keep = id
		}
	}
	return keep
}

// dedupIDs 去重并保持首次出现顺序
func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}
