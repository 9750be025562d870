package service

import (
	"math/rand"

	"redpacket/internal/model"
)

// SelectPacket 派发选择器：从候选红包里按策略选出一个
//
// candidates 必须是当前 active 绑定背后、状态仍可领取（idle/bound）的红包，
// 且按 id 升序传入。纯函数，不做任何 IO。
//
// 平局规则：amount_desc / level_desc 在最大值相同时取 id 最小者。
// 候选按 id 升序、比较用严格大于，两者合起来自然得到这条规则。
func SelectPacket(strategy string, candidates []*model.RedPacket) *model.RedPacket {
	if len(candidates) == 0 {
		return nil
	}

	switch strategy {
	case model.StrategyAmountDesc:
		best := candidates[0]
		for _, p := range candidates[1:] {
			if p.Amount.GreaterThan(best.Amount) {
				best = p
			}
		}
		return best
	case model.StrategyLevelDesc:
		best := candidates[0]
		for _, p := range candidates[1:] {
			if p.Level > best.Level ||
				(p.Level == best.Level && p.Amount.GreaterThan(best.Amount)) {
				best = p
			}
		}
		return best
	default:
		// random 以及任何未知策略都按均匀随机处理
		return candidates[rand.Intn(len(candidates))]
	}
}
