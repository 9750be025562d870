package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanGiftTransitionTo(t *testing.T) {
	testCases := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{name: "draft可上架", from: GiftStatusDraft, to: GiftStatusActive, want: true},
		{name: "draft可直接领取", from: GiftStatusDraft, to: GiftStatusClaimed, want: true},
		{name: "active可停用", from: GiftStatusActive, to: GiftStatusDisabled, want: true},
		{name: "active可过期", from: GiftStatusActive, to: GiftStatusExpired, want: true},
		{name: "disabled可恢复", from: GiftStatusDisabled, to: GiftStatusActive, want: true},
		{name: "disabled不可直接领取", from: GiftStatusDisabled, to: GiftStatusClaimed, want: false},
		{name: "claimed是终态", from: GiftStatusClaimed, to: GiftStatusActive, want: false},
		{name: "claimed不可过期", from: GiftStatusClaimed, to: GiftStatusExpired, want: false},
		{name: "expired是终态", from: GiftStatusExpired, to: GiftStatusActive, want: false},
		{name: "未知状态", from: "unknown", to: GiftStatusActive, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanGiftTransitionTo(tc.from, tc.to))
		})
	}
}

func TestIsValidStrategy(t *testing.T) {
	assert.True(t, IsValidStrategy(StrategyRandom))
	assert.True(t, IsValidStrategy(StrategyAmountDesc))
	assert.True(t, IsValidStrategy(StrategyLevelDesc))
	assert.False(t, IsValidStrategy(""))
	assert.False(t, IsValidStrategy("amount_asc"))
}

func TestPacketClaimable(t *testing.T) {
	assert.True(t, PacketClaimable(PacketStatusIdle))
	assert.True(t, PacketClaimable(PacketStatusBound))
	assert.False(t, PacketClaimable(PacketStatusClaimed))
	assert.False(t, PacketClaimable(PacketStatusDisabled))
	assert.False(t, PacketClaimable(PacketStatusDeleted))
}
