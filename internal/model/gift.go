package model

import (
	"time"
)

const (
	GiftStatusDraft    = "draft"    // 刚创建，尚未被领取流程评估过
	GiftStatusActive   = "active"   // 可领取
	GiftStatusDisabled = "disabled" // 管理端停用
	GiftStatusExpired  = "expired"  // 已过期（领取评估时惰性写入）
	GiftStatusClaimed  = "claimed"  // 已领取（终态，不可逆）
)

const (
	BindingModeManual = "manual" // 手动选择一个或多个红包
	BindingModeAuto   = "auto"   // 自动保留恰好一个绑定
)

const (
	StrategyRandom     = "random"      // 均匀随机
	StrategyAmountDesc = "amount_desc" // 金额最大优先
	StrategyLevelDesc  = "level_desc"  // (等级, 金额) 字典序最大优先
)

// ValidGiftTransitions 礼物码状态机
// claimed/expired 是终态，不允许任何后续迁移
var ValidGiftTransitions = map[string][]string{
	GiftStatusDraft:    {GiftStatusActive, GiftStatusDisabled, GiftStatusExpired, GiftStatusClaimed},
	GiftStatusActive:   {GiftStatusDisabled, GiftStatusExpired, GiftStatusClaimed},
	GiftStatusDisabled: {GiftStatusActive},
}

func CanGiftTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidGiftTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsValidStrategy 派发策略是否合法
func IsValidStrategy(strategy string) bool {
	switch strategy {
	case StrategyRandom, StrategyAmountDesc, StrategyLevelDesc:
		return true
	}
	return false
}

// GiftQrcode 礼物二维码表
// token_plain 是对外的领取口令，token_hash 用于旧链接兼容查找
// 重新生成二维码会轮换 token 并作废旧图片
type GiftQrcode struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title            string     `gorm:"type:varchar(100)" json:"title"`
	Status           string     `gorm:"type:varchar(20);index;not null;default:draft" json:"status"`
	TokenPlain       string     `gorm:"type:varchar(128);index" json:"-"`
	TokenHash        string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"-"`
	ActivateAt       *time.Time `json:"activate_at"` // 空表示不限起始时间
	ExpireAt         *time.Time `json:"expire_at"`   // 空表示永不过期
	BindingMode      string     `gorm:"type:varchar(20);not null;default:manual" json:"binding_mode"`
	DispatchStrategy string     `gorm:"type:varchar(20);not null;default:random" json:"dispatch_strategy"`
	StyleType        string     `gorm:"type:varchar(30);default:festival" json:"style_type"`
	StyleConfig      string     `gorm:"type:text" json:"style_config"`
	StorageChannelID string     `gorm:"type:varchar(64)" json:"storage_channel_id"`
	ObjectKey        string     `gorm:"type:varchar(255)" json:"object_key"`
	ImageURL         string     `gorm:"type:varchar(500)" json:"image_url"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GiftQrcode) TableName() string {
	return "gift_qrcodes"
}

const (
	BindingStatusActive  = "active"  // 红包正在被该礼物码提供
	BindingStatusClaimed = "claimed" // 领取事务终结后的绑定状态
)

// GiftBinding 礼物码与红包的绑定关系表
//
// 【唯一约束】
// 1. red_packet_id 全表唯一 —— 一个红包同一时刻只服务一个礼物码；
//    claimed 红包的绑定行保留，天然阻止其再次被绑定
// 2. (gift_qrcode_id, red_packet_id) 唯一 —— 手动模式下同一对不重复
type GiftBinding struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GiftQrcodeID int64     `gorm:"index;uniqueIndex:uq_gift_bindings_pair;not null" json:"gift_qrcode_id"`
	RedPacketID  int64     `gorm:"uniqueIndex:uq_gift_bindings_packet;uniqueIndex:uq_gift_bindings_pair;not null" json:"red_packet_id"`
	Status       string    `gorm:"type:varchar(20);index;not null;default:active" json:"status"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GiftBinding) TableName() string {
	return "gift_bindings"
}
