package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 红包状态常量
// ============================================================================

const (
	PacketStatusIdle     = "idle"     // 空闲，可被绑定
	PacketStatusBound    = "bound"    // 已绑定到某个礼物码
	PacketStatusClaimed  = "claimed"  // 已被领取（终态）
	PacketStatusDisabled = "disabled" // 已停用，不参与派发
	PacketStatusDeleted  = "deleted"  // 逻辑删除（仅已领取记录，保留审计关联）
)

const (
	ContentTypeURL     = "url"      // 链接类内容，领取后直接跳转
	ContentTypeText    = "text"     // 文本密钥类内容，通过内容凭证页展示
	ContentTypeQrImage = "qr_image" // 二维码图片类内容，通过内容凭证页展示
)

// PacketClaimable 红包是否还能被派发
// 只有 idle/bound 两种状态的红包可以成为派发候选
func PacketClaimable(status string) bool {
	return status == PacketStatusIdle || status == PacketStatusBound
}

// RedPacket 红包表
// 每条记录是一个完整的可领取奖励单元（整包领取，一次性消耗）
//
// 【核心不变量】
// 1. 同一红包任意时刻最多存在一条 active 绑定（gift_bindings 表唯一约束保证）
// 2. claimed/deleted 是终态，不会再回到 idle
type RedPacket struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	BatchID         int64           `gorm:"index" json:"batch_id"`
	Title           string          `gorm:"type:varchar(120)" json:"title"`
	Amount          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Level           int             `gorm:"not null;default:1" json:"level"` // 等级，越大越高
	ContentType     string          `gorm:"type:varchar(20);not null;default:url" json:"content_type"`
	ContentValue    string          `gorm:"type:text" json:"content_value"`
	ContentImageURL string          `gorm:"type:varchar(500)" json:"content_image_url"`
	ContentImageKey string          `gorm:"type:varchar(255)" json:"content_image_key"`
	ClaimURL        string          `gorm:"type:varchar(800)" json:"claim_url"` // url 类型内容的跳转地址
	Status          string          `gorm:"type:varchar(20);index;not null;default:idle" json:"status"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RedPacket) TableName() string {
	return "red_packets"
}

// RedPacketBatch 红包批次表
// 记录红包的导入来源，批次号全局唯一
type RedPacketBatch struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BatchNo   string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"batch_no"`
	Source    string    `gorm:"type:varchar(30);not null;default:manual" json:"source"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RedPacketBatch) TableName() string {
	return "red_packet_batches"
}
