package model

import (
	"time"
)

const (
	ClaimResultSuccess  = "success"
	ClaimResultRejected = "rejected"
)

// GiftClaimLog 领取审计日志表
// 每一次领取尝试（成功或被拒绝）恰好写入一行，是领取行为唯一的持久记录
//
// 【重要】只追加，不修改，不删除
type GiftClaimLog struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GiftQrcodeID     int64     `gorm:"index;not null" json:"gift_qrcode_id"`
	RedPacketID      *int64    `gorm:"index" json:"red_packet_id"` // 成功时记录被选中的红包
	DispatchStrategy string    `gorm:"type:varchar(20)" json:"dispatch_strategy"`
	IP               string    `gorm:"type:varchar(64)" json:"ip"`
	UA               string    `gorm:"type:varchar(255)" json:"ua"`
	Result           string    `gorm:"type:varchar(30);index;not null" json:"result"`
	Reason           string    `gorm:"type:varchar(255)" json:"reason"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (GiftClaimLog) TableName() string {
	return "gift_claim_logs"
}

// AccessLog 接口访问日志表
type AccessLog struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Source     string    `gorm:"type:varchar(20);index;default:admin" json:"source"`
	Path       string    `gorm:"type:varchar(255);index" json:"path"`
	Method     string    `gorm:"type:varchar(10)" json:"method"`
	IP         string    `gorm:"type:varchar(64)" json:"ip"`
	UA         string    `gorm:"type:varchar(255)" json:"ua"`
	StatusCode int       `gorm:"index" json:"status_code"`
	LatencyMs  int64     `gorm:"default:0" json:"latency_ms"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AccessLog) TableName() string {
	return "access_logs"
}
