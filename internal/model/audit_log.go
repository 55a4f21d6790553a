package model

import (
	"errors"
	"time"
)

// AuditLogModel 审计日志数据模型
// 协调器的每次资金相关操作都会追加一条日志,包括失败的尝试
type AuditLogModel struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)"`
	ActorWallet  string    `gorm:"type:varchar(64);not null;index"` // 操作者钱包地址
	Action       string    `gorm:"type:varchar(64);not null;index"` // accept/fund/submit/approve/release/cancel/release_if/reconcile
	TaskID       string    `gorm:"type:varchar(64);not null;index"`
	Outcome      string    `gorm:"type:varchar(32);not null"` // success/denied/failed
	RequestID    string    `gorm:"type:varchar(64);index"`
	IP           string    `gorm:"type:varchar(45)"` // IPv4 或 IPv6
	Details      []byte    `gorm:"type:jsonb"` // 操作详情
	CreatedAt    time.Time `gorm:"not null;index"`
}

// TableName 指定表名
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// Validate 验证审计日志模型
func (alm *AuditLogModel) Validate() error {
	if alm.ID == "" {
		return errors.New("audit log ID is required")
	}
	if alm.ActorWallet == "" {
		return errors.New("actor wallet is required")
	}
	if alm.Action == "" {
		return errors.New("action is required")
	}
	if alm.TaskID == "" {
		return errors.New("task ID is required")
	}
	if alm.Outcome == "" {
		return errors.New("outcome is required")
	}
	return nil
}
