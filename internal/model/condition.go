package model

import (
	"errors"
	"regexp"
	"time"
)

var conditionHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ConditionRegistration 条件注册数据模型
// 将 Oracle 可验证的条件哈希绑定到待释放的任务
// 同一哈希最多存在一条未解决的注册,已解决的哈希不可重新注册
type ConditionRegistration struct {
	ConditionHash string     `gorm:"primaryKey;type:varchar(66)"` // keccak-256 条件指纹
	TaskID        string     `gorm:"type:varchar(64);not null;index"`
	Resolved      bool       `gorm:"not null;default:false"` // 是否已触发释放
	CreatedAt     time.Time  `gorm:"not null"`
	ResolvedAt    *time.Time // 解决时间
}

// TableName 指定表名
func (ConditionRegistration) TableName() string {
	return "condition_registrations"
}

// Validate 验证条件注册模型
func (cr *ConditionRegistration) Validate() error {
	if cr.ConditionHash == "" {
		return errors.New("condition hash is required")
	}
	if !conditionHashPattern.MatchString(cr.ConditionHash) {
		return errors.New("condition hash must be a 0x-prefixed 32-byte hex string")
	}
	if cr.TaskID == "" {
		return errors.New("task ID is required")
	}
	return nil
}
