package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// 任务工作流状态
// 工作流轴与资金标志（funded/released/cancelled）正交:
// 状态描述工作进度,标志描述托管资金的真实情况
const (
	StatusOpen             = "open"              // 已发布,等待工人接单
	StatusAccepted         = "accepted"          // 工人已接单
	StatusSubmitted        = "submitted"         // 工人已提交成果
	StatusChangesRequested = "changes_requested" // 发布者要求修改
	StatusApproved         = "approved"          // 发布者已验收
)

// workflowTransitions 工作流状态转移表
// 每个状态列出允许进入的下一状态,资金标志不参与此表
var workflowTransitions = map[string][]string{
	StatusOpen:             {StatusAccepted},
	StatusAccepted:         {StatusSubmitted},
	StatusSubmitted:        {StatusApproved, StatusChangesRequested},
	StatusChangesRequested: {StatusSubmitted},
	StatusApproved:         {},
}

// TaskModel 任务数据模型
// 任务记录是账本托管状态的派生视图,资金标志只在账本确认后翻转
type TaskModel struct {
	ID             string          `gorm:"primaryKey;type:varchar(64)"`
	Title          string          `gorm:"type:varchar(255);not null"`
	Description    string          `gorm:"type:text"`
	PosterWallet   string          `gorm:"type:varchar(64);not null;index"` // 发布者钱包地址
	WorkerWallet   string          `gorm:"type:varchar(64);index"` // 工人钱包地址,接单前为空
	RewardAmount   decimal.Decimal `gorm:"type:decimal(38,18);not null"` // 报酬金额（代币计价）
	TokenSymbol    string          `gorm:"type:varchar(16);not null"` // 代币符号
	WorkflowStatus string          `gorm:"type:varchar(32);not null;index"` // 工作流状态
	Funded         bool            `gorm:"not null;default:false"` // 托管已注资
	Released       bool            `gorm:"not null;default:false"` // 托管已释放
	Cancelled      bool            `gorm:"not null;default:false"` // 托管已取消
	FundingTxRef   string          `gorm:"type:varchar(128)"` // 注资交易引用
	PayoutTxRef    string          `gorm:"type:varchar(128)"` // 释放交易引用
	FAssetType     string          `gorm:"type:varchar(16)"` // 跨链资产类型（BTC/XRP）,原生代币为空
	BridgeTxHash   string          `gorm:"type:varchar(128)"` // FAsset 桥交易哈希
	BridgeVerified bool            `gorm:"not null;default:false"` // 桥交易已验证
	SubmissionURL  string          `gorm:"type:text"` // 成果链接
	SubmissionNote string          `gorm:"type:text"` // 成果说明
	ReviewNote     string          `gorm:"type:text"` // 验收意见
	CreatedAt      time.Time       `gorm:"not null;index"`
	UpdatedAt      time.Time       `gorm:"not null"`
	SubmittedAt    *time.Time      `gorm:"index"` // 提交时间
	ApprovedAt     *time.Time      // 验收时间
}

// TableName 指定表名
func (TaskModel) TableName() string {
	return "tasks"
}

// Validate 验证任务模型
func (tm *TaskModel) Validate() error {
	if tm.ID == "" {
		return errors.New("task ID is required")
	}
	if tm.Title == "" {
		return errors.New("task title is required")
	}
	if tm.PosterWallet == "" {
		return errors.New("poster wallet is required")
	}
	if tm.WorkerWallet != "" && tm.WorkerWallet == tm.PosterWallet {
		return errors.New("worker must differ from poster")
	}
	if !tm.RewardAmount.IsPositive() {
		return errors.New("reward amount must be positive")
	}
	if tm.TokenSymbol == "" {
		return errors.New("token symbol is required")
	}
	if !IsValidStatus(tm.WorkflowStatus) {
		return errors.New("invalid workflow status")
	}
	if tm.Released && tm.Cancelled {
		return errors.New("released and cancelled are mutually exclusive")
	}
	if tm.Released && !tm.Funded {
		return errors.New("released requires funded")
	}
	return nil
}

// IsValidStatus 判断状态值是否合法
func IsValidStatus(status string) bool {
	_, ok := workflowTransitions[status]
	return ok
}

// CanTransition 判断工作流状态转移是否允许
func CanTransition(from, to string) bool {
	for _, next := range workflowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal 判断托管是否已终结（已释放或已取消）
// 终结后 funded/amount/worker 均不可再变更
func (tm *TaskModel) Terminal() bool {
	return tm.Released || tm.Cancelled
}

// Fundable 判断当前状态下是否允许注资
// 工作流允许在接单后或验收后注资,金额必须与报酬完全一致
func (tm *TaskModel) Fundable() bool {
	if tm.Funded || tm.Terminal() {
		return false
	}
	return tm.WorkflowStatus == StatusAccepted || tm.WorkflowStatus == StatusApproved
}

// Releasable 判断当前状态下是否允许释放托管
func (tm *TaskModel) Releasable() bool {
	return tm.Funded && tm.WorkflowStatus == StatusApproved && !tm.Released && !tm.Cancelled
}
