package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// EscrowRecord 账本侧托管记录
// 账本是资金的唯一权威来源,协调器只读取并向其对齐,绝不反向修改
type EscrowRecord struct {
	TaskID       string          `json:"taskId"`
	Poster       string          `json:"poster"`
	Worker       string          `json:"worker"`
	AmountLocked decimal.Decimal `json:"amountLocked"`
	Funded       bool            `json:"funded"`
	Released     bool            `json:"released"`
	Cancelled    bool            `json:"cancelled"`
}

// Receipt 账本交易回执
type Receipt struct {
	TxHash string `json:"txHash"`
}

// Client 托管账本客户端接口
// Fund/Release 在传输层不具备天然幂等性,调用方在任何重试之前
// 必须先通过 ReadState 确认当前账本状态
type Client interface {
	// Fund 锁定报酬到托管
	Fund(ctx context.Context, taskID string, worker string, amount decimal.Decimal) (*Receipt, error)

	// Release 释放托管资金给工人
	Release(ctx context.Context, taskID string) (*Receipt, error)

	// Cancel 取消托管,资金退回发布者
	Cancel(ctx context.Context, taskID string) (*Receipt, error)

	// ReadState 读取托管记录,唯一的规范读路径
	ReadState(ctx context.Context, taskID string) (*EscrowRecord, error)
}
