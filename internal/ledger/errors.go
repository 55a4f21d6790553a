package ledger

import (
	"context"
	"errors"
)

// 账本操作的类型化错误
// 调用方依据这些错误区分"调用方可纠正"与"链上状态已决"的失败
var (
	// ErrInsufficientFunds 发布者余额不足
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrWrongNetwork 连接的链 ID 与期望不符
	ErrWrongNetwork = errors.New("ledger: wrong network")
	// ErrContractNotFound 托管合约地址上没有合约代码
	ErrContractNotFound = errors.New("ledger: contract not found")
	// ErrReverted 交易被合约回滚
	ErrReverted = errors.New("ledger: transaction reverted")
	// ErrNotFunded 托管尚未注资
	ErrNotFunded = errors.New("ledger: escrow not funded")
	// ErrAlreadyReleased 托管资金已释放
	ErrAlreadyReleased = errors.New("ledger: escrow already released")
	// ErrUnauthorized 调用者无权操作此托管
	ErrUnauthorized = errors.New("ledger: unauthorized")
	// ErrUnknownTask 账本上不存在该任务的托管记录
	ErrUnknownTask = errors.New("ledger: unknown task")
	// ErrTimeout 已提交交易但回执超时,结果未知
	// 调用方必须通过 ReadState 重新确认,不得解释为失败
	ErrTimeout = errors.New("ledger: receipt timeout")
)

// IsOutcomeUnknown 判断错误是否意味着交易结果未知
// 结果未知时必须先 ReadState 再决定后续动作
func IsOutcomeUnknown(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
