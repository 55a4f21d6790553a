package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryLedger 进程内托管账本
// 开发环境和测试中替代链上合约,执行与合约相同的守卫规则
type MemoryLedger struct {
	mu      sync.Mutex
	escrows map[string]*EscrowRecord
	seq     uint64

	// 单次故障注入,仅测试使用
	faultOp    string
	faultErr   error
	faultApply bool // true 时先应用状态变更再返回错误,模拟回执丢失
}

// NewMemoryLedger 创建进程内账本
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		escrows: make(map[string]*EscrowRecord),
	}
}

// InjectFault 注入单次故障
// applyFirst 为 true 时,状态变更生效后才返回错误,用于模拟
// "交易已上链但回执超时"的场景
func (l *MemoryLedger) InjectFault(op string, err error, applyFirst bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faultOp = op
	l.faultErr = err
	l.faultApply = applyFirst
}

// takeFault 取出并清除匹配的故障
func (l *MemoryLedger) takeFault(op string) (error, bool) {
	if l.faultOp != op || l.faultErr == nil {
		return nil, false
	}
	err := l.faultErr
	apply := l.faultApply
	l.faultOp = ""
	l.faultErr = nil
	l.faultApply = false
	return err, apply
}

// nextReceipt 生成确定性的交易回执
func (l *MemoryLedger) nextReceipt(op string, taskID string) *Receipt {
	l.seq++
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", op, taskID, l.seq)))
	return &Receipt{TxHash: "0x" + hex.EncodeToString(sum[:])}
}

// Fund 锁定报酬到托管
func (l *MemoryLedger) Fund(ctx context.Context, taskID string, worker string, amount decimal.Decimal) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err, apply := l.takeFault("fund"); err != nil && !apply {
		return nil, err
	} else if err != nil {
		l.applyFund(taskID, worker, amount)
		return nil, err
	}

	if !amount.IsPositive() {
		return nil, ErrReverted
	}
	if e, ok := l.escrows[taskID]; ok && e.Funded {
		return nil, ErrReverted
	}

	l.applyFund(taskID, worker, amount)
	return l.nextReceipt("fund", taskID), nil
}

func (l *MemoryLedger) applyFund(taskID string, worker string, amount decimal.Decimal) {
	l.escrows[taskID] = &EscrowRecord{
		TaskID:       taskID,
		Worker:       worker,
		AmountLocked: amount,
		Funded:       true,
	}
}

// Release 释放托管资金给工人
func (l *MemoryLedger) Release(ctx context.Context, taskID string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err, apply := l.takeFault("release"); err != nil && !apply {
		return nil, err
	} else if err != nil {
		if e, ok := l.escrows[taskID]; ok && e.Funded && !e.Cancelled {
			e.Released = true
		}
		return nil, err
	}

	e, ok := l.escrows[taskID]
	if !ok || !e.Funded || e.Cancelled {
		return nil, ErrNotFunded
	}
	if e.Released {
		return nil, ErrAlreadyReleased
	}

	e.Released = true
	return l.nextReceipt("release", taskID), nil
}

// Cancel 取消托管,资金退回发布者
func (l *MemoryLedger) Cancel(ctx context.Context, taskID string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err, apply := l.takeFault("cancel"); err != nil && !apply {
		return nil, err
	} else if err != nil {
		if e, ok := l.escrows[taskID]; ok && !e.Released {
			e.Cancelled = true
		}
		return nil, err
	}

	e, ok := l.escrows[taskID]
	if !ok {
		return nil, ErrUnknownTask
	}
	if e.Released {
		return nil, ErrAlreadyReleased
	}
	if e.Cancelled {
		return nil, ErrReverted
	}

	e.Cancelled = true
	return l.nextReceipt("cancel", taskID), nil
}

// ReadState 读取托管记录
func (l *MemoryLedger) ReadState(ctx context.Context, taskID string) (*EscrowRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.escrows[taskID]
	if !ok {
		return nil, ErrUnknownTask
	}

	// 返回副本,避免调用方绕过账本直接改状态
	copied := *e
	return &copied, nil
}
