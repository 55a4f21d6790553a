package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mautops/escrow-gin/internal/ledger"
	"github.com/stretchr/testify/assert"
)

// TestErrorTaxonomy 测试错误分类判定
// 四类错误互斥,调用方按类别决定重试策略
func TestErrorTaxonomy(t *testing.T) {
	ve := NewValidationError(CodeAmountMismatch, "amount %s does not match", "0.019")
	ae := NewAuthorizationError("only the poster may release")
	le := NewLedgerError("release", ledger.ErrTimeout)
	ce := &ConsistencyError{TaskID: "task-001", Message: "diverged"}

	assert.True(t, IsValidation(ve))
	assert.False(t, IsValidation(ae))
	assert.False(t, IsValidation(le))
	assert.False(t, IsValidation(ce))

	assert.True(t, IsAuthorization(ae))
	assert.False(t, IsAuthorization(ve))

	assert.True(t, IsLedger(le))
	assert.False(t, IsLedger(ve))

	assert.True(t, IsConsistency(ce))
	assert.False(t, IsConsistency(le))
}

// TestValidationCode 测试错误码提取
func TestValidationCode(t *testing.T) {
	assert.Equal(t, CodeAmountMismatch, ValidationCode(NewValidationError(CodeAmountMismatch, "mismatch")))
	assert.Empty(t, ValidationCode(NewAuthorizationError("denied")))
	assert.Empty(t, ValidationCode(nil))

	// 包装后仍可提取
	wrapped := fmt.Errorf("handler: %w", NewValidationError(CodeNotFunded, "not funded"))
	assert.Equal(t, CodeNotFunded, ValidationCode(wrapped))
}

// TestLedgerErrorUnwrap 测试账本错误保留底层类型
func TestLedgerErrorUnwrap(t *testing.T) {
	le := NewLedgerError("fund", ledger.ErrInsufficientFunds)
	assert.ErrorIs(t, le, ledger.ErrInsufficientFunds)
	assert.False(t, errors.Is(le, ledger.ErrTimeout))
}

// TestLedgerReason 测试账本错误的用户可见翻译
func TestLedgerReason(t *testing.T) {
	assert.Equal(t, "insufficient funds", ledgerReason(ledger.ErrInsufficientFunds))
	assert.Equal(t, "escrow already released", ledgerReason(ledger.ErrAlreadyReleased))
	assert.Equal(t, "transaction reverted", ledgerReason(ledger.ErrReverted))
	assert.Equal(t, "boom", ledgerReason(errors.New("boom")))
}
