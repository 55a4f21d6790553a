package service

import (
	"errors"
	"fmt"

	"github.com/mautops/escrow-gin/internal/ledger"
)

// 错误分类
// ValidationError: 前置条件不满足,调用方可纠正后重试
// AuthorizationError: 操作者身份不符,对本次请求是致命的
// LedgerError: 账本/网络失败,可退避重试但绝不盲目重发资金操作
// ConsistencyError: 任务记录与账本不一致,以账本为准重新推导解决

// 校验错误码
const (
	CodeTaskAlreadyAccepted = "task_already_accepted"
	CodeAmountMismatch      = "amount_mismatch"
	CodeWorkerIsPoster      = "worker_is_poster"
	CodeWorkerMismatch      = "worker_mismatch"
	CodeInvalidTransition   = "invalid_transition"
	CodeNotFunded           = "not_funded"
	CodeNotApproved         = "not_approved"
	CodeAlreadyFunded       = "already_funded"
	CodeAlreadyReleased     = "already_released"
	CodeAlreadyCancelled    = "already_cancelled"
	CodeConditionNotFound   = "condition_not_found"
	CodeConditionResolved   = "already_resolved"
	CodeBridgeUnverified    = "bridge_unverified"
	CodeTaskNotFound        = "task_not_found"
)

// ValidationError 前置条件校验失败
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Code, e.Message)
}

// NewValidationError 创建校验错误
func NewValidationError(code string, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError 操作者身份不符
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return "permission denied: " + e.Message
}

// NewAuthorizationError 创建授权错误
func NewAuthorizationError(format string, args ...interface{}) *AuthorizationError {
	return &AuthorizationError{Message: fmt.Sprintf(format, args...)}
}

// LedgerError 账本调用失败
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// NewLedgerError 包装账本错误
func NewLedgerError(op string, err error) *LedgerError {
	return &LedgerError{Op: op, Err: err}
}

// ConsistencyError 任务记录与账本不一致
type ConsistencyError struct {
	TaskID  string
	Message string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation on task %s: %s", e.TaskID, e.Message)
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAuthorization 判断是否为授权错误
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// IsLedger 判断是否为账本错误
func IsLedger(err error) bool {
	var le *LedgerError
	return errors.As(err, &le)
}

// IsConsistency 判断是否为一致性错误
func IsConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// ValidationCode 提取校验错误码,非校验错误返回空串
func ValidationCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// ledgerReason 把账本类型化错误翻译为用户可见的原因
func ledgerReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient funds"
	case errors.Is(err, ledger.ErrWrongNetwork):
		return "wrong network"
	case errors.Is(err, ledger.ErrContractNotFound):
		return "escrow contract not found"
	case errors.Is(err, ledger.ErrReverted):
		return "transaction reverted"
	case errors.Is(err, ledger.ErrNotFunded):
		return "escrow not funded"
	case errors.Is(err, ledger.ErrAlreadyReleased):
		return "escrow already released"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "unauthorized on ledger"
	default:
		return err.Error()
	}
}
