package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validTask() *TaskModel {
	return &TaskModel{
		ID:             "task-001",
		Title:          "translate landing page",
		PosterWallet:   "0xPoster",
		WorkerWallet:   "0xWorker",
		RewardAmount:   decimal.RequireFromString("0.02"),
		TokenSymbol:    "FLR",
		WorkflowStatus: StatusOpen,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

// TestTaskModelTableName 测试表名
func TestTaskModelTableName(t *testing.T) {
	tm := TaskModel{}
	assert.Equal(t, "tasks", tm.TableName())
}

// TestTaskModelValidation 测试模型验证
func TestTaskModelValidation(t *testing.T) {
	tm := validTask()
	assert.NoError(t, tm.Validate())

	// ID 为空
	tm = validTask()
	tm.ID = ""
	assert.Error(t, tm.Validate())

	// 报酬必须为正
	tm = validTask()
	tm.RewardAmount = decimal.Zero
	assert.Error(t, tm.Validate())

	// 工人不能是发布者本人
	tm = validTask()
	tm.WorkerWallet = tm.PosterWallet
	assert.Error(t, tm.Validate())

	// released 与 cancelled 互斥
	tm = validTask()
	tm.Funded = true
	tm.Released = true
	tm.Cancelled = true
	assert.Error(t, tm.Validate())

	// released 必须先 funded
	tm = validTask()
	tm.Released = true
	assert.Error(t, tm.Validate())

	// 非法状态
	tm = validTask()
	tm.WorkflowStatus = "paused"
	assert.Error(t, tm.Validate())
}

// TestWorkflowTransitions 测试工作流状态转移表
func TestWorkflowTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusOpen, StatusAccepted))
	assert.True(t, CanTransition(StatusAccepted, StatusSubmitted))
	assert.True(t, CanTransition(StatusSubmitted, StatusApproved))
	assert.True(t, CanTransition(StatusSubmitted, StatusChangesRequested))
	assert.True(t, CanTransition(StatusChangesRequested, StatusSubmitted))

	// 不允许跳跃或回退
	assert.False(t, CanTransition(StatusOpen, StatusSubmitted))
	assert.False(t, CanTransition(StatusOpen, StatusApproved))
	assert.False(t, CanTransition(StatusAccepted, StatusOpen))
	assert.False(t, CanTransition(StatusApproved, StatusSubmitted))
	assert.False(t, CanTransition(StatusApproved, StatusOpen))

	// 未知状态
	assert.False(t, CanTransition("unknown", StatusAccepted))
}

// TestIsValidStatus 测试状态值校验
func TestIsValidStatus(t *testing.T) {
	for _, s := range []string{StatusOpen, StatusAccepted, StatusSubmitted, StatusChangesRequested, StatusApproved} {
		assert.True(t, IsValidStatus(s), s)
	}
	assert.False(t, IsValidStatus("done"))
	assert.False(t, IsValidStatus(""))
}

// TestTaskTerminal 测试托管终结判定
func TestTaskTerminal(t *testing.T) {
	tm := validTask()
	assert.False(t, tm.Terminal())

	tm.Funded = true
	tm.Released = true
	assert.True(t, tm.Terminal())

	tm = validTask()
	tm.Cancelled = true
	assert.True(t, tm.Terminal())
}

// TestTaskFundable 测试注资前置条件
// 接单后和验收后都允许注资,已注资或已终结的不允许
func TestTaskFundable(t *testing.T) {
	tm := validTask()
	tm.WorkflowStatus = StatusOpen
	assert.False(t, tm.Fundable())

	tm.WorkflowStatus = StatusAccepted
	assert.True(t, tm.Fundable())

	tm.WorkflowStatus = StatusSubmitted
	assert.False(t, tm.Fundable())

	tm.WorkflowStatus = StatusApproved
	assert.True(t, tm.Fundable())

	tm.Funded = true
	assert.False(t, tm.Fundable())

	tm = validTask()
	tm.WorkflowStatus = StatusAccepted
	tm.Cancelled = true
	assert.False(t, tm.Fundable())
}

// TestTaskReleasable 测试释放前置条件
func TestTaskReleasable(t *testing.T) {
	tm := validTask()
	tm.WorkflowStatus = StatusApproved
	tm.Funded = true
	assert.True(t, tm.Releasable())

	// 未注资不可释放
	tm.Funded = false
	assert.False(t, tm.Releasable())

	// 未验收不可释放
	tm.Funded = true
	tm.WorkflowStatus = StatusSubmitted
	assert.False(t, tm.Releasable())

	// 已释放不可再释放
	tm.WorkflowStatus = StatusApproved
	tm.Released = true
	assert.False(t, tm.Releasable())
}
