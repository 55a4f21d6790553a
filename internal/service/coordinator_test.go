package service

import (
	"context"
	"testing"

	"github.com/mautops/escrow-gin/internal/database"
	"github.com/mautops/escrow-gin/internal/ledger"
	"github.com/mautops/escrow-gin/internal/model"
	"github.com/mautops/escrow-gin/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPoster = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testWorker = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type coordinatorFixture struct {
	coordinator EscrowCoordinator
	taskRepo    repository.TaskRepository
	auditRepo   repository.AuditLogRepository
	ledger      *ledger.MemoryLedger
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	db, err := database.ConnectSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	taskRepo := repository.NewTaskRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	memLedger := ledger.NewMemoryLedger()
	coordinator := NewEscrowCoordinator(taskRepo, memLedger, NewAuditLogService(auditRepo), nil, nil)

	return &coordinatorFixture{
		coordinator: coordinator,
		taskRepo:    taskRepo,
		auditRepo:   auditRepo,
		ledger:      memLedger,
	}
}

func (f *coordinatorFixture) createTask(t *testing.T) *model.TaskModel {
	t.Helper()
	task, err := f.coordinator.CreateTask(context.Background(), &CreateTaskRequest{
		Title:        "translate landing page",
		PosterWallet: testPoster,
		RewardAmount: decimal.RequireFromString("0.02"),
		TokenSymbol:  "FLR",
	})
	require.NoError(t, err)
	return task
}

// acceptAndFund 接单并注资
func (f *coordinatorFixture) acceptAndFund(t *testing.T) *model.TaskModel {
	t.Helper()
	ctx := context.Background()
	task := f.createTask(t)
	_, err := f.coordinator.AcceptTask(ctx, task.ID, testWorker)
	require.NoError(t, err)
	task, err = f.coordinator.FundEscrow(ctx, task.ID, decimal.RequireFromString("0.02"), testWorker, testPoster)
	require.NoError(t, err)
	return task
}

// approve 提交并验收
func (f *coordinatorFixture) approve(t *testing.T, taskID string) *model.TaskModel {
	t.Helper()
	ctx := context.Background()
	_, err := f.coordinator.SubmitWork(ctx, taskID, testWorker, &SubmitWorkRequest{SubmissionURL: "https://example.com/work"})
	require.NoError(t, err)
	task, err := f.coordinator.ApproveTask(ctx, taskID, testPoster, "looks good")
	require.NoError(t, err)
	return task
}

// TestLifecycleHappyPath 测试完整生命周期
// 发布 -> 接单 -> 注资 -> 提交 -> 验收 -> 释放
func TestLifecycleHappyPath(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()

	task := f.acceptAndFund(t)
	assert.Equal(t, model.StatusAccepted, task.WorkflowStatus)
	assert.True(t, task.Funded)
	assert.NotEmpty(t, task.FundingTxRef)

	task = f.approve(t, task.ID)
	assert.Equal(t, model.StatusApproved, task.WorkflowStatus)
	assert.NotNil(t, task.ApprovedAt)

	task, err := f.coordinator.Release(ctx, task.ID, testPoster)
	assert.NoError(t, err)
	assert.True(t, task.Released)
	assert.False(t, task.Cancelled)
	assert.NotEmpty(t, task.PayoutTxRef)

	// 账本与记录一致
	state, err := f.ledger.ReadState(ctx, task.ID)
	assert.NoError(t, err)
	assert.True(t, state.Released)

	// 审计日志覆盖每一步
	logs, err := f.auditRepo.FindByTaskID(task.ID)
	assert.NoError(t, err)
	assert.NotEmpty(t, logs)
}

// TestAcceptTaskRace 测试接单竞争
// 并发接单只有一个赢家,守卫败者得到 TaskAlreadyAccepted
func TestAcceptTaskRace(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.coordinator.AcceptTask(ctx, task.ID, testWorker)
	assert.NoError(t, err)

	_, err = f.coordinator.AcceptTask(ctx, task.ID, "0xcccccccccccccccccccccccccccccccccccccccc")
	assert.True(t, IsValidation(err))
	assert.Equal(t, CodeTaskAlreadyAccepted, ValidationCode(err))

	// 赢家绑定不被覆盖
	found, err := f.coordinator.GetTask(task.ID)
	assert.NoError(t, err)
	assert.Equal(t, testWorker, found.WorkerWallet)
}

// TestAcceptTaskPosterRejected 测试发布者不能接自己的任务
func TestAcceptTaskPosterRejected(t *testing.T) {
	f := newCoordinatorFixture(t)
	task := f.createTask(t)

	_, err := f.coordinator.AcceptTask(context.Background(), task.ID, testPoster)
	assert.True(t, IsValidation(err))
	assert.Equal(t, CodeWorkerIsPoster, ValidationCode(err))
}

// TestFundEscrowGuards 测试注资前置条件
func TestFundEscrowGuards(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	reward := decimal.RequireFromString("0.02")

	task := f.createTask(t)

	// 未接单不可注资
	_, err := f.coordinator.FundEscrow(ctx, task.ID, reward, testWorker, testPoster)
	assert.Equal(t, CodeInvalidTransition, ValidationCode(err))

	_, err = f.coordinator.AcceptTask(ctx, task.ID, testWorker)
	require.NoError(t, err)

	// 只有发布者可以注资
	_, err = f.coordinator.FundEscrow(ctx, task.ID, reward, testWorker, testWorker)
	assert.True(t, IsAuthorization(err))

	// 金额必须与报酬完全一致,部分注资被拒绝
	_, err = f.coordinator.FundEscrow(ctx, task.ID, decimal.RequireFromString("0.019"), testWorker, testPoster)
	assert.Equal(t, CodeAmountMismatch, ValidationCode(err))
	_, err = f.coordinator.FundEscrow(ctx, task.ID, decimal.RequireFromString("0.021"), testWorker, testPoster)
	assert.Equal(t, CodeAmountMismatch, ValidationCode(err))

	// 工人必须与记录绑定的一致
	_, err = f.coordinator.FundEscrow(ctx, task.ID, reward, "0xcccccccccccccccccccccccccccccccccccccccc", testPoster)
	assert.Equal(t, CodeWorkerMismatch, ValidationCode(err))

	// 正常注资
	funded, err := f.coordinator.FundEscrow(ctx, task.ID, reward, testWorker, testPoster)
	assert.NoError(t, err)
	assert.True(t, funded.Funded)

	// 重复注资被拒绝
	_, err = f.coordinator.FundEscrow(ctx, task.ID, reward, testWorker, testPoster)
	assert.Equal(t, CodeAlreadyFunded, ValidationCode(err))
}

// TestSubmitAndReviewAuthorization 测试提交与验收的身份约束
func TestSubmitAndReviewAuthorization(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.acceptAndFund(t)

	// 只有绑定的工人可以提交
	_, err := f.coordinator.SubmitWork(ctx, task.ID, testPoster, nil)
	assert.True(t, IsAuthorization(err))

	_, err = f.coordinator.SubmitWork(ctx, task.ID, testWorker, &SubmitWorkRequest{SubmissionURL: "https://example.com/v1"})
	assert.NoError(t, err)

	// 只有发布者可以验收
	_, err = f.coordinator.ApproveTask(ctx, task.ID, testWorker, "")
	assert.True(t, IsAuthorization(err))

	// 要求修改后工人可以再次提交
	changed, err := f.coordinator.RequestChanges(ctx, task.ID, testPoster, "needs rework")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusChangesRequested, changed.WorkflowStatus)
	assert.Equal(t, "needs rework", changed.ReviewNote)

	resubmitted, err := f.coordinator.SubmitWork(ctx, task.ID, testWorker, &SubmitWorkRequest{SubmissionURL: "https://example.com/v2"})
	assert.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, resubmitted.WorkflowStatus)
	assert.Equal(t, "https://example.com/v2", resubmitted.SubmissionURL)

	approved, err := f.coordinator.ApproveTask(ctx, task.ID, testPoster, "ok now")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.WorkflowStatus)
}

// TestReleaseGuards 测试释放前置条件
func TestReleaseGuards(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.acceptAndFund(t)

	// 只有发布者可以释放
	_, err := f.coordinator.Release(ctx, task.ID, testWorker)
	assert.True(t, IsAuthorization(err))

	// 未验收不可释放
	_, err = f.coordinator.Release(ctx, task.ID, testPoster)
	assert.Equal(t, CodeNotApproved, ValidationCode(err))
}

// TestReleaseIdempotent 测试释放幂等
// 重复释放是无操作成功,报酬绝不二次转移
func TestReleaseIdempotent(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.acceptAndFund(t)
	f.approve(t, task.ID)

	released, err := f.coordinator.Release(ctx, task.ID, testPoster)
	require.NoError(t, err)
	firstPayout := released.PayoutTxRef

	again, err := f.coordinator.Release(ctx, task.ID, testPoster)
	assert.NoError(t, err)
	assert.True(t, again.Released)
	assert.Equal(t, firstPayout, again.PayoutTxRef)
}

// TestReleaseAlreadyReleasedOnLedger 测试账本报 AlreadyReleased 视为成功
// 先前尝试已上链但记录回写丢失的场景: 释放调用对账后返回成功
func TestReleaseAlreadyReleasedOnLedger(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.acceptAndFund(t)
	f.approve(t, task.ID)

	// 模拟链上已释放而记录未回写
	_, err := f.ledger.Release(ctx, task.ID)
	require.NoError(t, err)

	released, err := f.coordinator.Release(ctx, task.ID, testPoster)
	assert.NoError(t, err)
	assert.True(t, released.Released)
}

// TestReleaseTimeoutLanded 测试回执超时但交易落地
// 超时不是失败: 重新读取账本,确认已生效后照常回写
func TestReleaseTimeoutLanded(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.acceptAndFund(t)
	f.approve(t, task.ID)

	f.ledger.InjectFault("release", ledger.ErrTimeout, true)

	released, err := f.coordinator.Release(ctx, task.ID, testPoster)
	assert.NoError(t, err)
	assert.True(t, released.Released)
}

// TestFundTimeoutNotLanded 测试回执超时且交易未落地
// 账本上没有托管,超时作为账本错误上报,记录保持未注资
func TestFundTimeoutNotLanded(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.createTask(t)
	_, err := f.coordinator.AcceptTask(ctx, task.ID, testWorker)
	require.NoError(t, err)

	f.ledger.InjectFault("fund", ledger.ErrTimeout, false)

	_, err = f.coordinator.FundEscrow(ctx, task.ID, decimal.RequireFromString("0.02"), testWorker, testPoster)
	assert.True(t, IsLedger(err))
	assert.ErrorIs(t, err, ledger.ErrTimeout)

	found, _ := f.coordinator.GetTask(task.ID)
	assert.False(t, found.Funded)

	// 重试成功
	funded, err := f.coordinator.FundEscrow(ctx, task.ID, decimal.RequireFromString("0.02"), testWorker, testPoster)
	assert.NoError(t, err)
	assert.True(t, funded.Funded)
}

// TestFundTimeoutLanded 测试注资回执超时但已落地
func TestFundTimeoutLanded(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.createTask(t)
	_, err := f.coordinator.AcceptTask(ctx, task.ID, testWorker)
	require.NoError(t, err)

	f.ledger.InjectFault("fund", ledger.ErrTimeout, true)

	funded, err := f.coordinator.FundEscrow(ctx, task.ID, decimal.RequireFromString("0.02"), testWorker, testPoster)
	assert.NoError(t, err)
	assert.True(t, funded.Funded)
}

// TestCancelUnfunded 测试未注资任务的取消
// 没有账本侧托管,直接取消记录
func TestCancelUnfunded(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	cancelled, err := f.coordinator.Cancel(ctx, task.ID, testPoster)
	assert.NoError(t, err)
	assert.True(t, cancelled.Cancelled)
	assert.False(t, cancelled.Funded)

	// 重复取消是无操作
	again, err := f.coordinator.Cancel(ctx, task.ID, testPoster)
	assert.NoError(t, err)
	assert.True(t, again.Cancelled)
}

// TestCancelFunded 测试已注资任务的取消退款
func TestCancelFunded(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.acceptAndFund(t)

	cancelled, err := f.coordinator.Cancel(ctx, task.ID, testPoster)
	assert.NoError(t, err)
	assert.True(t, cancelled.Cancelled)

	state, err := f.ledger.ReadState(ctx, task.ID)
	assert.NoError(t, err)
	assert.True(t, state.Cancelled)

	// 已取消的托管不可释放
	f.approve(t, task.ID)
	_, err = f.coordinator.Release(ctx, task.ID, testPoster)
	assert.Equal(t, CodeAlreadyCancelled, ValidationCode(err))
}

// TestCancelAfterRelease 测试已释放任务的取消冲突
func TestCancelAfterRelease(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.acceptAndFund(t)
	f.approve(t, task.ID)

	_, err := f.coordinator.Release(ctx, task.ID, testPoster)
	require.NoError(t, err)

	_, err = f.coordinator.Cancel(ctx, task.ID, testPoster)
	assert.Equal(t, CodeAlreadyReleased, ValidationCode(err))
}

// TestCancelLedgerConflict 测试记录落后于账本时的取消
// 账本上资金已付出,对账修正记录后原样上报
func TestCancelLedgerConflict(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.acceptAndFund(t)

	// 链上已释放而记录未回写
	_, err := f.ledger.Release(ctx, task.ID)
	require.NoError(t, err)

	_, err = f.coordinator.Cancel(ctx, task.ID, testPoster)
	assert.Equal(t, CodeAlreadyReleased, ValidationCode(err))

	// 对账已把记录修正为已释放
	found, _ := f.coordinator.GetTask(task.ID)
	assert.True(t, found.Released)
}

// TestReconcileDivergence 测试对账
// 记录声称已注资但账本没有托管,以账本为准让步
func TestReconcileDivergence(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.createTask(t)

	// 人为制造不一致
	require.NoError(t, f.taskRepo.OverwriteEscrowFlags(task.ID, true, false, false))

	reconciled, err := f.coordinator.Reconcile(ctx, task.ID)
	assert.NoError(t, err)
	assert.False(t, reconciled.Funded)
}

// TestReconcileClean 测试无分歧对账
func TestReconcileClean(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.acceptAndFund(t)

	reconciled, err := f.coordinator.Reconcile(ctx, task.ID)
	assert.NoError(t, err)
	assert.True(t, reconciled.Funded)
	assert.False(t, reconciled.Released)
}

// TestRecordBridge 测试桥交易登记
func TestRecordBridge(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	task := f.acceptAndFund(t)

	// 只有发布者可以登记
	_, err := f.coordinator.RecordBridge(ctx, task.ID, testWorker, &RecordBridgeRequest{FAssetType: "BTC", BridgeTxHash: "0xbridge"})
	assert.True(t, IsAuthorization(err))

	recorded, err := f.coordinator.RecordBridge(ctx, task.ID, testPoster, &RecordBridgeRequest{FAssetType: "BTC", BridgeTxHash: "0xbridge"})
	assert.NoError(t, err)
	assert.Equal(t, "BTC", recorded.FAssetType)
	assert.Equal(t, "0xbridge", recorded.BridgeTxHash)
	assert.False(t, recorded.BridgeVerified)
}

// TestGetTaskNotFound 测试任务不存在
func TestGetTaskNotFound(t *testing.T) {
	f := newCoordinatorFixture(t)

	_, err := f.coordinator.GetTask("missing")
	assert.Equal(t, CodeTaskNotFound, ValidationCode(err))
}
