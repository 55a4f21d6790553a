package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/escrow-gin/internal/ledger"
	"github.com/mautops/escrow-gin/internal/metrics"
	"github.com/mautops/escrow-gin/internal/model"
	"github.com/mautops/escrow-gin/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EscrowCoordinator 托管协调器接口
// 所有资金标志的翻转都发生在账本确认之后,绝不乐观预提交;
// 并发互斥依赖仓储层的条件更新,账本往返期间不持任何进程内锁
type EscrowCoordinator interface {
	CreateTask(ctx context.Context, req *CreateTaskRequest) (*model.TaskModel, error)
	GetTask(id string) (*model.TaskModel, error)
	ListTasks(filter *repository.TaskFilter) ([]*model.TaskModel, error)
	AcceptTask(ctx context.Context, taskID string, workerWallet string) (*model.TaskModel, error)
	FundEscrow(ctx context.Context, taskID string, amount decimal.Decimal, workerWallet string, actorWallet string) (*model.TaskModel, error)
	SubmitWork(ctx context.Context, taskID string, actorWallet string, req *SubmitWorkRequest) (*model.TaskModel, error)
	ApproveTask(ctx context.Context, taskID string, actorWallet string, reviewNote string) (*model.TaskModel, error)
	RequestChanges(ctx context.Context, taskID string, actorWallet string, reviewNote string) (*model.TaskModel, error)
	Release(ctx context.Context, taskID string, actorWallet string) (*model.TaskModel, error)
	// ReleaseByCondition 条件释放路径,Oracle 授权由条件服务完成
	ReleaseByCondition(ctx context.Context, taskID string) (*model.TaskModel, error)
	Cancel(ctx context.Context, taskID string, actorWallet string) (*model.TaskModel, error)
	RecordBridge(ctx context.Context, taskID string, actorWallet string, req *RecordBridgeRequest) (*model.TaskModel, error)
	Reconcile(ctx context.Context, taskID string) (*model.TaskModel, error)
}

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	Title        string          `json:"title" binding:"required"`
	Description  string          `json:"description"`
	PosterWallet string          `json:"poster_wallet" binding:"required"`
	RewardAmount decimal.Decimal `json:"reward_amount" binding:"required"`
	TokenSymbol  string          `json:"token_symbol" binding:"required"`
}

// SubmitWorkRequest 提交成果请求
type SubmitWorkRequest struct {
	SubmissionURL  string `json:"submission_url"`
	SubmissionNote string `json:"submission_note"`
}

// RecordBridgeRequest 记录 FAsset 桥交易请求
type RecordBridgeRequest struct {
	FAssetType   string `json:"fasset_type" binding:"required"`
	BridgeTxHash string `json:"bridge_tx_hash" binding:"required"`
}

// escrowCoordinator 托管协调器实现
type escrowCoordinator struct {
	taskRepo repository.TaskRepository
	ledger   ledger.Client
	audit    AuditLogService
	events   EventPublisher
	logger   *logrus.Logger
}

// NewEscrowCoordinator 创建托管协调器
func NewEscrowCoordinator(
	taskRepo repository.TaskRepository,
	ledgerClient ledger.Client,
	audit AuditLogService,
	events EventPublisher,
	logger *logrus.Logger,
) EscrowCoordinator {
	if events == nil {
		events = NopEvents{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &escrowCoordinator{
		taskRepo: taskRepo,
		ledger:   ledgerClient,
		audit:    audit,
		events:   events,
		logger:   logger,
	}
}

// CreateTask 创建任务,初始状态 open,未注资
func (s *escrowCoordinator) CreateTask(ctx context.Context, req *CreateTaskRequest) (*model.TaskModel, error) {
	task := &model.TaskModel{
		ID:             uuid.New().String(),
		Title:          req.Title,
		Description:    req.Description,
		PosterWallet:   req.PosterWallet,
		RewardAmount:   req.RewardAmount,
		TokenSymbol:    req.TokenSymbol,
		WorkflowStatus: model.StatusOpen,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := task.Validate(); err != nil {
		return nil, NewValidationError("invalid_task", "%s", err.Error())
	}

	if err := s.taskRepo.Save(task); err != nil {
		return nil, err
	}

	metrics.RecordTaskCreated()
	s.recordAudit(ctx, req.PosterWallet, "create", task.ID, "success", nil)
	return task, nil
}

// GetTask 查询任务
func (s *escrowCoordinator) GetTask(id string) (*model.TaskModel, error) {
	task, err := s.taskRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodeTaskNotFound, "task %s not found", id)
		}
		return nil, err
	}
	return task, nil
}

// ListTasks 按过滤器查询任务
func (s *escrowCoordinator) ListTasks(filter *repository.TaskFilter) ([]*model.TaskModel, error) {
	return s.taskRepo.FindByFilter(filter)
}

// AcceptTask 工人接单
// 守卫为"状态仍为 open",并发接单只有一个赢家,败者得到 TaskAlreadyAccepted
func (s *escrowCoordinator) AcceptTask(ctx context.Context, taskID string, workerWallet string) (*model.TaskModel, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	if workerWallet == "" {
		return nil, NewValidationError("invalid_task", "worker wallet is required")
	}
	if workerWallet == task.PosterWallet {
		return nil, NewValidationError(CodeWorkerIsPoster, "poster cannot accept own task")
	}
	if task.WorkflowStatus != model.StatusOpen {
		return nil, NewValidationError(CodeTaskAlreadyAccepted, "task %s is not open", taskID)
	}

	changed, err := s.taskRepo.AssignWorker(taskID, workerWallet)
	if err != nil {
		return nil, err
	}
	if !changed {
		// 守卫失败: 其他工人抢先接单,记录未被改动
		s.recordAudit(ctx, workerWallet, "accept", taskID, "failed", map[string]string{"reason": "already accepted"})
		return nil, NewValidationError(CodeTaskAlreadyAccepted, "task %s already accepted", taskID)
	}

	s.recordAudit(ctx, workerWallet, "accept", taskID, "success", nil)
	s.publish(taskID, "accepted", map[string]string{"worker": workerWallet})
	return s.GetTask(taskID)
}

// FundEscrow 发布者注资托管
// 金额必须与报酬完全一致（不允许部分注资）,账本确认后才置位 funded
func (s *escrowCoordinator) FundEscrow(ctx context.Context, taskID string, amount decimal.Decimal, workerWallet string, actorWallet string) (*model.TaskModel, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	if actorWallet != task.PosterWallet {
		s.recordAudit(ctx, actorWallet, "fund", taskID, "denied", nil)
		return nil, NewAuthorizationError("only the poster may fund task %s", taskID)
	}
	if task.Funded {
		return nil, NewValidationError(CodeAlreadyFunded, "task %s is already funded", taskID)
	}
	if !task.Fundable() {
		return nil, NewValidationError(CodeInvalidTransition, "task %s is not fundable in status %s", taskID, task.WorkflowStatus)
	}
	if workerWallet == "" || workerWallet != task.WorkerWallet {
		return nil, NewValidationError(CodeWorkerMismatch, "worker %s is not assigned to task %s", workerWallet, taskID)
	}
	if !amount.Equal(task.RewardAmount) {
		return nil, NewValidationError(CodeAmountMismatch,
			"amount %s does not match reward %s", amount.String(), task.RewardAmount.String())
	}

	receipt, err := s.ledger.Fund(ctx, taskID, workerWallet, amount)
	if err != nil {
		if ledger.IsOutcomeUnknown(err) {
			// 回执超时不是失败: 重新读取账本状态再决定
			return s.settleAfterTimeout(ctx, task, "fund")
		}
		metrics.RecordLedgerError("fund")
		s.recordAudit(ctx, actorWallet, "fund", taskID, "failed", map[string]string{"reason": ledgerReason(err)})
		return nil, NewLedgerError("fund", err)
	}

	return s.commitFunded(ctx, task, actorWallet, receipt.TxHash)
}

// commitFunded 账本确认注资后回写任务记录
func (s *escrowCoordinator) commitFunded(ctx context.Context, task *model.TaskModel, actorWallet string, txRef string) (*model.TaskModel, error) {
	changed, err := s.taskRepo.MarkFunded(task.ID, txRef)
	if err != nil {
		return nil, err
	}
	if !changed {
		// 并发注资的另一方已回写,对账确认后返回现状
		return s.Reconcile(ctx, task.ID)
	}

	metrics.RecordEscrowFunded()
	s.recordAudit(ctx, actorWallet, "fund", task.ID, "success", map[string]string{"tx": txRef})
	s.publish(task.ID, "funded", map[string]string{"tx": txRef})
	return s.GetTask(task.ID)
}

// SubmitWork 工人提交成果,纯工作流转移,不触账本
func (s *escrowCoordinator) SubmitWork(ctx context.Context, taskID string, actorWallet string, req *SubmitWorkRequest) (*model.TaskModel, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	if actorWallet != task.WorkerWallet {
		s.recordAudit(ctx, actorWallet, "submit", taskID, "denied", nil)
		return nil, NewAuthorizationError("only the assigned worker may submit task %s", taskID)
	}
	if !model.CanTransition(task.WorkflowStatus, model.StatusSubmitted) {
		return nil, NewValidationError(CodeInvalidTransition,
			"cannot submit task %s from status %s", taskID, task.WorkflowStatus)
	}

	now := time.Now()
	extra := map[string]interface{}{"submitted_at": now}
	if req != nil {
		extra["submission_url"] = req.SubmissionURL
		extra["submission_note"] = req.SubmissionNote
	}

	changed, err := s.taskRepo.TransitionStatus(taskID, task.WorkflowStatus, model.StatusSubmitted, extra)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, NewValidationError(CodeInvalidTransition, "task %s changed concurrently", taskID)
	}

	s.recordAudit(ctx, actorWallet, "submit", taskID, "success", nil)
	s.publish(taskID, "submitted", nil)
	return s.GetTask(taskID)
}

// ApproveTask 发布者验收,纯工作流转移,不触账本
func (s *escrowCoordinator) ApproveTask(ctx context.Context, taskID string, actorWallet string, reviewNote string) (*model.TaskModel, error) {
	return s.review(ctx, taskID, actorWallet, reviewNote, model.StatusApproved, "approve")
}

// RequestChanges 发布者要求修改,工人可再次提交
func (s *escrowCoordinator) RequestChanges(ctx context.Context, taskID string, actorWallet string, reviewNote string) (*model.TaskModel, error) {
	return s.review(ctx, taskID, actorWallet, reviewNote, model.StatusChangesRequested, "request_changes")
}

// review 验收路径的公共实现
func (s *escrowCoordinator) review(ctx context.Context, taskID string, actorWallet string, reviewNote string, to string, action string) (*model.TaskModel, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	if actorWallet != task.PosterWallet {
		s.recordAudit(ctx, actorWallet, action, taskID, "denied", nil)
		return nil, NewAuthorizationError("only the poster may review task %s", taskID)
	}
	if !model.CanTransition(task.WorkflowStatus, to) {
		return nil, NewValidationError(CodeInvalidTransition,
			"cannot move task %s from %s to %s", taskID, task.WorkflowStatus, to)
	}

	extra := map[string]interface{}{"review_note": reviewNote}
	if to == model.StatusApproved {
		extra["approved_at"] = time.Now()
	}

	changed, err := s.taskRepo.TransitionStatus(taskID, task.WorkflowStatus, to, extra)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, NewValidationError(CodeInvalidTransition, "task %s changed concurrently", taskID)
	}

	s.recordAudit(ctx, actorWallet, action, taskID, "success", nil)
	s.publish(taskID, to, nil)
	return s.GetTask(taskID)
}

// Release 发布者释放托管
// 幂等: 已释放的任务再次调用是无操作成功,账本报 AlreadyReleased
// 视为成功（先前尝试可能已上链但记录回写丢失）
func (s *escrowCoordinator) Release(ctx context.Context, taskID string, actorWallet string) (*model.TaskModel, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	if actorWallet != task.PosterWallet {
		s.recordAudit(ctx, actorWallet, "release", taskID, "denied", nil)
		return nil, NewAuthorizationError("only the poster may release task %s", taskID)
	}

	return s.performRelease(ctx, task, actorWallet, "direct")
}

// ReleaseByCondition Oracle 触发的释放
// 调用方（条件服务）已完成 Oracle 身份验证,这里只执行释放路径
func (s *escrowCoordinator) ReleaseByCondition(ctx context.Context, taskID string) (*model.TaskModel, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	return s.performRelease(ctx, task, "oracle", "condition")
}

// performRelease 释放路径的公共实现,供 Release 与条件释放共用
// 调用前授权已验证,这里只负责前置条件、账本调用与回写
func (s *escrowCoordinator) performRelease(ctx context.Context, task *model.TaskModel, actorWallet string, path string) (*model.TaskModel, error) {
	if task.Released {
		// 资金绝不二次转移,重复释放是无操作
		return task, nil
	}
	if task.Cancelled {
		return nil, NewValidationError(CodeAlreadyCancelled, "task %s is cancelled", task.ID)
	}
	if !task.Funded {
		return nil, NewValidationError(CodeNotFunded, "task %s is not funded", task.ID)
	}
	if task.WorkflowStatus != model.StatusApproved {
		return nil, NewValidationError(CodeNotApproved, "task %s is not approved", task.ID)
	}

	receipt, err := s.ledger.Release(ctx, task.ID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAlreadyReleased):
			// 先前的尝试已在链上成功,只是记录回写丢失; 视为成功并对账
			s.logger.WithField("task_id", task.ID).Warn("ledger already released, reconciling record")
			return s.Reconcile(ctx, task.ID)
		case ledger.IsOutcomeUnknown(err):
			return s.settleAfterTimeout(ctx, task, "release")
		default:
			metrics.RecordLedgerError("release")
			s.recordAudit(ctx, actorWallet, "release", task.ID, "failed", map[string]string{"reason": ledgerReason(err)})
			return nil, NewLedgerError("release", err)
		}
	}

	changed, err := s.taskRepo.MarkReleased(task.ID, receipt.TxHash)
	if err != nil {
		return nil, err
	}
	if !changed {
		// 并发释放的另一方已回写
		return s.Reconcile(ctx, task.ID)
	}

	metrics.RecordEscrowReleased(path)
	s.recordAudit(ctx, actorWallet, "release", task.ID, "success", map[string]string{"tx": receipt.TxHash, "path": path})
	s.publish(task.ID, "released", map[string]string{"tx": receipt.TxHash})
	return s.GetTask(task.ID)
}

// Cancel 发布者取消托管,资金退回
// 仅在未释放时允许,账本报 AlreadyReleased 时对账后原样上报
func (s *escrowCoordinator) Cancel(ctx context.Context, taskID string, actorWallet string) (*model.TaskModel, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	if actorWallet != task.PosterWallet {
		s.recordAudit(ctx, actorWallet, "cancel", taskID, "denied", nil)
		return nil, NewAuthorizationError("only the poster may cancel task %s", taskID)
	}
	if task.Released {
		return nil, NewValidationError(CodeAlreadyReleased, "task %s is already released", taskID)
	}
	if task.Cancelled {
		return task, nil
	}

	// 未注资的任务没有账本侧托管,直接取消记录
	if !task.Funded {
		changed, err := s.taskRepo.MarkCancelled(taskID)
		if err != nil {
			return nil, err
		}
		if !changed {
			return s.Reconcile(ctx, taskID)
		}
		metrics.RecordEscrowCancelled()
		s.recordAudit(ctx, actorWallet, "cancel", taskID, "success", nil)
		s.publish(taskID, "cancelled", nil)
		return s.GetTask(taskID)
	}

	receipt, err := s.ledger.Cancel(ctx, taskID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAlreadyReleased):
			// 账本上资金已付出,以账本为准修正记录,再上报给调用方
			if _, rerr := s.Reconcile(ctx, taskID); rerr != nil {
				s.logger.WithError(rerr).WithField("task_id", taskID).Error("reconcile after cancel conflict failed")
			}
			s.recordAudit(ctx, actorWallet, "cancel", taskID, "failed", map[string]string{"reason": "already released"})
			return nil, NewValidationError(CodeAlreadyReleased, "task %s funds already paid out", taskID)
		case ledger.IsOutcomeUnknown(err):
			return s.settleAfterTimeout(ctx, task, "cancel")
		default:
			metrics.RecordLedgerError("cancel")
			s.recordAudit(ctx, actorWallet, "cancel", taskID, "failed", map[string]string{"reason": ledgerReason(err)})
			return nil, NewLedgerError("cancel", err)
		}
	}

	changed, err := s.taskRepo.MarkCancelled(taskID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return s.Reconcile(ctx, taskID)
	}

	metrics.RecordEscrowCancelled()
	s.recordAudit(ctx, actorWallet, "cancel", taskID, "success", map[string]string{"tx": receipt.TxHash})
	s.publish(taskID, "cancelled", map[string]string{"tx": receipt.TxHash})
	return s.GetTask(taskID)
}

// RecordBridge 记录跨链资产的桥交易,条件释放前须验证
func (s *escrowCoordinator) RecordBridge(ctx context.Context, taskID string, actorWallet string, req *RecordBridgeRequest) (*model.TaskModel, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	if actorWallet != task.PosterWallet {
		return nil, NewAuthorizationError("only the poster may record a bridge tx for task %s", taskID)
	}
	if task.Terminal() {
		return nil, NewValidationError(CodeInvalidTransition, "task %s escrow is already settled", taskID)
	}

	if err := s.taskRepo.RecordBridge(taskID, req.FAssetType, req.BridgeTxHash, false); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actorWallet, "record_bridge", taskID, "success", map[string]string{"bridge_tx": req.BridgeTxHash})
	return s.GetTask(taskID)
}

// settleAfterTimeout 回执超时后的裁定
// 超时不是失败: 重新读取账本,若操作实际已生效则照常回写,
// 否则把超时作为账本错误上报,由调用方退避后重试
func (s *escrowCoordinator) settleAfterTimeout(ctx context.Context, task *model.TaskModel, op string) (*model.TaskModel, error) {
	state, err := s.ledger.ReadState(ctx, task.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownTask) && op == "fund" {
			// 注资未生效
			return nil, NewLedgerError(op, ledger.ErrTimeout)
		}
		metrics.RecordLedgerError(op)
		return nil, NewLedgerError("readState", err)
	}

	effective := false
	switch op {
	case "fund":
		effective = state.Funded
	case "release":
		effective = state.Released
	case "cancel":
		effective = state.Cancelled
	}

	if !effective {
		return nil, NewLedgerError(op, ledger.ErrTimeout)
	}

	s.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"op":      op,
	}).Warn("ledger op landed despite receipt timeout, reconciling")
	return s.Reconcile(ctx, task.ID)
}

// Reconcile 以账本状态为准重新推导任务记录
// 账本是资金的唯一权威,记录与其不一致时记录让步,绝不反向
func (s *escrowCoordinator) Reconcile(ctx context.Context, taskID string) (*model.TaskModel, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	state, err := s.ledger.ReadState(ctx, taskID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownTask) {
			// 账本上没有托管: 记录声称已注资即为不一致
			if task.Funded {
				cerr := &ConsistencyError{TaskID: taskID, Message: "record claims funded but ledger has no escrow"}
				s.logger.WithField("task_id", taskID).Error(cerr.Error())
				metrics.RecordReconciliation("divergent")
				if werr := s.taskRepo.OverwriteEscrowFlags(taskID, false, false, task.Cancelled); werr != nil {
					return nil, werr
				}
				return s.GetTask(taskID)
			}
			metrics.RecordReconciliation("clean")
			return task, nil
		}
		return nil, NewLedgerError("readState", err)
	}

	if task.Funded == state.Funded && task.Released == state.Released && task.Cancelled == state.Cancelled {
		metrics.RecordReconciliation("clean")
		return task, nil
	}

	cerr := &ConsistencyError{TaskID: taskID, Message: "record diverges from ledger, re-deriving from ledger"}
	s.logger.WithFields(logrus.Fields{
		"task_id":          taskID,
		"record_funded":    task.Funded,
		"record_released":  task.Released,
		"record_cancelled": task.Cancelled,
		"ledger_funded":    state.Funded,
		"ledger_released":  state.Released,
		"ledger_cancelled": state.Cancelled,
	}).Error(cerr.Error())
	metrics.RecordReconciliation("divergent")

	if err := s.taskRepo.OverwriteEscrowFlags(taskID, state.Funded, state.Released, state.Cancelled); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "system", "reconcile", taskID, "success", map[string]bool{
		"funded": state.Funded, "released": state.Released, "cancelled": state.Cancelled,
	})
	return s.GetTask(taskID)
}

// recordAudit 追加审计日志,失败只记日志不阻断主流程
func (s *escrowCoordinator) recordAudit(ctx context.Context, actor string, action string, taskID string, outcome string, details interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordAction(ctx, actor, action, taskID, outcome, details); err != nil {
		s.logger.WithError(err).Warn("failed to record audit log")
	}
}

// publish 广播任务事件,无订阅者时为空操作
func (s *escrowCoordinator) publish(taskID string, event string, payload map[string]string) {
	s.events.PublishTaskEvent(&TaskEvent{
		TaskID:    taskID,
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}
