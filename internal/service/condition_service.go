package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/mautops/escrow-gin/internal/integration"
	"github.com/mautops/escrow-gin/internal/metrics"
	"github.com/mautops/escrow-gin/internal/model"
	"github.com/mautops/escrow-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"
	"gorm.io/gorm"
)

// OracleVerifier 验证条件释放调用者的 Oracle 身份
// 认证机制在外部,这里只消费其判定结果
type OracleVerifier interface {
	VerifyProof(ctx context.Context, callerWallet string, conditionHash string, proof string) error
}

// BridgeVerifier 验证 FAsset 跨链桥交易
type BridgeVerifier interface {
	VerifyBridge(ctx context.Context, taskID string, bridgeTxHash string, assetType string) (*integration.BridgeVerification, error)
}

// ConditionService 条件注册与条件释放服务
// 条件释放复用与人工释放完全相同的释放路径,只是触发者
// 从发布者换成了经过验证的 Oracle
type ConditionService interface {
	RegisterCondition(ctx context.Context, taskID string, conditionHash string) (*model.ConditionRegistration, error)
	ReleaseIf(ctx context.Context, conditionHash string, proof string, callerWallet string) (*model.TaskModel, error)
	GetRegistration(conditionHash string) (*model.ConditionRegistration, error)
}

// conditionService 条件服务实现
type conditionService struct {
	condRepo    repository.ConditionRepository
	taskRepo    repository.TaskRepository
	coordinator EscrowCoordinator
	oracle      OracleVerifier
	bridge      BridgeVerifier
	audit       AuditLogService
	logger      *logrus.Logger
}

// NewConditionService 创建条件服务
func NewConditionService(
	condRepo repository.ConditionRepository,
	taskRepo repository.TaskRepository,
	coordinator EscrowCoordinator,
	oracle OracleVerifier,
	bridge BridgeVerifier,
	audit AuditLogService,
	logger *logrus.Logger,
) ConditionService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &conditionService{
		condRepo:    condRepo,
		taskRepo:    taskRepo,
		coordinator: coordinator,
		oracle:      oracle,
		bridge:      bridge,
		audit:       audit,
		logger:      logger,
	}
}

// ComputeConditionHash 计算条件指纹（keccak-256,与链上一致）
func ComputeConditionHash(taskID string, nonce int64) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"taskId": taskID,
		"nonce":  nonce,
	})
	h := sha3.NewLegacyKeccak256()
	h.Write(payload)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// RegisterCondition 注册条件哈希
// 同一 (taskId, hash) 幂等; 任务的未解决旧哈希被新哈希覆盖;
// 已解决的哈希拒绝重注册
func (s *conditionService) RegisterCondition(ctx context.Context, taskID string, conditionHash string) (*model.ConditionRegistration, error) {
	probe := &model.ConditionRegistration{ConditionHash: conditionHash, TaskID: taskID}
	if err := probe.Validate(); err != nil {
		return nil, NewValidationError("invalid_condition", "%s", err.Error())
	}

	task, err := s.taskRepo.FindByID(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodeTaskNotFound, "task %s not found", taskID)
		}
		return nil, err
	}
	if task.Terminal() {
		return nil, NewValidationError(CodeInvalidTransition, "task %s escrow is already settled", taskID)
	}

	reg, err := s.condRepo.Register(taskID, conditionHash)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConditionResolved):
			return nil, NewValidationError(CodeConditionResolved, "condition %s already resolved", conditionHash)
		case errors.Is(err, repository.ErrConditionBound):
			return nil, NewValidationError("condition_bound", "condition %s bound to another task", conditionHash)
		default:
			return nil, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"task_id":        taskID,
		"condition_hash": conditionHash,
	}).Info("condition registered")
	return reg, nil
}

// GetRegistration 查询条件注册
func (s *conditionService) GetRegistration(conditionHash string) (*model.ConditionRegistration, error) {
	reg, err := s.condRepo.FindByHash(conditionHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodeConditionNotFound, "condition %s not registered", conditionHash)
		}
		return nil, err
	}
	return reg, nil
}

// ReleaseIf Oracle 触发的条件释放
// 仅指定的 Oracle 身份可调用; 未知哈希返回 ConditionNotFound;
// 已解决的哈希是无操作,返回 AlreadyResolved 而非错误升级
func (s *conditionService) ReleaseIf(ctx context.Context, conditionHash string, proof string, callerWallet string) (*model.TaskModel, error) {
	if err := s.oracle.VerifyProof(ctx, callerWallet, conditionHash, proof); err != nil {
		if s.audit != nil {
			_ = s.audit.RecordAction(ctx, callerWallet, "release_if", conditionHash, "denied", nil)
		}
		return nil, NewAuthorizationError("caller is not the designated oracle: %v", err)
	}

	reg, err := s.condRepo.FindByHash(conditionHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodeConditionNotFound, "condition %s not registered", conditionHash)
		}
		return nil, err
	}
	if reg.Resolved {
		return nil, NewValidationError(CodeConditionResolved, "condition %s already resolved", conditionHash)
	}

	task, err := s.taskRepo.FindByID(reg.TaskID)
	if err != nil {
		return nil, err
	}

	// 跨链资产必须先验证桥交易,才允许条件释放
	if task.FAssetType != "" && !task.BridgeVerified {
		if err := s.verifyBridge(ctx, task); err != nil {
			return nil, err
		}
	}

	released, err := s.coordinator.ReleaseByCondition(ctx, reg.TaskID)
	if err != nil {
		return nil, err
	}

	resolved, err := s.condRepo.MarkResolved(conditionHash)
	if err != nil {
		return nil, err
	}
	if !resolved {
		// 并发 ReleaseIf 的另一方先行解决; 释放本身幂等,无资金风险
		s.logger.WithField("condition_hash", conditionHash).Warn("condition resolved concurrently")
	}

	if s.audit != nil {
		_ = s.audit.RecordAction(ctx, callerWallet, "release_if", reg.TaskID, "success",
			map[string]string{"condition_hash": conditionHash})
	}
	metrics.RecordConditionResolved()
	return released, nil
}

// verifyBridge 校验 FAsset 桥交易并回写验证结果
func (s *conditionService) verifyBridge(ctx context.Context, task *model.TaskModel) error {
	if task.BridgeTxHash == "" {
		return NewValidationError(CodeBridgeUnverified, "task %s has no recorded bridge tx", task.ID)
	}
	if s.bridge == nil {
		return NewValidationError(CodeBridgeUnverified, "bridge verification is not configured")
	}

	result, err := s.bridge.VerifyBridge(ctx, task.ID, task.BridgeTxHash, task.FAssetType)
	if err != nil {
		return NewLedgerError("verifyBridge", err)
	}
	if !result.Verified {
		return NewValidationError(CodeBridgeUnverified, "bridge tx %s failed verification", task.BridgeTxHash)
	}

	return s.taskRepo.RecordBridge(task.ID, task.FAssetType, task.BridgeTxHash, true)
}
