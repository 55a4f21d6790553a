package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/escrow-gin/internal/model"
	"github.com/mautops/escrow-gin/internal/repository"
)

// AuditLogService 审计日志服务
type AuditLogService interface {
	RecordAction(ctx context.Context, actorWallet string, action string, taskID string, outcome string, details interface{}) error
}

// auditLogService 审计日志服务实现
type auditLogService struct {
	auditRepo repository.AuditLogRepository
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{
		auditRepo: auditRepo,
	}
}

// RecordAction 记录操作审计日志
func (s *auditLogService) RecordAction(
	ctx context.Context,
	actorWallet string,
	action string,
	taskID string,
	outcome string,
	details interface{},
) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return err
		}
	}

	// 获取请求信息
	requestID := ""
	if req := ctx.Value("request_id"); req != nil {
		requestID = req.(string)
	}

	ip := ""
	if req := ctx.Value("ip"); req != nil {
		ip = req.(string)
	}

	auditLog := &model.AuditLogModel{
		ID:          uuid.New().String(),
		ActorWallet: actorWallet,
		Action:      action,
		TaskID:      taskID,
		Outcome:     outcome,
		RequestID:   requestID,
		IP:          ip,
		Details:     detailsJSON,
		CreatedAt:   time.Now(),
	}

	return s.auditRepo.Save(auditLog)
}
