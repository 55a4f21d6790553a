package repository

import (
	"github.com/mautops/escrow-gin/internal/model"
	"gorm.io/gorm"
)

// AuditLogRepository 审计日志仓储接口
type AuditLogRepository interface {
	Save(log *model.AuditLogModel) error
	FindByActor(actorWallet string) ([]*model.AuditLogModel, error)
	FindByTaskID(taskID string) ([]*model.AuditLogModel, error)
}

// auditLogRepository 审计日志仓储实现
type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Save 保存审计日志
func (r *auditLogRepository) Save(log *model.AuditLogModel) error {
	return r.db.Save(log).Error
}

// FindByActor 根据操作者查找审计日志
func (r *auditLogRepository) FindByActor(actorWallet string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.Where("actor_wallet = ?", actorWallet).Order("created_at DESC").Find(&logs).Error
	return logs, err
}

// FindByTaskID 根据任务查找审计日志
func (r *auditLogRepository) FindByTaskID(taskID string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.Where("task_id = ?", taskID).Order("created_at DESC").Find(&logs).Error
	return logs, err
}
