package repository

import (
	"errors"
	"time"

	"github.com/mautops/escrow-gin/internal/model"
	"gorm.io/gorm"
)

// 条件注册冲突错误
var (
	// ErrConditionResolved 条件哈希已解决,不可重新注册
	ErrConditionResolved = errors.New("condition hash already resolved")
	// ErrConditionBound 条件哈希已绑定到其他任务
	ErrConditionBound = errors.New("condition hash bound to another task")
)

// ConditionRepository 条件注册仓储接口
type ConditionRepository interface {
	// Register 注册条件哈希,同一 (taskId, hash) 幂等
	// 任务存在未解决的旧哈希时整体替换,已解决的哈希拒绝重注册
	Register(taskID string, conditionHash string) (*model.ConditionRegistration, error)
	FindByHash(conditionHash string) (*model.ConditionRegistration, error)
	FindByTaskID(taskID string) ([]*model.ConditionRegistration, error)

	// MarkResolved 置位 resolved,守卫为尚未解决
	// 返回 false 表示已有并发调用先行解决
	MarkResolved(conditionHash string) (bool, error)
}

// conditionRepository 条件注册仓储实现
type conditionRepository struct {
	db *gorm.DB
}

// NewConditionRepository 创建条件注册仓储
func NewConditionRepository(db *gorm.DB) ConditionRepository {
	return &conditionRepository{db: db}
}

// Register 注册条件哈希
func (r *conditionRepository) Register(taskID string, conditionHash string) (*model.ConditionRegistration, error) {
	reg := &model.ConditionRegistration{
		ConditionHash: conditionHash,
		TaskID:        taskID,
		Resolved:      false,
		CreatedAt:     time.Now(),
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing model.ConditionRegistration
		err := tx.Where("condition_hash = ?", conditionHash).First(&existing).Error
		switch {
		case err == nil:
			if existing.Resolved {
				return ErrConditionResolved
			}
			if existing.TaskID != taskID {
				return ErrConditionBound
			}
			// 同一 (taskId, hash) 重复注册,幂等
			reg.CreatedAt = existing.CreatedAt
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			// 继续注册
		default:
			return err
		}

		// 任务的未解决旧绑定被新哈希覆盖,已解决的绑定保留
		if err := tx.Where("task_id = ? AND resolved = ?", taskID, false).
			Delete(&model.ConditionRegistration{}).Error; err != nil {
			return err
		}

		return tx.Create(reg).Error
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// FindByHash 根据条件哈希查找注册
func (r *conditionRepository) FindByHash(conditionHash string) (*model.ConditionRegistration, error) {
	var reg model.ConditionRegistration
	if err := r.db.Where("condition_hash = ?", conditionHash).First(&reg).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

// FindByTaskID 根据任务 ID 查找注册
func (r *conditionRepository) FindByTaskID(taskID string) ([]*model.ConditionRegistration, error) {
	var regs []*model.ConditionRegistration
	err := r.db.Where("task_id = ?", taskID).Order("created_at DESC").Find(&regs).Error
	return regs, err
}

// MarkResolved 置位 resolved
func (r *conditionRepository) MarkResolved(conditionHash string) (bool, error) {
	now := time.Now()
	result := r.db.Model(&model.ConditionRegistration{}).
		Where("condition_hash = ? AND resolved = ?", conditionHash, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
