package repository

import (
	"time"

	"github.com/mautops/escrow-gin/internal/model"
	"gorm.io/gorm"
)

// TaskRepository 任务仓储接口
// 所有状态与资金标志的变更都通过条件更新（带 WHERE 守卫的 UPDATE）完成,
// 以受影响行数判定是否有并发竞争者先行提交,不在进程内持锁
type TaskRepository interface {
	Save(task *model.TaskModel) error
	FindByID(id string) (*model.TaskModel, error)
	FindAll() ([]*model.TaskModel, error)
	FindByFilter(filter *TaskFilter) ([]*model.TaskModel, error)

	// AssignWorker 绑定工人并转移到 accepted,守卫为"状态仍为 open"
	// 返回 false 表示守卫失败（已被其他工人抢先接单）
	AssignWorker(id string, workerWallet string) (bool, error)

	// TransitionStatus 工作流状态条件转移,附带更新 extra 列
	TransitionStatus(id string, from string, to string, extra map[string]interface{}) (bool, error)

	// MarkFunded 账本确认注资后置位 funded,守卫为托管未终结且未注资
	MarkFunded(id string, fundingTxRef string) (bool, error)

	// MarkReleased 账本确认释放后置位 released,守卫为已注资且未终结
	MarkReleased(id string, payoutTxRef string) (bool, error)

	// MarkCancelled 账本确认取消后置位 cancelled,守卫为未终结
	MarkCancelled(id string) (bool, error)

	// RecordBridge 记录 FAsset 桥交易信息
	RecordBridge(id string, fassetType string, bridgeTxHash string, verified bool) error

	// OverwriteEscrowFlags 对账时以账本状态为准覆写资金标志
	// 仅用于对账路径,正常操作必须走上面的守卫更新
	OverwriteEscrowFlags(id string, funded bool, released bool, cancelled bool) error
}

// TaskFilter 任务查询过滤器
type TaskFilter struct {
	Status       *string
	PosterWallet *string
	WorkerWallet *string
	Funded       *bool
}

// taskRepository 任务仓储实现
type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository 创建任务仓储
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

// Save 保存任务
func (r *taskRepository) Save(task *model.TaskModel) error {
	return r.db.Save(task).Error
}

// FindByID 根据 ID 查找任务
func (r *taskRepository) FindByID(id string) (*model.TaskModel, error) {
	var task model.TaskModel
	if err := r.db.Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindAll 查找所有任务
func (r *taskRepository) FindAll() ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	err := r.db.Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

// FindByFilter 根据过滤器查找任务
func (r *taskRepository) FindByFilter(filter *TaskFilter) ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	query := r.db.Model(&model.TaskModel{})

	if filter != nil {
		if filter.Status != nil {
			query = query.Where("workflow_status = ?", *filter.Status)
		}
		if filter.PosterWallet != nil {
			query = query.Where("poster_wallet = ?", *filter.PosterWallet)
		}
		if filter.WorkerWallet != nil {
			query = query.Where("worker_wallet = ?", *filter.WorkerWallet)
		}
		if filter.Funded != nil {
			query = query.Where("funded = ?", *filter.Funded)
		}
	}

	err := query.Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

// AssignWorker 绑定工人并转移到 accepted
func (r *taskRepository) AssignWorker(id string, workerWallet string) (bool, error) {
	result := r.db.Model(&model.TaskModel{}).
		Where("id = ? AND workflow_status = ? AND worker_wallet = ''", id, model.StatusOpen).
		Updates(map[string]interface{}{
			"worker_wallet":   workerWallet,
			"workflow_status": model.StatusAccepted,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// TransitionStatus 工作流状态条件转移
func (r *taskRepository) TransitionStatus(id string, from string, to string, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"workflow_status": to,
		"updated_at":      time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := r.db.Model(&model.TaskModel{}).
		Where("id = ? AND workflow_status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkFunded 账本确认注资后置位 funded
func (r *taskRepository) MarkFunded(id string, fundingTxRef string) (bool, error) {
	result := r.db.Model(&model.TaskModel{}).
		Where("id = ? AND funded = ? AND released = ? AND cancelled = ?", id, false, false, false).
		Updates(map[string]interface{}{
			"funded":         true,
			"funding_tx_ref": fundingTxRef,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkReleased 账本确认释放后置位 released
func (r *taskRepository) MarkReleased(id string, payoutTxRef string) (bool, error) {
	result := r.db.Model(&model.TaskModel{}).
		Where("id = ? AND funded = ? AND released = ? AND cancelled = ?", id, true, false, false).
		Updates(map[string]interface{}{
			"released":      true,
			"payout_tx_ref": payoutTxRef,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkCancelled 账本确认取消后置位 cancelled
func (r *taskRepository) MarkCancelled(id string) (bool, error) {
	result := r.db.Model(&model.TaskModel{}).
		Where("id = ? AND released = ? AND cancelled = ?", id, false, false).
		Updates(map[string]interface{}{
			"cancelled":  true,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RecordBridge 记录 FAsset 桥交易信息
func (r *taskRepository) RecordBridge(id string, fassetType string, bridgeTxHash string, verified bool) error {
	return r.db.Model(&model.TaskModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"f_asset_type":    fassetType,
			"bridge_tx_hash":  bridgeTxHash,
			"bridge_verified": verified,
			"updated_at":      time.Now(),
		}).Error
}

// OverwriteEscrowFlags 对账时以账本状态为准覆写资金标志
func (r *taskRepository) OverwriteEscrowFlags(id string, funded bool, released bool, cancelled bool) error {
	return r.db.Model(&model.TaskModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"funded":     funded,
			"released":   released,
			"cancelled":  cancelled,
			"updated_at": time.Now(),
		}).Error
}
