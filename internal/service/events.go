package service

import "time"

// TaskEvent 任务托管事件
// 通过 WebSocket 集线器广播给关注该任务的客户端
type TaskEvent struct {
	TaskID    string            `json:"task_id"`
	Event     string            `json:"event"` // accepted/funded/submitted/approved/changes_requested/released/cancelled
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// EventPublisher 事件发布接口
type EventPublisher interface {
	PublishTaskEvent(event *TaskEvent)
}

// NopEvents 空事件发布器,未配置集线器时使用
type NopEvents struct{}

// PublishTaskEvent 空操作
func (NopEvents) PublishTaskEvent(event *TaskEvent) {}
