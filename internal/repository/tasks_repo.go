package repository

import (
	"context"
	"errors"

	"fieldtask/internal/domain"
)

// ErrNoDefaultStatus is returned when the task_statuses table has no row
// flagged is_default. The engine cannot materialize tasks without it.
var ErrNoDefaultStatus = errors.New("no default task status configured")

// TasksRepository 任务Repository接口（引擎视角：只写入和读默认状态）
type TasksRepository interface {
	// GetDefaultStatus 读取唯一的默认任务状态
	GetDefaultStatus(ctx context.Context) (*domain.TaskStatus, error)

	// CreateFromTemplate inserts one generated task and returns its id.
	// Idempotent on (template_id, scheduled_for): re-running the same
	// generation lands on the already-created row instead of duplicating.
	CreateFromTemplate(ctx context.Context, task *domain.Task) (string, error)
}
