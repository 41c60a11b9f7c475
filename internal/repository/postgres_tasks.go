package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"fieldtask/internal/domain"
)

type PostgresTasksRepository struct {
	db *sql.DB
}

func NewPostgresTasksRepository(db *sql.DB) *PostgresTasksRepository {
	return &PostgresTasksRepository{db: db}
}

func (r *PostgresTasksRepository) GetDefaultStatus(ctx context.Context) (*domain.TaskStatus, error) {
	q := `
		SELECT status_id::text, name, is_default
		FROM task_statuses
		WHERE is_default = TRUE
		LIMIT 1
	`
	var s domain.TaskStatus
	err := r.db.QueryRowContext(ctx, q).Scan(&s.StatusID, &s.Name, &s.IsDefault)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoDefaultStatus
		}
		return nil, err
	}
	return &s, nil
}

// CreateFromTemplate 插入生成的任务
// (template_id, scheduled_for) 上有唯一约束；冲突时返回已存在行的 task_id，
// 使"生成"对重试幂等（见引擎的 at-least-once 处理）。
func (r *PostgresTasksRepository) CreateFromTemplate(ctx context.Context, task *domain.Task) (string, error) {
	if task == nil || task.TemplateID == "" {
		return "", fmt.Errorf("template_id is required")
	}
	if task.Title == "" {
		return "", fmt.Errorf("task title is required")
	}
	if task.StatusID == "" {
		return "", fmt.Errorf("status_id is required")
	}

	taskID := task.TaskID
	if taskID == "" {
		taskID = uuid.New().String()
	}

	q := `
		INSERT INTO tasks (
			task_id, template_id, title, description,
			division_id, status_id, assigned_to, custom_fields, scheduled_for
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (template_id, scheduled_for)
		DO UPDATE SET template_id = EXCLUDED.template_id
		RETURNING task_id::text
	`
	var createdID string
	err := r.db.QueryRowContext(ctx, q,
		taskID,
		task.TemplateID,
		task.Title,
		nullIfEmpty(task.Description),
		task.DivisionID,
		task.StatusID,
		task.AssignedTo,
		nullIfEmptyJSON(task.CustomFields),
		task.ScheduledFor,
	).Scan(&createdID)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	return createdID, nil
}
