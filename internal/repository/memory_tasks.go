package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldtask/internal/domain"
)

// MemoryTasksRepo holds generated tasks when the DB is disabled. Mirrors the
// postgres repo's dedup on (template_id, scheduled_for).
type MemoryTasksRepo struct {
	mu            sync.RWMutex
	tasks         map[string]*domain.Task
	byDedupKey    map[string]string // templateID+scheduledFor -> taskID
	defaultStatus *domain.TaskStatus
}

func NewMemoryTasksRepo() *MemoryTasksRepo {
	return &MemoryTasksRepo{
		tasks:      map[string]*domain.Task{},
		byDedupKey: map[string]string{},
		defaultStatus: &domain.TaskStatus{
			StatusID:  "00000000-0000-0000-0000-000000000010",
			Name:      "Open",
			IsDefault: true,
		},
	}
}

// SetDefaultStatus overrides the seeded default (nil clears it).
func (r *MemoryTasksRepo) SetDefaultStatus(s *domain.TaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultStatus = s
}

func (r *MemoryTasksRepo) GetDefaultStatus(_ context.Context) (*domain.TaskStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultStatus == nil {
		return nil, ErrNoDefaultStatus
	}
	cp := *r.defaultStatus
	return &cp, nil
}

func (r *MemoryTasksRepo) CreateFromTemplate(_ context.Context, task *domain.Task) (string, error) {
	if task == nil || task.TemplateID == "" {
		return "", fmt.Errorf("template_id is required")
	}
	if task.Title == "" {
		return "", fmt.Errorf("task title is required")
	}
	if task.StatusID == "" {
		return "", fmt.Errorf("status_id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := dedupKey(task.TemplateID, task.ScheduledFor)
	if existingID, ok := r.byDedupKey[key]; ok {
		return existingID, nil
	}

	cp := *task
	if cp.TaskID == "" {
		cp.TaskID = uuid.New().String()
	}
	r.tasks[cp.TaskID] = &cp
	r.byDedupKey[key] = cp.TaskID
	return cp.TaskID, nil
}

// GetTask 按task_id读取（调试/测试用）
func (r *MemoryTasksRepo) GetTask(taskID string) (*domain.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Count 当前任务总数
func (r *MemoryTasksRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

func dedupKey(templateID string, scheduledFor time.Time) string {
	return templateID + "@" + scheduledFor.UTC().Format(time.RFC3339)
}
