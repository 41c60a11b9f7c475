package repository

import (
	"context"
	"errors"
	"time"

	"fieldtask/internal/domain"
)

// ErrScheduleConflict is returned by AdvanceSchedule when the template's
// next_generation_at no longer matches the value observed at scan time,
// i.e. a concurrent sweep advanced it first.
var ErrScheduleConflict = errors.New("template schedule was advanced concurrently")

// TemplatesRepository 任务模板Repository接口
// 使用强类型领域模型；Repository层只负责数据访问
type TemplatesRepository interface {
	// ========== 查询 ==========
	// GetTemplate 根据template_id获取模板
	GetTemplate(ctx context.Context, templateID string) (*domain.Template, error)

	// ListTemplates 查询模板列表
	// 过滤条件：IsActive（可选）、Search（name模糊匹配）
	ListTemplates(ctx context.Context, filter TemplateFilters) ([]*domain.Template, error)

	// ScanDue 返回当前到期的模板：is_active=true、recurrence_rule非空、
	// next_generation_at非空且 <= now。顺序仅为日志稳定性，不承载语义。
	ScanDue(ctx context.Context, now time.Time) ([]*domain.Template, error)

	// ========== 创建/更新 ==========
	CreateTemplate(ctx context.Context, t *domain.Template) (string, error)
	UpdateTemplate(ctx context.Context, templateID string, t *domain.Template) error
	DeleteTemplate(ctx context.Context, templateID string) error

	// ========== 调度状态 ==========
	// Activate sets is_active and the first next_generation_at.
	Activate(ctx context.Context, templateID string, nextAt time.Time) error

	// Deactivate clears next_generation_at, removing the template from
	// future sweeps until reactivated.
	Deactivate(ctx context.Context, templateID string) error

	// AdvanceSchedule persists last_generated_at, the new next_generation_at
	// and the rotation pointer in one optimistic update guarded by the
	// next_generation_at value observed at scan time. Returns
	// ErrScheduleConflict when the guard misses.
	AdvanceSchedule(ctx context.Context, templateID string, observedNext, lastGenerated, newNext time.Time, rotationIndex int) error
}

// TemplateFilters 模板查询过滤器
type TemplateFilters struct {
	IsActive *bool  // 可选，按is_active过滤
	Search   string // 可选，按name搜索（模糊匹配）
}
