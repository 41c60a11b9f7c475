package domain

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Task 由模板生成的任务（对应 tasks 表的引擎视角字段）
// Ownership transfers to the task CRUD surface after creation; the engine
// only ever inserts.
type Task struct {
	// 主键
	TaskID string `db:"task_id"` // UUID, PRIMARY KEY

	// 来源模板
	TemplateID string `db:"template_id"` // UUID, NOT NULL, FK to task_templates

	// 内容
	Title        string          `db:"title"`         // VARCHAR(255), NOT NULL
	Description  string          `db:"description"`   // TEXT, nullable
	DivisionID   sql.NullString  `db:"division_id"`   // UUID, nullable
	StatusID     string          `db:"status_id"`     // UUID, NOT NULL, FK to task_statuses
	AssignedTo   sql.NullString  `db:"assigned_to"`   // UUID, nullable
	CustomFields json.RawMessage `db:"custom_fields"` // JSONB, nullable

	// ScheduledFor is the due instant this task was generated for. Together
	// with TemplateID it forms the dedup key that makes generation retries
	// idempotent.
	ScheduledFor time.Time `db:"scheduled_for"` // TIMESTAMPTZ, NOT NULL

	CreatedAt sql.NullTime `db:"created_at"`
}

// TaskStatus 任务状态字典（对应 task_statuses 表）
// 引擎只读取 is_default 标记的那一条
type TaskStatus struct {
	StatusID  string `db:"status_id"`  // UUID, PRIMARY KEY
	Name      string `db:"name"`       // VARCHAR(100), NOT NULL
	IsDefault bool   `db:"is_default"` // BOOLEAN, NOT NULL, DEFAULT false
}

// GenerationResult 单个模板一次生成尝试的结果（不落库，仅返回给触发方）
type GenerationResult struct {
	TemplateID   string `json:"templateId"`
	TemplateName string `json:"templateName"`
	TaskID       string `json:"taskId,omitempty"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// SweepReport 一次完整 sweep 的机器可读响应体
type SweepReport struct {
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []GenerationResult `json:"results"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewSweepReport aggregates counts from an ordered result list.
func NewSweepReport(results []GenerationResult, at time.Time) *SweepReport {
	report := &SweepReport{Results: results, Timestamp: at}
	if report.Results == nil {
		report.Results = []GenerationResult{}
	}
	for _, r := range results {
		if r.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report
}
