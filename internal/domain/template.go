package domain

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Frequency 重复频率（recurrence_rule.frequency）
const (
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
	FrequencyBiweekly = "biweekly"
	FrequencyMonthly  = "monthly"
	FrequencyCustom   = "custom"
)

// AssignTo 生成任务的指派方式
const (
	AssignNone   = "none"
	AssignFixed  = "fixed"
	AssignRotate = "rotate"
)

// RecurrenceRule 模板上的重复规则（JSONB 存储，不是独立实体）
//
// Which optional fields apply depends on Frequency:
//   - daily/custom: Interval (days, default 1)
//   - weekly: DaysOfWeek (0=Sunday..6=Saturday); empty means "every 7 days"
//   - biweekly: fixed 14 days, Interval ignored
//   - monthly: Interval (months, default 1) + optional DayOfMonth (1-31,
//     clamped to the target month's last day)
type RecurrenceRule struct {
	Frequency  string `json:"frequency"`
	Interval   int    `json:"interval,omitempty"`
	Time       string `json:"time,omitempty"` // "HH:MM" wall clock, default 09:00
	DaysOfWeek []int  `json:"daysOfWeek,omitempty"`
	DayOfMonth int    `json:"dayOfMonth,omitempty"`

	AssignTo        string   `json:"assignTo,omitempty"`
	FixedUserID     string   `json:"fixedUserId,omitempty"`
	RotationUserIDs []string `json:"rotationUserIds,omitempty"`
}

// Template 任务模板领域模型（对应 task_templates 表）
type Template struct {
	// 主键
	TemplateID string `db:"template_id"` // UUID, PRIMARY KEY

	// 基本信息
	Name                string          `db:"name"`                  // VARCHAR(255), NOT NULL
	DefaultTitle        string          `db:"default_title"`         // VARCHAR(255), nullable
	DefaultDescription  string          `db:"default_description"`   // TEXT, nullable
	DefaultDivisionID   sql.NullString  `db:"default_division_id"`   // UUID, nullable
	DefaultCustomFields json.RawMessage `db:"default_custom_fields"` // JSONB, nullable; forwarded verbatim into generated tasks

	// 调度状态
	IsActive         bool            `db:"is_active"`          // BOOLEAN, NOT NULL, DEFAULT false
	RecurrenceRule   *RecurrenceRule `db:"recurrence_rule"`    // JSONB, nullable
	LastGeneratedAt  sql.NullTime    `db:"last_generated_at"`  // TIMESTAMPTZ, nullable
	NextGenerationAt sql.NullTime    `db:"next_generation_at"` // TIMESTAMPTZ, nullable; null removes the template from sweeps
	// RotationIndex is the last rotation slot assigned for assignTo=rotate;
	// -1 means no rotation assignment has happened yet.
	RotationIndex int `db:"rotation_index"`

	CreatedAt sql.NullTime `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"`
}

// DueAt reports whether the template is eligible for sweeping at now:
// active, with a rule, and with an elapsed next-generation instant.
func (t *Template) DueAt(now time.Time) bool {
	return t.IsActive &&
		t.RecurrenceRule != nil &&
		t.NextGenerationAt.Valid &&
		!t.NextGenerationAt.Time.After(now)
}

// TaskTitle 生成任务标题：default_title 为空时回退到模板名
func (t *Template) TaskTitle() string {
	if t.DefaultTitle != "" {
		return t.DefaultTitle
	}
	return t.Name
}
