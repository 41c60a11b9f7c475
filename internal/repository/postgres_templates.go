package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fieldtask/internal/domain"
)

type PostgresTemplatesRepository struct {
	db *sql.DB
}

func NewPostgresTemplatesRepository(db *sql.DB) *PostgresTemplatesRepository {
	return &PostgresTemplatesRepository{db: db}
}

const templateColumns = `
	template_id::text,
	name,
	default_title,
	default_description,
	default_division_id::text,
	default_custom_fields,
	is_active,
	recurrence_rule,
	last_generated_at,
	next_generation_at,
	rotation_index,
	created_at,
	updated_at`

func (r *PostgresTemplatesRepository) GetTemplate(ctx context.Context, templateID string) (*domain.Template, error) {
	if templateID == "" {
		return nil, fmt.Errorf("template_id is required")
	}

	q := `SELECT` + templateColumns + `
		FROM task_templates
		WHERE template_id = $1`
	t, err := scanTemplate(r.db.QueryRowContext(ctx, q, templateID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("template not found: template_id=%s", templateID)
		}
		return nil, err
	}
	return t, nil
}

func (r *PostgresTemplatesRepository) ListTemplates(ctx context.Context, filter TemplateFilters) ([]*domain.Template, error) {
	where := "TRUE"
	args := []any{}
	argIdx := 1
	if filter.IsActive != nil {
		where += fmt.Sprintf(" AND is_active = $%d", argIdx)
		args = append(args, *filter.IsActive)
		argIdx++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", argIdx)
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	q := `SELECT` + templateColumns + `
		FROM task_templates
		WHERE ` + where + `
		ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ScanDue is a plain read snapshot: no locking across the batch. The
// concurrency guard lives in AdvanceSchedule's optimistic update.
func (r *PostgresTemplatesRepository) ScanDue(ctx context.Context, now time.Time) ([]*domain.Template, error) {
	q := `SELECT` + templateColumns + `
		FROM task_templates
		WHERE is_active = TRUE
		  AND recurrence_rule IS NOT NULL
		  AND next_generation_at IS NOT NULL
		  AND next_generation_at <= $1
		ORDER BY next_generation_at, name`
	rows, err := r.db.QueryContext(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresTemplatesRepository) CreateTemplate(ctx context.Context, t *domain.Template) (string, error) {
	if t == nil || t.Name == "" {
		return "", fmt.Errorf("template name is required")
	}

	ruleJSON, err := marshalRule(t.RecurrenceRule)
	if err != nil {
		return "", err
	}

	templateID := t.TemplateID
	if templateID == "" {
		templateID = uuid.New().String()
	}

	q := `
		INSERT INTO task_templates (
			template_id, name, default_title, default_description,
			default_division_id, default_custom_fields,
			is_active, recurrence_rule, last_generated_at, next_generation_at,
			rotation_index
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, q,
		templateID,
		t.Name,
		nullIfEmpty(t.DefaultTitle),
		nullIfEmpty(t.DefaultDescription),
		t.DefaultDivisionID,
		nullIfEmptyJSON(t.DefaultCustomFields),
		t.IsActive,
		ruleJSON,
		t.LastGeneratedAt,
		t.NextGenerationAt,
		t.RotationIndex,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create template: %w", err)
	}
	return templateID, nil
}

func (r *PostgresTemplatesRepository) UpdateTemplate(ctx context.Context, templateID string, t *domain.Template) error {
	if templateID == "" {
		return fmt.Errorf("template_id is required")
	}
	if t == nil || t.Name == "" {
		return fmt.Errorf("template name is required")
	}

	ruleJSON, err := marshalRule(t.RecurrenceRule)
	if err != nil {
		return err
	}

	q := `
		UPDATE task_templates
		SET name = $2,
		    default_title = $3,
		    default_description = $4,
		    default_division_id = $5,
		    default_custom_fields = $6,
		    recurrence_rule = $7,
		    updated_at = NOW()
		WHERE template_id = $1
	`
	res, err := r.db.ExecContext(ctx, q,
		templateID,
		t.Name,
		nullIfEmpty(t.DefaultTitle),
		nullIfEmpty(t.DefaultDescription),
		t.DefaultDivisionID,
		nullIfEmptyJSON(t.DefaultCustomFields),
		ruleJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	return requireOneRow(res, templateID)
}

func (r *PostgresTemplatesRepository) DeleteTemplate(ctx context.Context, templateID string) error {
	if templateID == "" {
		return fmt.Errorf("template_id is required")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM task_templates WHERE template_id = $1`, templateID)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return requireOneRow(res, templateID)
}

func (r *PostgresTemplatesRepository) Activate(ctx context.Context, templateID string, nextAt time.Time) error {
	if templateID == "" {
		return fmt.Errorf("template_id is required")
	}
	q := `
		UPDATE task_templates
		SET is_active = TRUE,
		    next_generation_at = $2,
		    updated_at = NOW()
		WHERE template_id = $1
	`
	res, err := r.db.ExecContext(ctx, q, templateID, nextAt)
	if err != nil {
		return fmt.Errorf("failed to activate template: %w", err)
	}
	return requireOneRow(res, templateID)
}

func (r *PostgresTemplatesRepository) Deactivate(ctx context.Context, templateID string) error {
	if templateID == "" {
		return fmt.Errorf("template_id is required")
	}
	q := `
		UPDATE task_templates
		SET is_active = FALSE,
		    next_generation_at = NULL,
		    updated_at = NOW()
		WHERE template_id = $1
	`
	res, err := r.db.ExecContext(ctx, q, templateID)
	if err != nil {
		return fmt.Errorf("failed to deactivate template: %w", err)
	}
	return requireOneRow(res, templateID)
}

// AdvanceSchedule: 乐观更新，observedNext 不匹配说明并发 sweep 已抢先推进
func (r *PostgresTemplatesRepository) AdvanceSchedule(ctx context.Context, templateID string, observedNext, lastGenerated, newNext time.Time, rotationIndex int) error {
	if templateID == "" {
		return fmt.Errorf("template_id is required")
	}
	q := `
		UPDATE task_templates
		SET last_generated_at = $2,
		    next_generation_at = $3,
		    rotation_index = $4,
		    updated_at = NOW()
		WHERE template_id = $1
		  AND next_generation_at = $5
	`
	res, err := r.db.ExecContext(ctx, q, templateID, lastGenerated, newNext, rotationIndex, observedNext)
	if err != nil {
		return fmt.Errorf("failed to advance template schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("template_id=%s: %w", templateID, ErrScheduleConflict)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*domain.Template, error) {
	var t domain.Template
	var defaultTitle, defaultDescription sql.NullString
	var customFields, ruleJSON []byte
	var rotationIndex sql.NullInt64

	err := row.Scan(
		&t.TemplateID,
		&t.Name,
		&defaultTitle,
		&defaultDescription,
		&t.DefaultDivisionID,
		&customFields,
		&t.IsActive,
		&ruleJSON,
		&t.LastGeneratedAt,
		&t.NextGenerationAt,
		&rotationIndex,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.DefaultTitle = defaultTitle.String
	t.DefaultDescription = defaultDescription.String
	t.DefaultCustomFields = customFields
	t.RotationIndex = int(rotationIndex.Int64)
	if !rotationIndex.Valid {
		t.RotationIndex = -1
	}
	if len(ruleJSON) > 0 {
		var rule domain.RecurrenceRule
		if err := json.Unmarshal(ruleJSON, &rule); err != nil {
			return nil, fmt.Errorf("template_id=%s: malformed recurrence_rule: %w", t.TemplateID, err)
		}
		t.RecurrenceRule = &rule
	}
	return &t, nil
}

func marshalRule(rule *domain.RecurrenceRule) (any, error) {
	if rule == nil {
		return nil, nil
	}
	b, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recurrence_rule: %w", err)
	}
	return b, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfEmptyJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

func requireOneRow(res sql.Result, templateID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("template not found: template_id=%s", templateID)
	}
	return nil
}
