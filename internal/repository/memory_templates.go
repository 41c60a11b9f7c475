package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldtask/internal/domain"
)

// MemoryTemplatesRepo supports template administration and sweeps when the
// DB is disabled (local dev) and doubles as the service-layer test store.
// Semantics mirror the postgres repo, including the optimistic schedule
// advance.
type MemoryTemplatesRepo struct {
	mu        sync.RWMutex
	templates map[string]*domain.Template
}

func NewMemoryTemplatesRepo() *MemoryTemplatesRepo {
	return &MemoryTemplatesRepo{templates: map[string]*domain.Template{}}
}

func (r *MemoryTemplatesRepo) GetTemplate(_ context.Context, templateID string) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("template not found: template_id=%s", templateID)
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryTemplatesRepo) ListTemplates(_ context.Context, filter TemplateFilters) ([]*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.Template{}
	for _, t := range r.templates {
		if filter.IsActive != nil && t.IsActive != *filter.IsActive {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(filter.Search)) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryTemplatesRepo) ScanDue(_ context.Context, now time.Time) ([]*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.Template{}
	for _, t := range r.templates {
		if !t.DueAt(now) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextGenerationAt.Time.Equal(out[j].NextGenerationAt.Time) {
			return out[i].NextGenerationAt.Time.Before(out[j].NextGenerationAt.Time)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MemoryTemplatesRepo) CreateTemplate(_ context.Context, t *domain.Template) (string, error) {
	if t == nil || t.Name == "" {
		return "", fmt.Errorf("template name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *t
	if cp.TemplateID == "" {
		cp.TemplateID = uuid.New().String()
	}
	cp.CreatedAt = sql.NullTime{Time: time.Now(), Valid: true}
	r.templates[cp.TemplateID] = &cp
	return cp.TemplateID, nil
}

func (r *MemoryTemplatesRepo) UpdateTemplate(_ context.Context, templateID string, t *domain.Template) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("template name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.templates[templateID]
	if !ok {
		return fmt.Errorf("template not found: template_id=%s", templateID)
	}
	existing.Name = t.Name
	existing.DefaultTitle = t.DefaultTitle
	existing.DefaultDescription = t.DefaultDescription
	existing.DefaultDivisionID = t.DefaultDivisionID
	existing.DefaultCustomFields = t.DefaultCustomFields
	existing.RecurrenceRule = t.RecurrenceRule
	existing.UpdatedAt = sql.NullTime{Time: time.Now(), Valid: true}
	return nil
}

func (r *MemoryTemplatesRepo) DeleteTemplate(_ context.Context, templateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[templateID]; !ok {
		return fmt.Errorf("template not found: template_id=%s", templateID)
	}
	delete(r.templates, templateID)
	return nil
}

func (r *MemoryTemplatesRepo) Activate(_ context.Context, templateID string, nextAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[templateID]
	if !ok {
		return fmt.Errorf("template not found: template_id=%s", templateID)
	}
	t.IsActive = true
	t.NextGenerationAt = sql.NullTime{Time: nextAt, Valid: true}
	return nil
}

func (r *MemoryTemplatesRepo) Deactivate(_ context.Context, templateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[templateID]
	if !ok {
		return fmt.Errorf("template not found: template_id=%s", templateID)
	}
	t.IsActive = false
	t.NextGenerationAt = sql.NullTime{}
	return nil
}

func (r *MemoryTemplatesRepo) AdvanceSchedule(_ context.Context, templateID string, observedNext, lastGenerated, newNext time.Time, rotationIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[templateID]
	if !ok {
		return fmt.Errorf("template not found: template_id=%s", templateID)
	}
	if !t.NextGenerationAt.Valid || !t.NextGenerationAt.Time.Equal(observedNext) {
		return fmt.Errorf("template_id=%s: %w", templateID, ErrScheduleConflict)
	}
	t.LastGeneratedAt = sql.NullTime{Time: lastGenerated, Valid: true}
	t.NextGenerationAt = sql.NullTime{Time: newNext, Valid: true}
	t.RotationIndex = rotationIndex
	return nil
}
