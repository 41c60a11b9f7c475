package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fieldtask/internal/domain"
	"fieldtask/internal/recurrence"
	"fieldtask/internal/repository"
)

// TemplateService 模板管理业务逻辑（创建/更新/启停）
// Activation is where a template first gets a next_generation_at, computed
// against now; after that only successful generations move it.
type TemplateService struct {
	templates repository.TemplatesRepository
	logger    *zap.Logger

	now func() time.Time
}

func NewTemplateService(templates repository.TemplatesRepository, logger *zap.Logger) *TemplateService {
	return &TemplateService{
		templates: templates,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *TemplateService) GetTemplate(ctx context.Context, templateID string) (*domain.Template, error) {
	return s.templates.GetTemplate(ctx, templateID)
}

func (s *TemplateService) ListTemplates(ctx context.Context, filter repository.TemplateFilters) ([]*domain.Template, error) {
	return s.templates.ListTemplates(ctx, filter)
}

func (s *TemplateService) CreateTemplate(ctx context.Context, t *domain.Template) (string, error) {
	if t == nil {
		return "", fmt.Errorf("template is required")
	}
	if err := validateRule(t.RecurrenceRule); err != nil {
		return "", err
	}

	// New templates start inactive with an unused rotation pointer; the
	// schedule only starts on activation.
	t.IsActive = false
	t.RotationIndex = -1

	templateID, err := s.templates.CreateTemplate(ctx, t)
	if err != nil {
		return "", err
	}
	s.logger.Info("template created",
		zap.String("template_id", templateID),
		zap.String("name", t.Name))
	return templateID, nil
}

func (s *TemplateService) UpdateTemplate(ctx context.Context, templateID string, t *domain.Template) error {
	if err := validateRule(t.RecurrenceRule); err != nil {
		return err
	}
	return s.templates.UpdateTemplate(ctx, templateID, t)
}

func (s *TemplateService) DeleteTemplate(ctx context.Context, templateID string) error {
	return s.templates.DeleteTemplate(ctx, templateID)
}

// ActivateTemplate computes the first next_generation_at from now and marks
// the template active. A template without a recurrence rule can not be
// activated for generation.
func (s *TemplateService) ActivateTemplate(ctx context.Context, templateID string) (time.Time, error) {
	tpl, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return time.Time{}, err
	}
	if tpl.RecurrenceRule == nil {
		return time.Time{}, fmt.Errorf("template_id=%s: cannot activate without a recurrence rule", templateID)
	}

	nextAt, err := recurrence.NextDueInstant(tpl.RecurrenceRule, s.now())
	if err != nil {
		return time.Time{}, err
	}
	if err := s.templates.Activate(ctx, templateID, nextAt); err != nil {
		return time.Time{}, err
	}
	s.logger.Info("template activated",
		zap.String("template_id", templateID),
		zap.Time("next_generation_at", nextAt))
	return nextAt, nil
}

// DeactivateTemplate clears the schedule so sweeps skip the template until
// it is reactivated.
func (s *TemplateService) DeactivateTemplate(ctx context.Context, templateID string) error {
	if err := s.templates.Deactivate(ctx, templateID); err != nil {
		return err
	}
	s.logger.Info("template deactivated", zap.String("template_id", templateID))
	return nil
}

// validateRule rejects rules the calculator would refuse at sweep time.
// Assignment shape is not validated here: rotate with an empty list is legal
// and degrades to no assignment.
func validateRule(rule *domain.RecurrenceRule) error {
	if rule == nil {
		return nil
	}
	switch rule.Frequency {
	case domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyBiweekly,
		domain.FrequencyMonthly, domain.FrequencyCustom:
		return nil
	default:
		return fmt.Errorf("unknown recurrence frequency %q", rule.Frequency)
	}
}
