package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fieldtask/internal/domain"
	"fieldtask/internal/recurrence"
	"fieldtask/internal/repository"
)

// GenerationService orchestrates one sweep over the due templates: scan
// once, then for each template resolve assignment, materialize a task and
// advance the schedule. One template's failure never aborts the sweep; every
// attempted template gets a GenerationResult.
type GenerationService struct {
	templates repository.TemplatesRepository
	tasks     repository.TasksRepository
	logger    *zap.Logger

	// now is injectable for tests.
	now func() time.Time
}

func NewGenerationService(templates repository.TemplatesRepository, tasks repository.TasksRepository, logger *zap.Logger) *GenerationService {
	return &GenerationService{
		templates: templates,
		tasks:     tasks,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessDueTemplates runs one sweep and returns the ordered result list.
// Only a scan failure is returned as an error (whole-sweep failure, no
// partial state); everything after the scan is isolated per template.
func (s *GenerationService) ProcessDueTemplates(ctx context.Context) (*domain.SweepReport, error) {
	now := s.now()

	due, err := s.templates.ScanDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to scan due templates: %w", err)
	}

	results := make([]domain.GenerationResult, 0, len(due))
	for _, tpl := range due {
		res := s.generateOne(ctx, tpl, now)
		if res.Success {
			s.logger.Info("generated task from template",
				zap.String("template_id", res.TemplateID),
				zap.String("template_name", res.TemplateName),
				zap.String("task_id", res.TaskID))
		} else {
			s.logger.Warn("template generation failed",
				zap.String("template_id", res.TemplateID),
				zap.String("template_name", res.TemplateName),
				zap.String("error", res.Error))
		}
		results = append(results, res)
	}

	report := domain.NewSweepReport(results, now)
	s.logger.Info("generation sweep finished",
		zap.Int("due", len(due)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed))
	return report, nil
}

// generateOne processes a single due template. On any failure the template's
// schedule fields stay untouched, so it remains due and is retried on the
// next sweep.
func (s *GenerationService) generateOne(ctx context.Context, tpl *domain.Template, now time.Time) domain.GenerationResult {
	res := domain.GenerationResult{
		TemplateID:   tpl.TemplateID,
		TemplateName: tpl.Name,
	}
	fail := func(err error) domain.GenerationResult {
		res.Success = false
		res.Error = err.Error()
		return res
	}

	if !tpl.NextGenerationAt.Valid {
		return fail(fmt.Errorf("template has no next_generation_at"))
	}
	// The previously scheduled due instant, not now: advancing from it keeps
	// the cadence anchored instead of drifting with execution latency.
	observed := tpl.NextGenerationAt.Time

	// Computing the next instant first also validates the rule, so a
	// malformed frequency fails the item before anything is written.
	newNext, err := recurrence.NextDueInstant(tpl.RecurrenceRule, observed)
	if err != nil {
		return fail(err)
	}

	status, err := s.tasks.GetDefaultStatus(ctx)
	if err != nil {
		return fail(err)
	}

	userID, assigned, nextIndex := recurrence.ResolveAssignment(tpl.RecurrenceRule, tpl.RotationIndex)
	var assignedTo sql.NullString
	if assigned {
		assignedTo = sql.NullString{String: userID, Valid: true}
	}

	taskID, err := s.tasks.CreateFromTemplate(ctx, &domain.Task{
		TemplateID:   tpl.TemplateID,
		Title:        tpl.TaskTitle(),
		Description:  tpl.DefaultDescription,
		DivisionID:   tpl.DefaultDivisionID,
		StatusID:     status.StatusID,
		AssignedTo:   assignedTo,
		CustomFields: tpl.DefaultCustomFields,
		ScheduledFor: observed,
	})
	if err != nil {
		return fail(err)
	}
	res.TaskID = taskID

	if err := s.templates.AdvanceSchedule(ctx, tpl.TemplateID, observed, now, newNext, nextIndex); err != nil {
		// Task exists but the schedule did not move. The dedup key on
		// (template_id, scheduled_for) makes the retry land on the same
		// task, so this stays at-least-once without duplicates.
		return fail(err)
	}

	res.Success = true
	return res
}
