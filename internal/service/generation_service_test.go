package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fieldtask/internal/domain"
	"fieldtask/internal/repository"
)

var sweepNow = time.Date(2024, time.March, 6, 12, 0, 0, 0, time.UTC)

// failingTemplatesRepo injects scan/advance failures on top of the memory repo.
type failingTemplatesRepo struct {
	*repository.MemoryTemplatesRepo
	scanErr        error
	failAdvanceFor map[string]error
}

func (r *failingTemplatesRepo) ScanDue(ctx context.Context, now time.Time) ([]*domain.Template, error) {
	if r.scanErr != nil {
		return nil, r.scanErr
	}
	return r.MemoryTemplatesRepo.ScanDue(ctx, now)
}

func (r *failingTemplatesRepo) AdvanceSchedule(ctx context.Context, templateID string, observedNext, lastGenerated, newNext time.Time, rotationIndex int) error {
	if err := r.failAdvanceFor[templateID]; err != nil {
		return err
	}
	return r.MemoryTemplatesRepo.AdvanceSchedule(ctx, templateID, observedNext, lastGenerated, newNext, rotationIndex)
}

// failingTasksRepo injects insert failures per template.
type failingTasksRepo struct {
	*repository.MemoryTasksRepo
	failCreateFor map[string]error
}

func (r *failingTasksRepo) CreateFromTemplate(ctx context.Context, task *domain.Task) (string, error) {
	if task != nil {
		if err := r.failCreateFor[task.TemplateID]; err != nil {
			return "", err
		}
	}
	return r.MemoryTasksRepo.CreateFromTemplate(ctx, task)
}

type generationFixture struct {
	templates *failingTemplatesRepo
	tasks     *failingTasksRepo
	svc       *GenerationService
}

func newGenerationFixture() *generationFixture {
	templates := &failingTemplatesRepo{
		MemoryTemplatesRepo: repository.NewMemoryTemplatesRepo(),
		failAdvanceFor:      map[string]error{},
	}
	tasks := &failingTasksRepo{
		MemoryTasksRepo: repository.NewMemoryTasksRepo(),
		failCreateFor:   map[string]error{},
	}
	svc := NewGenerationService(templates, tasks, zap.NewNop())
	svc.now = func() time.Time { return sweepNow }
	return &generationFixture{templates: templates, tasks: tasks, svc: svc}
}

func (f *generationFixture) addDueTemplate(t *testing.T, id, name string, rule *domain.RecurrenceRule, dueAt time.Time) {
	t.Helper()
	_, err := f.templates.CreateTemplate(context.Background(), &domain.Template{
		TemplateID:       id,
		Name:             name,
		IsActive:         true,
		RecurrenceRule:   rule,
		NextGenerationAt: sql.NullTime{Time: dueAt, Valid: true},
		RotationIndex:    -1,
	})
	require.NoError(t, err)
}

func TestProcessDueTemplates_EmptyDueSet(t *testing.T) {
	f := newGenerationFixture()

	report, err := f.svc.ProcessDueTemplates(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, report.Results)
	assert.Equal(t, sweepNow, report.Timestamp)
	assert.Equal(t, 0, f.tasks.Count(), "no writes on an empty due set")
}

func TestProcessDueTemplates_GeneratesAndAdvances(t *testing.T) {
	f := newGenerationFixture()
	dueAt := time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC)
	f.addDueTemplate(t, "tpl-1", "Weekly inspection", &domain.RecurrenceRule{
		Frequency:       domain.FrequencyDaily,
		Interval:        2,
		AssignTo:        domain.AssignRotate,
		RotationUserIDs: []string{"u1", "u2"},
	}, dueAt)

	report, err := f.svc.ProcessDueTemplates(context.Background())

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.True(t, res.Success)
	assert.Equal(t, "tpl-1", res.TemplateID)
	assert.Equal(t, "Weekly inspection", res.TemplateName)
	require.NotEmpty(t, res.TaskID)

	task, ok := f.tasks.GetTask(res.TaskID)
	require.True(t, ok)
	assert.Equal(t, "Weekly inspection", task.Title, "empty default_title falls back to template name")
	assert.Equal(t, "u1", task.AssignedTo.String, "first rotation entry on first assignment")
	assert.Equal(t, dueAt, task.ScheduledFor)

	tpl, err := f.templates.GetTemplate(context.Background(), "tpl-1")
	require.NoError(t, err)
	// Advanced from the scheduled instant, not from the sweep's run time.
	assert.Equal(t, dueAt.AddDate(0, 0, 2), tpl.NextGenerationAt.Time)
	assert.Equal(t, sweepNow, tpl.LastGeneratedAt.Time)
	assert.Equal(t, 0, tpl.RotationIndex)
}

func TestProcessDueTemplates_RotationAdvancesAcrossSweeps(t *testing.T) {
	f := newGenerationFixture()
	dueAt := time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC)
	f.addDueTemplate(t, "tpl-1", "Rotating patrol", &domain.RecurrenceRule{
		Frequency:       domain.FrequencyDaily,
		AssignTo:        domain.AssignRotate,
		RotationUserIDs: []string{"u1", "u2", "u3"},
	}, dueAt)

	assignees := []string{}
	for i := 0; i < 4; i++ {
		// Each sweep runs one day later so the template is due again.
		day := sweepNow.AddDate(0, 0, i)
		f.svc.now = func() time.Time { return day }

		report, err := f.svc.ProcessDueTemplates(context.Background())
		require.NoError(t, err)
		require.Len(t, report.Results, 1)
		require.True(t, report.Results[0].Success)

		task, ok := f.tasks.GetTask(report.Results[0].TaskID)
		require.True(t, ok)
		assignees = append(assignees, task.AssignedTo.String)
	}

	assert.Equal(t, []string{"u1", "u2", "u3", "u1"}, assignees)
}

func TestProcessDueTemplates_FailureIsolation(t *testing.T) {
	f := newGenerationFixture()
	dueAt := time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC)
	f.addDueTemplate(t, "tpl-bad", "Failing insert", &domain.RecurrenceRule{Frequency: domain.FrequencyDaily}, dueAt)
	f.addDueTemplate(t, "tpl-good", "Working", &domain.RecurrenceRule{Frequency: domain.FrequencyDaily}, dueAt)
	f.tasks.failCreateFor["tpl-bad"] = fmt.Errorf("pq: connection reset by peer")

	report, err := f.svc.ProcessDueTemplates(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 2)

	byID := map[string]domain.GenerationResult{}
	for _, r := range report.Results {
		byID[r.TemplateID] = r
	}
	assert.True(t, byID["tpl-good"].Success)
	assert.False(t, byID["tpl-bad"].Success)
	assert.Contains(t, byID["tpl-bad"].Error, "connection reset")

	good, err := f.templates.GetTemplate(context.Background(), "tpl-good")
	require.NoError(t, err)
	assert.True(t, good.NextGenerationAt.Time.After(dueAt), "successful template advanced")

	bad, err := f.templates.GetTemplate(context.Background(), "tpl-bad")
	require.NoError(t, err)
	assert.Equal(t, dueAt, bad.NextGenerationAt.Time, "failing template schedule unchanged")
	assert.False(t, bad.LastGeneratedAt.Valid)
}

func TestProcessDueTemplates_AdvanceFailureKeepsTemplateDue(t *testing.T) {
	f := newGenerationFixture()
	dueAt := time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC)
	f.addDueTemplate(t, "tpl-1", "Flaky advance", &domain.RecurrenceRule{Frequency: domain.FrequencyDaily}, dueAt)
	f.templates.failAdvanceFor["tpl-1"] = fmt.Errorf("pq: deadlock detected")

	report, err := f.svc.ProcessDueTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Success)
	firstTaskID := report.Results[0].TaskID
	assert.NotEmpty(t, firstTaskID, "task was created before the advance failed")

	// Schedule never moved: the template is reproduced as due on the next
	// sweep, and the dedup key lands the retry on the same task.
	delete(f.templates.failAdvanceFor, "tpl-1")
	report, err = f.svc.ProcessDueTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Success)
	assert.Equal(t, firstTaskID, report.Results[0].TaskID)
	assert.Equal(t, 1, f.tasks.Count(), "no duplicate task from the retry")
}

func TestProcessDueTemplates_MalformedFrequency(t *testing.T) {
	f := newGenerationFixture()
	dueAt := time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC)
	f.addDueTemplate(t, "tpl-1", "Bad rule", &domain.RecurrenceRule{Frequency: "hourly"}, dueAt)

	report, err := f.svc.ProcessDueTemplates(context.Background())

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Success)
	assert.Contains(t, report.Results[0].Error, "unknown recurrence frequency")
	assert.Equal(t, 0, f.tasks.Count(), "malformed rule fails before any write")
}

func TestProcessDueTemplates_MissingDefaultStatus(t *testing.T) {
	f := newGenerationFixture()
	dueAt := time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC)
	f.addDueTemplate(t, "tpl-1", "No status", &domain.RecurrenceRule{Frequency: domain.FrequencyDaily}, dueAt)
	f.tasks.SetDefaultStatus(nil)

	report, err := f.svc.ProcessDueTemplates(context.Background())

	require.NoError(t, err, "configuration errors stay per template")
	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Success)
	assert.Contains(t, report.Results[0].Error, "no default task status")
	assert.Equal(t, 0, f.tasks.Count())
}

func TestProcessDueTemplates_ScanFailureIsWholeSweepFailure(t *testing.T) {
	f := newGenerationFixture()
	f.templates.scanErr = fmt.Errorf("pq: the database system is starting up")

	report, err := f.svc.ProcessDueTemplates(context.Background())

	require.Error(t, err)
	assert.Nil(t, report)
	assert.Contains(t, err.Error(), "failed to scan due templates")
}

func TestProcessDueTemplates_UsesDefaultTitleWhenSet(t *testing.T) {
	f := newGenerationFixture()
	dueAt := time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC)
	_, err := f.templates.CreateTemplate(context.Background(), &domain.Template{
		TemplateID:          "tpl-1",
		Name:                "Template name",
		DefaultTitle:        "Check generator fuel",
		DefaultDescription:  "Run the full checklist",
		DefaultCustomFields: []byte(`{"site":"north"}`),
		IsActive:            true,
		RecurrenceRule:      &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, AssignTo: domain.AssignFixed, FixedUserID: "u9"},
		NextGenerationAt:    sql.NullTime{Time: dueAt, Valid: true},
		RotationIndex:       -1,
	})
	require.NoError(t, err)

	report, err := f.svc.ProcessDueTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.True(t, report.Results[0].Success)

	task, ok := f.tasks.GetTask(report.Results[0].TaskID)
	require.True(t, ok)
	assert.Equal(t, "Check generator fuel", task.Title)
	assert.Equal(t, "Run the full checklist", task.Description)
	assert.JSONEq(t, `{"site":"north"}`, string(task.CustomFields))
	assert.Equal(t, "u9", task.AssignedTo.String)
}
