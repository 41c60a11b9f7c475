package service

import (
	"context"

	"go.uber.org/zap"

	"fieldtask/internal/domain"
)

// SweepRunner is the trigger layer around the engine: it takes the sweep
// lease, runs one sweep, and pushes a summary to the ops webhook when the
// sweep recorded failures. The engine itself stays free of locking and
// alerting per its contract.
type SweepRunner struct {
	generation *GenerationService
	lock       *SweepLock       // optional; nil skips the lease
	notifier   *WebhookNotifier // optional
	logger     *zap.Logger
}

func NewSweepRunner(generation *GenerationService, lock *SweepLock, notifier *WebhookNotifier, logger *zap.Logger) *SweepRunner {
	return &SweepRunner{
		generation: generation,
		lock:       lock,
		notifier:   notifier,
		logger:     logger,
	}
}

// Run executes one locked sweep. Returns ErrSweepInProgress when the lease
// is held, or the scan error on whole-sweep failure.
func (r *SweepRunner) Run(ctx context.Context) (*domain.SweepReport, error) {
	if r.lock != nil {
		release, err := r.lock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	report, err := r.generation.ProcessDueTemplates(ctx)
	if err != nil {
		return nil, err
	}

	if r.notifier != nil && report.Failed > 0 {
		if err := r.notifier.NotifySweepFailures(ctx, report); err != nil {
			// Alerting failures never fail the sweep.
			r.logger.Warn("failed to deliver sweep webhook", zap.Error(err))
		}
	}
	return report, nil
}
