package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SchedulerService is the optional in-process trigger for deployments
// without an external scheduler. It only invokes the SweepRunner on a fixed
// period; the engine keeps no timer of its own.
type SchedulerService struct {
	cron   *cron.Cron
	runner *SweepRunner
	logger *zap.Logger
}

func NewSchedulerService(runner *SweepRunner, logger *zap.Logger) *SchedulerService {
	return &SchedulerService{
		cron:   cron.New(),
		runner: runner,
		logger: logger,
	}
}

// ScheduleSweep registers the periodic sweep job.
func (s *SchedulerService) ScheduleSweep(interval time.Duration) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	spec := fmt.Sprintf("@every %ds", int(interval.Seconds()))
	return s.cron.AddFunc(spec, func() {
		// Bound each run so a hung store cannot pile up overlapping jobs.
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()

		report, err := s.runner.Run(ctx)
		if err == ErrSweepInProgress {
			s.logger.Info("scheduled sweep skipped, lease held elsewhere")
			return
		}
		if err != nil {
			s.logger.Error("scheduled sweep failed", zap.Error(err))
			return
		}
		s.logger.Info("scheduled sweep completed",
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed))
	})
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
