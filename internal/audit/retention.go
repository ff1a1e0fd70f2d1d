package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultRetentionSchedule runs the sweep daily at 03:00.
const DefaultRetentionSchedule = "0 3 * * *"

const sweepTimeout = 5 * time.Minute

// RetentionScheduler runs CleanupOldLogs on a cron schedule.
type RetentionScheduler struct {
	audit    *Logger
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewRetentionScheduler validates the cron expression (standard five-field
// syntax) and registers the sweep. Call Start to begin.
func NewRetentionScheduler(audit *Logger, schedule string, logger *zap.Logger) (*RetentionScheduler, error) {
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("NewRetentionScheduler: invalid schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &RetentionScheduler{
		audit:    audit,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("NewRetentionScheduler: %w", err)
	}
	return s, nil
}

func (s *RetentionScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.audit.CleanupOldLogs(ctx); err != nil {
		s.logger.Error("scheduled audit retention sweep failed", zap.Error(err))
	}
}

// Start begins scheduled sweeps and stops them when ctx is cancelled.
func (s *RetentionScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("audit retention scheduler started",
		zap.String("schedule", s.schedule),
		zap.Int("retention_days", s.audit.Retention()),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("audit retention scheduler stopped")
}

// NextRun returns when the next sweep is due, or the zero time if the
// scheduler is not running.
func (s *RetentionScheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
