// Package maintenance runs cron-scheduled housekeeping over the store:
// expired idempotency tokens and old read notifications.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
)

const lastRunFile = "last_run.json"

var ErrRunInProgress = errors.New("maintenance run already in progress")

type Purger interface {
	PurgeExpiredIdempotency(ctx context.Context, dryRun bool) (int, error)
	PurgeReadNotifications(ctx context.Context, retention time.Duration, dryRun bool) (int, error)
}

type Options struct {
	Cron                  string
	NotificationRetention time.Duration
	DryRun                bool
	// RecordDir receives a JSON record of the last run. Empty disables it.
	RecordDir string
	Clock     timeutil.Clock
}

// Report describes one run.
type Report struct {
	RunID               string    `json:"run_id"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	DryRun              bool      `json:"dry_run"`
	IdempotencyPurged   int       `json:"idempotency_purged"`
	NotificationsPurged int       `json:"notifications_purged"`
	Error               string    `json:"error,omitempty"`
}

type Scheduler struct {
	purger Purger
	opts   Options

	mu      sync.Mutex
	running bool
	last    *Report
}

func New(p Purger, opts Options) (*Scheduler, error) {
	if !gronx.IsValid(opts.Cron) {
		return nil, fmt.Errorf("invalid maintenance cron expression: %q", opts.Cron)
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.System
	}
	return &Scheduler{purger: p, opts: opts}, nil
}

// Next returns the first scheduled tick after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.opts.Cron, t, false)
}

// LastReport returns the most recent run, if any.
func (s *Scheduler) LastReport() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

// RunOnce performs a single pass. Overlapping calls fail with
// ErrRunInProgress. A failure in one task does not skip the next.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Report{}, ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	tr := telemetry.Track("maintenance.run")
	defer tr.Finish()

	rep := Report{
		RunID:     uuid.NewString(),
		StartedAt: s.opts.Clock.Now(),
		DryRun:    s.opts.DryRun,
	}
	logger.Info("maintenance_run_start", "run_id", rep.RunID, "dry_run", rep.DryRun)

	var errs []error
	n, err := s.purger.PurgeExpiredIdempotency(ctx, s.opts.DryRun)
	if err != nil {
		errs = append(errs, fmt.Errorf("purge idempotency: %w", err))
	}
	rep.IdempotencyPurged = n
	tr.Mark("idempotency")

	if s.opts.NotificationRetention > 0 {
		n, err = s.purger.PurgeReadNotifications(ctx, s.opts.NotificationRetention, s.opts.DryRun)
		if err != nil {
			errs = append(errs, fmt.Errorf("purge notifications: %w", err))
		}
		rep.NotificationsPurged = n
		tr.Mark("notifications")
	}

	rep.FinishedAt = s.opts.Clock.Now()
	runErr := errors.Join(errs...)
	if runErr != nil {
		rep.Error = runErr.Error()
		logger.Error("maintenance_run_error", "run_id", rep.RunID, "error", runErr)
	}
	logger.Info("maintenance_run_done", "run_id", rep.RunID,
		"idempotency_purged", rep.IdempotencyPurged,
		"notifications_purged", rep.NotificationsPurged,
		"duration", rep.FinishedAt.Sub(rep.StartedAt))

	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
	if err := s.writeRecord(rep); err != nil {
		logger.Warn("maintenance_record_write_failed", "error", err)
	}
	return rep, runErr
}

// writeRecord replaces the last-run file atomically.
func (s *Scheduler) writeRecord(rep Report) error {
	if s.opts.RecordDir == "" {
		return nil
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.opts.RecordDir, lastRunFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadRecord loads the last-run file from dir.
func ReadRecord(dir string) (Report, error) {
	var rep Report
	b, err := os.ReadFile(filepath.Join(dir, lastRunFile))
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}

// Run waits for each cron tick and runs a pass until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("maintenance_enabled", "cron", s.opts.Cron, "dry_run", s.opts.DryRun)
	for {
		next, err := s.Next(timeutil.Now())
		if err != nil {
			logger.Error("maintenance_nexttick_failed", "cron", s.opts.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			_, _ = s.RunOnce(ctx)
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}
