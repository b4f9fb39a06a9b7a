// Package sensor watches free space on the filesystem holding the database
// and flips a degraded flag that readiness checks consult.
package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
)

// DiskUsage is a filesystem sample.
type DiskUsage struct {
	Total uint64
	Free  uint64
}

func (u DiskUsage) UsedPct() float64 {
	if u.Total == 0 {
		return 0
	}
	return float64(u.Total-u.Free) / float64(u.Total) * 100
}

// monitor config
type MonitorConfig struct {
	Path         string
	PollInterval time.Duration
	DiskHighPct  int
	DiskLowPct   int
}

type Sensor struct {
	config MonitorConfig
	statfs func(path string) (DiskUsage, error)

	mu        sync.Mutex
	diskAlert bool
	last      DiskUsage
}

func NewSensor(config MonitorConfig) *Sensor {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.Path == "" {
		config.Path = "/"
	}
	return &Sensor{config: config, statfs: statfs}
}

func statfs(path string) (DiskUsage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return DiskUsage{}, err
	}
	bsize := uint64(stat.Bsize)
	return DiskUsage{Total: stat.Blocks * bsize, Free: stat.Bavail * bsize}, nil
}

// Degraded reports whether disk usage crossed the high mark and has not yet
// dropped below the low mark.
func (s *Sensor) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diskAlert
}

// Last returns the most recent sample.
func (s *Sensor) Last() DiskUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Check takes one sample and updates the alert state.
func (s *Sensor) Check() error {
	u, err := s.statfs(s.config.Path)
	if err != nil {
		logger.Error("disk_stat_failed", "path", s.config.Path, "error", err)
		return err
	}
	used := u.UsedPct()
	telemetry.DiskUsedPercent.Set(used)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = u
	switch {
	case used > float64(s.config.DiskHighPct) && !s.diskAlert:
		s.diskAlert = true
		logger.Warn("disk_usage_high", "usage_pct", used, "threshold", s.config.DiskHighPct, "free", humanize.IBytes(u.Free))
	case used < float64(s.config.DiskLowPct) && s.diskAlert:
		s.diskAlert = false
		logger.Info("disk_usage_recovered", "usage_pct", used, "threshold", s.config.DiskLowPct, "free", humanize.IBytes(u.Free))
	}
	return nil
}

// Run samples until ctx is done.
func (s *Sensor) Run(ctx context.Context) {
	_ = s.Check()
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.Check()
		case <-ctx.Done():
			return
		}
	}
}
