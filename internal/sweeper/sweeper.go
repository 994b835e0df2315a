package sweeper

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/strefethen/harmony-go/internal/audit"
)

// Registry owns the temp files. RemoveIfUnregistered deletes path only when it is
// not referenced, not being downloaded and older than cutoff.
type Registry interface {
	RemoveIfUnregistered(path string, cutoff time.Time) (bool, error)
}

// Options configures a Sweeper.
type Options struct {
	Dir      string
	Prefix   string
	MinAge   time.Duration // files younger than this may still be downloading
	Schedule string        // standard cron expression, defaults to every 10 minutes
	Audit    *audit.Service
	Logger   *logrus.Logger
}

// Sweeper deletes temp files that a previous process left behind.
// A file is removed only when it carries our prefix, is not registered or being
// downloaded and is older than MinAge. The registry does the removal.
type Sweeper struct {
	refs     Registry
	dir      string
	prefix   string
	minAge   time.Duration
	schedule string
	audit    *audit.Service
	logger   *logrus.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a Sweeper. Call Start to run it on its schedule.
func New(refs Registry, opts Options) *Sweeper {
	if opts.Schedule == "" {
		opts.Schedule = "*/10 * * * *"
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Sweeper{
		refs:     refs,
		dir:      opts.Dir,
		prefix:   opts.Prefix,
		minAge:   opts.MinAge,
		schedule: opts.Schedule,
		audit:    opts.Audit,
		logger:   opts.Logger,
		now:      time.Now,
	}
}

// Start sweeps once, then on the schedule.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("schedule orphan sweep: %w", err)
	}
	s.cron = c

	s.logger.WithFields(logrus.Fields{
		"dir":      s.dir,
		"schedule": s.schedule,
		"min_age":  s.minAge.String(),
	}).Info("starting orphan sweeper")

	s.run()
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
}

func (s *Sweeper) run() {
	removed, err := s.Sweep()
	if err != nil {
		s.logger.WithError(err).Warn("orphan sweep incomplete")
	}
	if len(removed) > 0 {
		s.logger.WithField("count", len(removed)).Info("removed orphaned temp files")
	}
}

// Sweep removes orphaned files and returns their paths. Errors on individual files are joined.
func (s *Sweeper) Sweep() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, s.prefix+"-*"))
	if err != nil {
		return nil, fmt.Errorf("list temp files: %w", err)
	}

	cutoff := s.now().Add(-s.minAge)
	removed := []string{}
	var errs []error
	for _, path := range matches {
		ok, err := s.refs.RemoveIfUnregistered(path, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			continue
		}
		if ok {
			removed = append(removed, path)
		}
	}

	if len(removed) > 0 {
		s.audit.Record(audit.EventOrphansSwept, audit.LevelInfo,
			fmt.Sprintf("Removed %d orphaned temp files", len(removed)),
			audit.EventCorrelation{}, map[string]any{"paths": removed})
	}
	return removed, errors.Join(errs...)
}
