package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	DefaultRetentionDays   = 30
	DefaultPruneSchedule   = "@daily"
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	MaxConsecutiveFailures = 3
)

// Service provides audit log management functionality.
type Service struct {
	logger              *logrus.Logger
	repo                *Repository
	retentionDays       int
	pruneSchedule       string
	defaultQueryLimit   int
	maxQueryLimit       int
	cron                *cron.Cron
	healthy             bool
	healthMu            sync.RWMutex
	consecutiveFailures int
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	RetentionDays int    // Optional: defaults to DefaultRetentionDays
	PruneSchedule string // Optional: cron expression, defaults to DefaultPruneSchedule
	Logger        *logrus.Logger
}

// NewService creates a new audit service.
// Accepts a DBPair for SQLite concurrency with separate reader/writer pools.
func NewService(dbPair DBPair, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	retentionDays := opts.RetentionDays
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	pruneSchedule := opts.PruneSchedule
	if pruneSchedule == "" {
		pruneSchedule = DefaultPruneSchedule
	}

	return &Service{
		logger:            logger,
		repo:              NewRepository(dbPair),
		retentionDays:     retentionDays,
		pruneSchedule:     pruneSchedule,
		defaultQueryLimit: DefaultQueryLimit,
		maxQueryLimit:     MaxQueryLimit,
		healthy:           true,
	}
}

// RecordEvent writes a new audit event.
func (s *Service) RecordEvent(input WriteEventInput) (*AuditEvent, error) {
	if input.Level == nil {
		level := EventLevelInfo
		input.Level = &level
	}

	s.logger.WithFields(logrus.Fields{
		"type":  input.Type,
		"level": *input.Level,
	}).Debug("recording audit event")

	event, err := s.repo.InsertEvent(input)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to record audit event: %w", err)
	}

	s.recordSuccess()
	return event, nil
}

// Record writes an event and only logs on failure. A nil Service records nothing.
func (s *Service) Record(eventType EventType, level EventLevel, message string, correlation EventCorrelation, payload map[string]any) {
	if s == nil {
		return
	}
	_, err := s.RecordEvent(WriteEventInput{
		Type:       string(eventType),
		Level:      &level,
		RequestID:  correlation.RequestID,
		SongID:     correlation.SongID,
		PlaybackID: correlation.PlaybackID,
		Message:    message,
		Payload:    payload,
	})
	if err != nil {
		s.logger.WithError(err).WithField("type", eventType).Warn("audit event dropped")
	}
}

// QueryEvents retrieves events with filters and pagination.
// Clamps limit to maxQueryLimit.
// Returns: events, total count, hasMore flag, error.
func (s *Service) QueryEvents(filters EventQueryFilters) ([]AuditEvent, int, bool, error) {
	if filters.Limit == 0 {
		filters.Limit = s.defaultQueryLimit
	}
	if filters.Limit > s.maxQueryLimit {
		filters.Limit = s.maxQueryLimit
	}

	events, total, err := s.repo.QueryEvents(filters)
	if err != nil {
		s.recordFailure()
		return nil, 0, false, fmt.Errorf("failed to query audit events: %w", err)
	}

	s.recordSuccess()

	hasMore := filters.Offset+len(events) < total

	return events, total, hasMore, nil
}

// GetEvent retrieves a single event by ID.
func (s *Service) GetEvent(eventID string) (*AuditEvent, error) {
	event, err := s.repo.GetEvent(eventID)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}

	if event == nil {
		return nil, &EventNotFoundError{EventID: eventID}
	}

	s.recordSuccess()
	return event, nil
}

// StartPruneJob prunes once, then on the configured cron schedule.
func (s *Service) StartPruneJob() error {
	s.logger.WithFields(logrus.Fields{
		"schedule":       s.pruneSchedule,
		"retention_days": s.retentionDays,
	}).Info("starting audit prune job")

	c := cron.New()
	if _, err := c.AddFunc(s.pruneSchedule, s.runPrune); err != nil {
		return fmt.Errorf("schedule audit prune: %w", err)
	}
	s.cron = c

	s.runPrune()
	c.Start()
	return nil
}

// StopPruneJob stops the background prune job and waits for a running prune to finish.
func (s *Service) StopPruneJob() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("audit prune job stopped")
}

func (s *Service) runPrune() {
	count, err := s.Prune()
	if err != nil {
		s.logger.WithError(err).Error("error pruning audit events")
		return
	}
	if count > 0 {
		s.logger.WithField("count", count).Info("pruned audit events")
	}
}

// Prune deletes events older than the retention window and returns the count deleted.
func (s *Service) Prune() (int64, error) {
	count, err := s.repo.PruneOldEvents(s.retentionDays)
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}

	s.recordSuccess()
	return count, nil
}

// IsHealthy returns current health status.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

// Ping reports whether the audit database answers.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.reader.PingContext(ctx)
}

// recordSuccess resets the consecutive failure count and marks service as healthy.
func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

// recordFailure increments the consecutive failure count and marks unhealthy after threshold.
func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}

// EventNotFoundError is returned when an audit event is not found.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("audit event not found: %s", e.EventID)
}
