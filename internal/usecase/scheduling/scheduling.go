// Package scheduling runs recurring CSV export jobs against the session
// currently being recorded.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"polarmon/internal/domain"
)

// Exporter writes one stream of a session to a file and returns its path.
type Exporter interface {
	ExportHeartRate(ctx context.Context, sessionID string) (string, error)
	ExportECG(ctx context.Context, sessionID string) (string, error)
}

// SessionSource reports the session currently recording, or nil.
type SessionSource interface {
	Session() *domain.Session
}

// Job is one recurring export.
type Job struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" OR duration "30m"
	Stream   string // "hr" or "ecg"
}

type exportPayload struct {
	Job    string `json:"job"`
	Stream string `json:"stream"`
	Path   string `json:"path"`
}

// Scheduler runs export jobs on cron schedules or fixed intervals.
type Scheduler struct {
	cron     *cron.Cron
	exporter Exporter
	source   SessionSource
	bus      domain.EventBus
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. bus may be nil.
func NewScheduler(exporter Exporter, source SessionSource, bus domain.EventBus, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		exporter: exporter,
		source:   source,
		bus:      bus,
		logger:   logger,
	}
}

// AddJob registers a recurring export. The schedule can be a cron expression
// or a duration string.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.Stream != "hr" && job.Stream != "ecg" {
		return fmt.Errorf("scheduler: unknown stream %q for job %q", job.Stream, job.Name)
	}
	schedule, err := ParseSchedule(job.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for job %q: %w", job.Schedule, job.Name, err)
	}

	s.cron.Schedule(schedule, cron.FuncJob(func() { s.runJob(job) }))
	s.logger.Info("export job added",
		"name", job.Name, "schedule", job.Schedule, "stream", job.Stream)
	return nil
}

func (s *Scheduler) runJob(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil {
		s.logger.Debug("scheduler stopped, skipping job", "job", job.Name)
		return
	}

	sess := s.source.Session()
	if sess == nil {
		s.logger.Debug("no active session, skipping export", "job", job.Name)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	start := time.Now()
	var path string
	var err error
	switch job.Stream {
	case "ecg":
		path, err = s.exporter.ExportECG(jobCtx, sess.ID)
	default:
		path, err = s.exporter.ExportHeartRate(jobCtx, sess.ID)
	}
	if err != nil {
		s.logger.Warn("export job failed",
			"job", job.Name, "session", sess.ID,
			"error", err, "duration", time.Since(start))
		return
	}

	s.logger.Info("export job completed",
		"job", job.Name, "path", path, "duration", time.Since(start))
	if s.bus != nil {
		s.bus.Publish(jobCtx, domain.NewEvent(domain.EventExportCompleted, sess.ID,
			exportPayload{Job: job.Name, Stream: job.Stream, Path: path}))
	}
}

// Start begins running the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
}

// Stop signals the scheduler to stop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.started = false
	s.ctx = nil
}

// ParseSchedule turns a job schedule into a cron.Schedule. It accepts a
// five-field cron expression, a descriptor like "@hourly", or a Go duration
// string like "30m". Config validation uses the same function, so anything
// that validates is guaranteed to register.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return &constantDelay{delay: dur}, nil
}

// constantDelay implements cron.Schedule for a fixed interval. Unlike
// cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d *constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}
