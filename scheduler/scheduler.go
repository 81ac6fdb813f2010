// Package scheduler runs the site's periodic housekeeping jobs.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ErrNonPositiveInterval is returned for intervals <= 0.
var ErrNonPositiveInterval = errors.New("interval must be positive")

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	scheduler gocron.Scheduler
	log       *zap.Logger
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	clock clockwork.Clock
	log   *zap.Logger
}

// WithClock drives the scheduler from c.
func WithClock(c clockwork.Clock) Option { return func(o *options) { o.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// New creates a scheduler. It does not run jobs until Start.
func New(opts ...Option) (*Scheduler, error) {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	var gopts []gocron.SchedulerOption
	if o.clock != nil {
		gopts = append(gopts, gocron.WithClock(o.clock))
	}
	s, err := gocron.NewScheduler(gopts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, log: o.log}, nil
}

// Start begins running jobs.
func (s *Scheduler) Start() {
	s.log.Info("starting scheduler", zap.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop shuts the scheduler down and waits for running jobs.
func (s *Scheduler) Stop() error {
	s.log.Info("stopping scheduler")
	return s.scheduler.Shutdown()
}

// Every runs fn every interval. A run that overlaps the previous one is
// skipped. It returns the job id.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("schedule %q: %w", name, ErrNonPositiveInterval)
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run, name, fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("schedule %q: %w", name, err)
	}
	s.log.Debug("job scheduled", zap.String("job", name), zap.Duration("interval", interval))
	return job.ID().String(), nil
}

// Remove drops a job by id.
func (s *Scheduler) Remove(id string) error {
	jid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("job id %q: %w", id, err)
	}
	return s.scheduler.RemoveJob(jid)
}

func (s *Scheduler) run(name string, fn func()) {
	start := time.Now()
	fn()
	s.log.Debug("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
}
