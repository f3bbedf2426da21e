// Package scheduler runs named jobs on fixed intervals from a single goroutine.
// Jobs never overlap. A failing or panicking job is logged and the loop keeps
// going; slots missed while a job ran long are skipped, not replayed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"poof_palace_engine/logging"
	"poof_palace_engine/monitoring"
)

// JobFunc is one unit of scheduled work.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
	next     time.Time
}

// Scheduler holds the registered jobs. Register everything before Run.
type Scheduler struct {
	jobs    []*job
	logger  logging.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
	running bool
}

func New(logger logging.Logger, metrics *monitoring.Metrics) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{logger: logger, metrics: metrics, now: time.Now}
}

// Add registers fn to run every interval. The first run is one interval from
// now.
func (s *Scheduler) Add(name string, interval time.Duration, fn JobFunc) error {
	if s.running {
		return errors.New("scheduler already running")
	}
	if name == "" || fn == nil {
		return errors.New("job name and func are required")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", name, interval)
	}
	for _, j := range s.jobs {
		if j.name == name {
			return fmt.Errorf("job %s already registered", name)
		}
	}
	s.jobs = append(s.jobs, &job{name: name, interval: interval, fn: fn, next: s.now().Add(interval)})
	s.logger.WithFields(logging.Fields{"job": name, "interval": interval.String()}).Info("job scheduled")
	return nil
}

// NextRun reports when name is next due.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	for _, j := range s.jobs {
		if j.name == name {
			return j.next, true
		}
	}
	return time.Time{}, false
}

// Run blocks until ctx is done, running jobs as they come due.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return errors.New("no jobs registered")
	}
	s.running = true
	defer func() { s.running = false }()

	s.logger.WithField("jobs", len(s.jobs)).Info("scheduler started")
	for {
		due := s.nextDue()
		wait := due.Sub(s.now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return nil
		case <-timer.C:
		}

		now := s.now()
		for _, j := range s.dueJobs(now) {
			if ctx.Err() != nil {
				break
			}
			s.supervise(ctx, j)
			j.next = nextAfter(j.next, j.interval, s.now())
			s.logger.WithFields(logging.Fields{"job": j.name, "next_run": j.next.Format(time.RFC3339)}).Debug("job rescheduled")
		}
	}
}

func (s *Scheduler) nextDue() time.Time {
	due := s.jobs[0].next
	for _, j := range s.jobs[1:] {
		if j.next.Before(due) {
			due = j.next
		}
	}
	return due
}

// dueJobs returns the jobs due at now, earliest first. Ties keep registration order.
func (s *Scheduler) dueJobs(now time.Time) []*job {
	var due []*job
	for _, j := range s.jobs {
		if !j.next.After(now) {
			due = append(due, j)
		}
	}
	sort.SliceStable(due, func(a, b int) bool { return due[a].next.Before(due[b].next) })
	return due
}

// supervise runs one job, turning panics and errors into log lines.
func (s *Scheduler) supervise(ctx context.Context, j *job) {
	log := s.logger.WithField("job", j.name)
	start := s.now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		elapsed := s.now().Sub(start)
		s.metrics.ObserveJob(j.name, elapsed, err)
		if err != nil {
			log.WithError(err).WithField("duration", elapsed.String()).Error("job failed")
			return
		}
		log.WithField("duration", elapsed.String()).Info("job finished")
	}()

	log.Info("job starting")
	err = j.fn(ctx)
}

// nextAfter advances prev by whole intervals until it is after now.
func nextAfter(prev time.Time, interval time.Duration, now time.Time) time.Time {
	next := prev.Add(interval)
	if next.After(now) {
		return next
	}
	missed := now.Sub(next)/interval + 1
	return next.Add(missed * interval)
}
