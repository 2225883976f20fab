// Package scheduler runs background maintenance jobs on cron schedules and
// keeps the registry that manual triggers and status reads go through.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	// ErrJobNotFound is returned when triggering a name nobody registered
	ErrJobNotFound = errors.New("job not registered")
	// ErrJobRunning is returned when a run of the same job is in progress
	ErrJobRunning = errors.New("job already running")
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus is the observable state of a registered job. Schedule is empty
// for jobs that only run on demand.
type JobStatus struct {
	Name       string     `json:"name"`
	Schedule   string     `json:"schedule,omitempty"`
	Running    bool       `json:"running"`
	Runs       int        `json:"runs"`
	Failures   int        `json:"failures"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	DurationMs int64      `json:"last_duration_ms,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

type entry struct {
	job     Job
	running atomic.Bool

	mu     sync.Mutex
	status JobStatus
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
	now  func() time.Time

	mu   sync.RWMutex
	jobs map[string]*entry
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
		now:  time.Now,
		jobs: make(map[string]*entry),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("scheduled", len(s.cron.Entries())).Int("registered", len(s.Jobs())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// Register adds a job that only runs when triggered with RunNow.
func (s *Scheduler) Register(job Job) error {
	if _, err := s.add(job, ""); err != nil {
		return err
	}
	s.log.Info().Str("job", job.Name()).Msg("Job registered for manual runs")
	return nil
}

// AddJob registers a job and runs it on a cron schedule with seconds.
// Schedule examples:
//   - "0 0 * * * *"         - hourly
//   - "0 30 22 * * MON-FRI" - 22:30 on weekdays
//   - "@every 30s"          - every 30 seconds
//
// A tick that arrives while the previous run is still going is skipped.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	e, err := s.add(job, schedule)
	if err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(e); errors.Is(err, ErrJobRunning) {
			s.log.Warn().Str("job", job.Name()).Msg("Skipping tick, previous run still in progress")
		}
	}); err != nil {
		s.remove(job.Name())
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a registered job immediately (outside schedule)
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.run(e)
}

// Jobs returns the status of every registered job ordered by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		e.mu.Lock()
		st := e.status
		e.mu.Unlock()
		st.Running = e.running.Load()
		out = append(out, st)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) add(job Job, schedule string) (*entry, error) {
	name := job.Name()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return nil, fmt.Errorf("job %s is already registered", name)
	}
	e := &entry{job: job, status: JobStatus{Name: name, Schedule: schedule}}
	s.jobs[name] = e
	return e, nil
}

func (s *Scheduler) remove(name string) {
	s.mu.Lock()
	delete(s.jobs, name)
	s.mu.Unlock()
}

func (s *Scheduler) run(e *entry) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrJobRunning, e.job.Name())
	}
	defer e.running.Store(false)

	log := s.log.With().Str("job", e.job.Name()).Logger()
	log.Debug().Msg("Running job")

	start := s.now()
	err := e.job.Run()
	elapsed := s.now().Sub(start)

	e.mu.Lock()
	e.status.Runs++
	e.status.LastRun = &start
	e.status.DurationMs = elapsed.Milliseconds()
	e.status.LastError = ""
	if err != nil {
		e.status.Failures++
		e.status.LastError = err.Error()
	}
	e.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Dur("duration", elapsed).Msg("Job failed")
		return err
	}
	log.Debug().Dur("duration", elapsed).Msg("Job completed")
	return nil
}
