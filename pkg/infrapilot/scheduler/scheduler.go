// Package scheduler runs recurring jobs on cron expressions. InfraPilot
// uses it for the scheduled infrastructure report; the job model stays
// generic so other periodic work can hang off it.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// JobFunc is the work a job performs when its schedule fires.
type JobFunc func(ctx context.Context)

// Job is one scheduled task.
type Job struct {
	// ID is the unique job identifier.
	ID string

	// Name describes the job in logs.
	Name string

	// Schedule is the cron expression (5-field, or @daily etc.).
	Schedule string

	// LastRunAt is the last execution timestamp.
	LastRunAt time.Time

	// RunCount tracks how many times the job has executed.
	RunCount int
}

// Scheduler manages cron-driven jobs.
type Scheduler struct {
	cron *cron.Cron

	// jobs stores registered jobs indexed by ID.
	jobs map[string]*Job

	// cronIDs maps job IDs to cron entry IDs for removal.
	cronIDs map[string]cron.EntryID

	// running tracks in-flight jobs so a schedule firing while the
	// previous run is still active does not start a duplicate.
	running map[string]bool

	funcs map[string]JobFunc

	logger *slog.Logger
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Jobs are registered with Add before Start.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		jobs:    make(map[string]*Job),
		cronIDs: make(map[string]cron.EntryID),
		running: make(map[string]bool),
		funcs:   make(map[string]JobFunc),
		logger:  logger.With("component", "scheduler"),
	}
}

// Add registers a job and returns its generated ID.
func (s *Scheduler) Add(name, schedule string, fn JobFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	job := &Job{ID: id, Name: name, Schedule: schedule}

	entryID, err := s.cron.AddFunc(schedule, func() { s.fire(id) })
	if err != nil {
		return "", fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s.jobs[id] = job
	s.cronIDs[id] = entryID
	s.funcs[id] = fn

	s.logger.Info("job registered", "job_id", id, "name", name, "schedule", schedule)
	return id, nil
}

// Remove deletes a job by ID.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.cronIDs[id]; ok {
		s.cron.Remove(entryID)
	}
	delete(s.jobs, id)
	delete(s.cronIDs, id)
	delete(s.funcs, id)
}

// Jobs returns a snapshot of the registered jobs.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}

// Start begins firing schedules.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop halts the scheduler and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}

// fire executes one job, skipping if the previous run is still active.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || s.running[id] {
		if ok {
			s.logger.Warn("job still running, skipping this firing", "job_id", id, "name", job.Name)
		}
		s.mu.Unlock()
		return
	}
	s.running[id] = true
	fn := s.funcs[id]
	s.mu.Unlock()

	start := time.Now()
	s.logger.Info("job firing", "job_id", id, "name", job.Name)

	fn(s.ctx)

	s.mu.Lock()
	job.LastRunAt = start
	job.RunCount++
	delete(s.running, id)
	s.mu.Unlock()

	s.logger.Info("job finished",
		"job_id", id, "name", job.Name,
		"duration_ms", time.Since(start).Milliseconds())
}
