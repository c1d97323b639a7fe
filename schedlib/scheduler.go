package schedlib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Scheduler owns the job table and the simulated clock and advances both one
// tick at a time. It is not safe for concurrent use: all calls must come from
// the single goroutine driving the clock.
type Scheduler struct {
	jobs      []Job
	now       int
	running   int // index into jobs, -1 when the CPU is idle
	completed int

	ctrl *Controller
	sink EventSink
	log  *slog.Logger
}

// NewScheduler builds a scheduler over a copy of jobs.
func NewScheduler(jobs []Job, launcher Launcher, sink EventSink, logger *slog.Logger) (*Scheduler, error) {
	if len(jobs) == 0 {
		return nil, ErrNoJobs
	}
	if launcher == nil {
		return nil, errors.New("cannot create scheduler, launcher is nil")
	}
	if sink == nil {
		return nil, errors.New("cannot create scheduler, event sink is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	table := make([]Job, len(jobs))
	copy(table, jobs)

	return &Scheduler{
		jobs:    table,
		running: -1,
		ctrl:    NewController(launcher, sink, logger),
		sink:    sink,
		log:     logger,
	}, nil
}

// Tick advances simulated time by one unit: it charges the running job, finishes it
// if its burst is used up, stops when every job is done, and otherwise hands the CPU
// to the best ready job. It returns done=true once all jobs have finished. Any error
// means a worker could not be controlled and the run cannot continue.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	s.now++

	if s.running != -1 && !s.jobs[s.running].Finished() {
		job := &s.jobs[s.running]
		job.Remaining--
		if job.Remaining <= 0 {
			job.Remaining = 0
			if err := s.ctrl.Finish(s.now, s.jobs, s.running); err != nil {
				return false, err
			}
			s.completed++
			s.running = -1
		}
	}

	if s.completed == len(s.jobs) {
		s.sink.Emit(Event{Tick: s.now, Kind: EventComplete})
		return true, nil
	}

	best := SelectNext(s.jobs, s.now)
	if best == -1 {
		s.log.Debug("cpu idle", "t", s.now)
		return false, nil
	}

	// The unchanged running job is announced again on every tick.
	if best == s.running {
		job := s.jobs[best]
		s.sink.Emit(Event{Tick: s.now, Kind: EventContinue, JobID: job.ID, PID: job.PID, Remaining: job.Remaining})
		return false, nil
	}

	// Context switch. The old job is always paused before the new one may run.
	if s.running != -1 {
		if err := s.ctrl.Preempt(s.now, s.jobs, s.running); err != nil {
			return false, err
		}
	}
	s.running = best
	if err := s.ctrl.EnsureStarted(ctx, s.now, s.jobs, best); err != nil {
		return false, err
	}

	return false, nil
}

// Now returns the current tick.
func (s *Scheduler) Now() int {
	return s.now
}

// Completed returns the number of finished jobs.
func (s *Scheduler) Completed() int {
	return s.completed
}

// Running returns a copy of the running job, if any.
func (s *Scheduler) Running() (Job, bool) {
	if s.running == -1 {
		return Job{}, false
	}
	return s.jobs[s.running], true
}

// Snapshot returns a copy of the job table.
func (s *Scheduler) Snapshot() []Job {
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Shutdown kills every worker which was spawned but has not finished and waits,
// up to timeout, for them to be reaped. It is used when a run is aborted.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	killed := s.ctrl.KillUnfinished(s.jobs)
	if len(killed) == 0 {
		return
	}

	s.log.Info("killed unfinished workers", "count", len(killed))
	deadline := time.After(timeout)
	for _, h := range killed {
		select {
		case <-h.Done():
		case <-deadline:
			s.log.Warn("timed out waiting for workers to exit", "timeout", timeout)
			return
		}
	}
}

// JobSummary holds the per-job timing figures of a completed run, in ticks.
type JobSummary struct {
	ID         int
	Arrival    int
	Burst      int
	FirstRun   int
	Finish     int
	Turnaround int // Finish - Arrival
	Waiting    int // Turnaround - Burst
	Response   int // FirstRun - Arrival
}

// Summary returns timing figures for every finished job, in table order.
func (s *Scheduler) Summary() []JobSummary {
	var out []JobSummary
	for _, j := range s.jobs {
		if !j.Finished() {
			continue
		}
		turnaround := j.FinishedAt - j.Arrival
		out = append(out, JobSummary{
			ID:         j.ID,
			Arrival:    j.Arrival,
			Burst:      j.Burst,
			FirstRun:   j.StartedAt,
			Finish:     j.FinishedAt,
			Turnaround: turnaround,
			Waiting:    turnaround - j.Burst,
			Response:   j.StartedAt - j.Arrival,
		})
	}
	return out
}

// LogSummary writes the run's timing figures to the logger.
func (s *Scheduler) LogSummary() {
	sum := s.Summary()
	if len(sum) == 0 {
		return
	}

	var tt, wt, rt int
	for _, js := range sum {
		s.log.Info("job summary", "p", js.ID, "arrival", js.Arrival, "burst", js.Burst,
			"first_run", js.FirstRun, "finish", js.Finish,
			"turnaround", js.Turnaround, "waiting", js.Waiting, "response", js.Response)
		tt += js.Turnaround
		wt += js.Waiting
		rt += js.Response
	}
	n := float64(len(sum))
	s.log.Info("run summary", "jobs", len(sum), "ticks", s.now,
		"avg_turnaround", fmt.Sprintf("%.2f", float64(tt)/n),
		"avg_waiting", fmt.Sprintf("%.2f", float64(wt)/n),
		"avg_response", fmt.Sprintf("%.2f", float64(rt)/n))
}
