package schedlib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Controller issues start/resume/preempt/finish actions against jobs' workers and
// announces each one as an Event. It keeps the handle for every spawned job.
type Controller struct {
	launcher Launcher
	sink     EventSink
	log      *slog.Logger

	// handles maps a job table index to its worker. An entry is written once,
	// when the job is first selected.
	handles map[int]Handle
}

// NewController returns a Controller which spawns workers with launcher.
func NewController(launcher Launcher, sink EventSink, logger *slog.Logger) *Controller {
	return &Controller{
		launcher: launcher,
		sink:     sink,
		log:      logger,
		handles:  make(map[int]Handle),
	}
}

// EnsureStarted spawns the worker for jobs[idx] if it has none yet, then lets it run.
// It emits START the first time and CONTINUE afterwards.
func (c *Controller) EnsureStarted(ctx context.Context, now int, jobs []Job, idx int) error {
	job := &jobs[idx]
	kind := EventContinue

	h, ok := c.handles[idx]
	if !ok {
		var err error
		h, err = c.launcher.Launch(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("cannot start job %d: %w", job.ID, err)
		}
		c.handles[idx] = h
		job.PID = h.PID()
		job.StartedAt = now
		kind = EventStart
		c.log.Debug("spawned worker", "p", job.ID, "pid", job.PID)
	}

	job.State = Running
	c.sink.Emit(Event{Tick: now, Kind: kind, JobID: job.ID, PID: job.PID, Remaining: job.Remaining})

	if err := h.Resume(); err != nil {
		return fmt.Errorf("cannot resume job %d: %w", job.ID, err)
	}
	return nil
}

// Preempt pauses the running job jobs[idx].
func (c *Controller) Preempt(now int, jobs []Job, idx int) error {
	job := &jobs[idx]
	h, ok := c.handles[idx]
	if !ok {
		return fmt.Errorf("cannot preempt job %d, it has no worker", job.ID)
	}

	job.State = Ready
	c.sink.Emit(Event{Tick: now, Kind: EventPreempt, JobID: job.ID, PID: job.PID, Remaining: job.Remaining})

	if err := h.Pause(); err != nil {
		return fmt.Errorf("cannot preempt job %d: %w", job.ID, err)
	}
	return nil
}

// Finish terminates the worker of jobs[idx], whose burst is used up, and marks it finished.
func (c *Controller) Finish(now int, jobs []Job, idx int) error {
	job := &jobs[idx]
	h, ok := c.handles[idx]
	if !ok {
		return fmt.Errorf("cannot finish job %d, it has no worker", job.ID)
	}

	c.sink.Emit(Event{Tick: now, Kind: EventFinish, JobID: job.ID, PID: job.PID})

	job.State = Finished
	job.FinishedAt = now
	if err := h.Terminate(); err != nil {
		return fmt.Errorf("cannot finish job %d: %w", job.ID, err)
	}
	return nil
}

// KillUnfinished kills the workers of all spawned jobs which have not finished,
// and returns the handles it signalled.
func (c *Controller) KillUnfinished(jobs []Job) []Handle {
	var killed []Handle
	for idx, h := range c.handles {
		if jobs[idx].Finished() {
			continue
		}
		if err := h.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			c.log.Warn("failed to kill worker", "p", jobs[idx].ID, "pid", h.PID(), "err", err)
			continue
		}
		killed = append(killed, h)
	}
	return killed
}
