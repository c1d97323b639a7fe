package schedlib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// recordSink keeps every emitted event.
type recordSink struct {
	events []Event
}

func (r *recordSink) Emit(e Event) {
	r.events = append(r.events, e)
}

func (r *recordSink) lines() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.String())
	}
	return out
}

// fakeLauncher hands out fakeHandles and records every control action, in order,
// as "<action> p=<id>".
type fakeLauncher struct {
	actions   []string
	handles   map[int]*fakeHandle
	launchErr error
	pauseErr  error
	closed    bool
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{handles: make(map[int]*fakeHandle)}
}

func (l *fakeLauncher) Launch(_ context.Context, jobID int) (Handle, error) {
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	if _, dup := l.handles[jobID]; dup {
		return nil, fmt.Errorf("job %d launched twice", jobID)
	}
	h := &fakeHandle{l: l, id: jobID, pid: 1000 + jobID, done: make(chan struct{})}
	l.handles[jobID] = h
	l.record("launch", jobID)
	return h, nil
}

func (l *fakeLauncher) Close() error {
	l.closed = true
	return nil
}

func (l *fakeLauncher) record(action string, id int) {
	l.actions = append(l.actions, fmt.Sprintf("%s p=%d", action, id))
}

// runnable returns the ids whose fake worker is currently allowed to run.
func (l *fakeLauncher) runnable() []int {
	var out []int
	for id, h := range l.handles {
		if h.running {
			out = append(out, id)
		}
	}
	return out
}

type fakeHandle struct {
	l       *fakeLauncher
	id      int
	pid     int
	running bool
	dead    bool
	done    chan struct{}
}

func (h *fakeHandle) PID() int { return h.pid }

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Pause() error {
	if h.l.pauseErr != nil {
		return h.l.pauseErr
	}
	if h.dead {
		return errors.New("paused a dead worker")
	}
	h.running = false
	h.l.record("pause", h.id)
	return nil
}

func (h *fakeHandle) Resume() error {
	if h.dead {
		return errors.New("resumed a dead worker")
	}
	h.running = true
	h.l.record("resume", h.id)
	return nil
}

func (h *fakeHandle) Terminate() error {
	if h.dead {
		return errors.New("terminated a dead worker")
	}
	h.running = false
	h.dead = true
	close(h.done)
	h.l.record("terminate", h.id)
	return nil
}

func (h *fakeHandle) Kill() error {
	if h.dead {
		return errors.New("killed a dead worker")
	}
	h.running = false
	h.dead = true
	close(h.done)
	h.l.record("kill", h.id)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// jobsOf builds a job table from (id, arrival, burst) triples.
func jobsOf(defs ...[3]int) []Job {
	out := make([]Job, 0, len(defs))
	for _, d := range defs {
		out = append(out, newJob(d[0], d[1], d[2]))
	}
	return out
}
