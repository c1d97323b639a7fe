package schedlib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
)

// Handle controls one spawned worker process. Every method is fire-and-forget:
// it delivers the request and does not wait for the worker to act on it.
type Handle interface {
	// PID is the OS process ID of the worker.
	PID() int

	// Pause stops the worker from consuming CPU without losing its progress.
	Pause() error

	// Resume lets a paused (or freshly spawned) worker run.
	Resume() error

	// Terminate asks the worker to exit for good.
	Terminate() error

	// Kill ends the worker even if it is paused. Used when aborting a run.
	Kill() error

	// Done is closed once the worker process has been reaped.
	Done() <-chan struct{}
}

// Launcher creates the OS-level worker bound to a job.
type Launcher interface {
	Launch(ctx context.Context, jobID int) (Handle, error)
	Close() error
}

// WorkerCommand describes how a worker process is started.
type WorkerCommand struct {
	// Path is the worker executable.
	Path string

	// OutputDir, if set, receives one "<runID>-p<jobID>.log" file per worker.
	// Otherwise workers share the scheduler's stdout and stderr.
	OutputDir string

	// RunID names this scheduling run.
	RunID string
}

// args returns the worker command line for jobID.
func (wc WorkerCommand) args(jobID int) []string {
	return []string{"-p", strconv.Itoa(jobID)}
}

// SignalLauncher spawns workers as plain child processes and controls them with
// job-control signals.
type SignalLauncher struct {
	cmd WorkerCommand
	log *slog.Logger
}

// NewSignalLauncher returns a launcher for the "signal" backend.
func NewSignalLauncher(wc WorkerCommand, logger *slog.Logger) (*SignalLauncher, error) {
	if wc.Path == "" {
		return nil, errors.New("cannot create launcher, worker path is empty")
	}
	return &SignalLauncher{cmd: wc, log: logger}, nil
}

// Launch implements Launcher.
func (l *SignalLauncher) Launch(ctx context.Context, jobID int) (Handle, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return spawnWorker(l.cmd, jobID, nil, l.log)
}

// Close implements Launcher. There is nothing to tear down for plain processes.
func (l *SignalLauncher) Close() error {
	return nil
}

// process is a reaped child process.
type process struct {
	proc *os.Process
	done chan struct{}
}

// spawnWorker starts the worker for jobID and threads off a goroutine which
// waits for it and logs how it ended.
func spawnWorker(wc WorkerCommand, jobID int, attr *syscall.SysProcAttr, logger *slog.Logger) (*process, error) {
	cmd := exec.Command(wc.Path, wc.args(jobID)...)
	cmd.SysProcAttr = attr

	var out io.Closer
	if wc.OutputDir != "" {
		name := filepath.Join(wc.OutputDir, fmt.Sprintf("%s-p%d.log", wc.RunID, jobID))
		f, err := os.Create(name)
		if err != nil {
			return nil, fmt.Errorf("cannot launch worker for job %d, failed to create output file %q: %w", jobID, name, err)
		}
		out = f
		cmd.Stdout = f
		cmd.Stderr = f
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		if out != nil {
			out.Close()
		}
		return nil, fmt.Errorf("cannot launch worker %q for job %d: %w", wc.Path, jobID, err)
	}

	p := &process{proc: cmd.Process, done: make(chan struct{})}
	go p.reap(cmd, jobID, out, logger)

	return p, nil
}

// reap waits for the worker to exit and records how it went.
func (p *process) reap(cmd *exec.Cmd, jobID int, out io.Closer, logger *slog.Logger) {
	defer close(p.done)
	if out != nil {
		defer out.Close()
	}

	err := cmd.Wait()
	var exiterr *exec.ExitError
	if err != nil && !errors.As(err, &exiterr) {
		logger.Warn("worker wait failed", "p", jobID, "pid", p.proc.Pid, "err", err)
		return
	}

	exitcode := cmd.ProcessState.ExitCode()
	sigStr := ""
	if exitcode == -1 {
		// -1 means the process was ended by a signal.
		if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			sigStr = ws.Signal().String()
		}
	}
	logger.Debug("worker exited", "p", jobID, "pid", p.proc.Pid, "exitcode", exitcode, "signal", sigStr)
}

func (p *process) PID() int {
	return p.proc.Pid
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) signal(sig syscall.Signal) error {
	if err := p.proc.Signal(sig); err != nil {
		return fmt.Errorf("cannot deliver %s to pid %d: %w", sig, p.proc.Pid, err)
	}
	return nil
}

// Pause sends SIGTSTP, so the worker can report the suspension, and then
// SIGSTOP, which the worker cannot catch. The stop does not depend on the worker.
// A SIGTSTP still queued when SIGCONT arrives is discarded by the kernel, so the
// SUSPEND report is best effort.
func (p *process) Pause() error {
	if err := p.signal(syscall.SIGTSTP); err != nil {
		return err
	}
	return p.signal(syscall.SIGSTOP)
}

func (p *process) Resume() error {
	return p.signal(syscall.SIGCONT)
}

// Terminate sends SIGTERM followed by SIGCONT, so a stopped worker still gets to
// handle the SIGTERM and exit.
func (p *process) Terminate() error {
	if err := p.signal(syscall.SIGTERM); err != nil {
		return err
	}
	return p.signal(syscall.SIGCONT)
}

func (p *process) Kill() error {
	return p.signal(syscall.SIGKILL)
}
