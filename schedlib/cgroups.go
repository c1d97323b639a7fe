package schedlib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// TODO: Verify that cgroup-v2 is mounted at cgroup2MountRoot before creating anything.

// Constants for cgroup creation.
const (
	// cgroup2MountRoot is the main system mountpoint of cgroup-v2.
	cgroup2MountRoot = "/sys/fs/cgroup"

	// cgroupParentDir is the root of the hierarchy under which one directory per
	// scheduling run, and beneath it one directory per job, is created.
	cgroupParentDir = "srtfsched"

	// cgroupFreezeFilename is the cgroup file which freezes ("1") or thaws ("0")
	// every process in the cgroup. Frozen processes keep their memory and consume no CPU.
	cgroupFreezeFilename = "cgroup.freeze"

	// cgroupKillFilename is the name of the cgroup file which, when 1 is written to it, will
	// terminate all processes (including any spawned child processes) in that cgroup.
	// It works on frozen cgroups too.
	cgroupKillFilename = "cgroup.kill"

	// cgroupProcsFilename lists the PIDs of the processes in a cgroup.
	cgroupProcsFilename = "cgroup.procs"
)

// Polling used while waiting for a killed cgroup to drain.
const (
	drainSleep  = 5 * time.Millisecond
	drainCycles = 200
)

// CgroupLauncher spawns every worker directly into its own cgroup-v2 directory and
// controls it through the cgroup freezer instead of signals. It requires root.
type CgroupLauncher struct {
	cmd    WorkerCommand
	runDir string
	log    *slog.Logger
}

// NewCgroupLauncher sets up the cgroup directory for this run. The hierarchy is:
//
//	cgroup2MountRoot -> cgroupParentDir -> <runID> -> p<jobID>
func NewCgroupLauncher(wc WorkerCommand, logger *slog.Logger) (*CgroupLauncher, error) {
	if wc.Path == "" {
		return nil, errors.New("cannot create launcher, worker path is empty")
	}
	if wc.RunID == "" || strings.TrimSpace(wc.RunID) == "" {
		return nil, errors.New("cannot create cgroup launcher, run ID is empty")
	}

	runDir, err := setupRunCgroup(wc.RunID, logger)
	if err != nil {
		return nil, fmt.Errorf("cannot create cgroup launcher: %w", err)
	}

	return &CgroupLauncher{cmd: wc, runDir: runDir, log: logger}, nil
}

// setupRunCgroup creates the per-run cgroup directory and returns its path.
func setupRunCgroup(runID string, logger *slog.Logger) (string, error) {
	cpdPath := filepath.Join(cgroup2MountRoot, cgroupParentDir)
	logger.Info("setting up cgroup hierarchy", "path", cpdPath)
	err := os.MkdirAll(cpdPath, 0755) // We use MkdirAll to not error out if it exists
	if err != nil {
		return "", fmt.Errorf("failed to create parent cgroup path %q: %w", cpdPath, err)
	}

	runDir := filepath.Join(cpdPath, runID)
	err = os.Mkdir(runDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create run cgroup %q: %w", runDir, err)
	}

	info, err := os.Stat(filepath.Join(runDir, cgroupFreezeFilename))
	if err != nil || info.IsDir() {
		_ = syscall.Rmdir(runDir)
		return "", fmt.Errorf("cgroup %q has no usable %s file (is this cgroup-v2?)", runDir, cgroupFreezeFilename)
	}

	return runDir, nil
}

// Launch implements Launcher.
func (l *CgroupLauncher) Launch(ctx context.Context, jobID int) (Handle, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	jcPath := filepath.Join(l.runDir, fmt.Sprintf("p%d", jobID))
	err := os.Mkdir(jcPath, 0755) // The run directory must already exist, and the job directory shouldn't
	if err != nil {
		return nil, fmt.Errorf("failed to create job cgroup for job %d: %w", jobID, err)
	}

	// Get a file descriptor handle to the job's cgroup path
	cgfd, err := syscall.Open(jcPath, syscall.O_DIRECTORY, 0)
	if err != nil {
		_ = syscall.Rmdir(jcPath)
		return nil, fmt.Errorf("failed to get fd handle to job cgroup dir %q: %w", jcPath, err)
	}
	defer syscall.Close(cgfd)

	p, err := spawnWorker(l.cmd, jobID, &syscall.SysProcAttr{
		UseCgroupFD: true,
		CgroupFD:    cgfd,
	}, l.log)
	if err != nil {
		_ = syscall.Rmdir(jcPath)
		return nil, err
	}

	return &cgroupProcess{process: p, path: jcPath}, nil
}

// Close kills anything left in the run's cgroups and removes the directories.
func (l *CgroupLauncher) Close() error {
	entries, err := os.ReadDir(l.runDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cannot tear down cgroups: %w", err)
	}

	// os.Remove() and os.RemoveAll() error out on cgroup dirs because of the interface
	// files, so every job dir is drained and then removed with rmdir.
	var errList []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := removeCgroup(filepath.Join(l.runDir, entry.Name())); err != nil {
			errList = append(errList, err)
		}
	}
	if err := syscall.Rmdir(l.runDir); err != nil {
		errList = append(errList, fmt.Errorf("failed to remove run cgroup dir %q: %w", l.runDir, err))
	}

	if len(errList) > 0 {
		return fmt.Errorf("error removing one or more cgroup dirs: %w", errors.Join(errList...))
	}

	l.log.Info("removed cgroup hierarchy", "path", l.runDir)
	return nil
}

// removeCgroup kills every process in dir, waits for it to empty and removes it.
func removeCgroup(dir string) error {
	err := writeCgroupFile(dir, cgroupKillFilename, "1")
	if err != nil {
		// No kill file means that someone already took care of it for us.
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	procsFile := filepath.Join(dir, cgroupProcsFilename)
	for i := 0; ; i++ {
		data, err := os.ReadFile(procsFile)
		if err != nil || strings.TrimSpace(string(data)) == "" {
			break
		}
		if i >= drainCycles {
			return fmt.Errorf("cgroup %q still populated after %d cycles of %v", dir, drainCycles, drainSleep)
		}
		time.Sleep(drainSleep)
	}

	if err := syscall.Rmdir(dir); err != nil {
		return fmt.Errorf("failed to remove cgroup dir %q: %w", dir, err)
	}
	return nil
}

func writeCgroupFile(dir, name, value string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return fmt.Errorf("error writing %q to %q: %w", value, path, err)
	}
	return nil
}

// cgroupProcess is a worker confined to its own cgroup.
type cgroupProcess struct {
	*process
	path string
}

// Pause freezes the job's cgroup. The worker is not told; it simply stops being scheduled.
func (c *cgroupProcess) Pause() error {
	return writeCgroupFile(c.path, cgroupFreezeFilename, "1")
}

func (c *cgroupProcess) Resume() error {
	return writeCgroupFile(c.path, cgroupFreezeFilename, "0")
}

func (c *cgroupProcess) Terminate() error {
	return writeCgroupFile(c.path, cgroupKillFilename, "1")
}

func (c *cgroupProcess) Kill() error {
	return writeCgroupFile(c.path, cgroupKillFilename, "1")
}
