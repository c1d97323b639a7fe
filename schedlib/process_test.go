package schedlib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeWorkerScript writes a stand-in worker which prints its arguments and then
// becomes a long sleep, so job-control signals act on it with their default effect.
func fakeWorkerScript(t *testing.T) string {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("process control tests need Linux")
	}
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho \"args: $@\"\nexec sleep 30\n"), 0755))
	return path
}

// procState returns the one-letter state of pid from /proc/<pid>/stat.
func procState(pid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return ""
	}
	s := string(data)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return ""
	}
	return s[i+2 : i+3]
}

func waitDone(t *testing.T, h Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("worker pid %d was not reaped", h.PID())
	}
}

func TestSignalLauncherLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	outDir := t.TempDir()
	l, err := NewSignalLauncher(WorkerCommand{
		Path:      fakeWorkerScript(t),
		OutputDir: outDir,
		RunID:     "testrun",
	}, discardLogger())
	require.NoError(t, err)
	defer l.Close()

	h, err := l.Launch(context.Background(), 3)
	require.NoError(t, err)
	require.Positive(t, h.PID())

	logFile := filepath.Join(outDir, "testrun-p3.log")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logFile)
		return err == nil && strings.Contains(string(data), "args: -p 3")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Pause())
	require.Eventually(t, func() bool { return procState(h.PID()) == "T" }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Resume())
	require.Eventually(t, func() bool {
		st := procState(h.PID())
		return st == "S" || st == "R"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Terminate())
	waitDone(t, h)
}

func TestSignalLauncherKillWhilePaused(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, err := NewSignalLauncher(WorkerCommand{Path: fakeWorkerScript(t), OutputDir: t.TempDir(), RunID: "r"}, discardLogger())
	require.NoError(t, err)

	h, err := l.Launch(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, h.Pause())
	require.Eventually(t, func() bool { return procState(h.PID()) == "T" }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Kill())
	waitDone(t, h)

	// Signalling a reaped worker reports an error rather than hitting a recycled PID.
	assert.Error(t, h.Resume())
}

func TestSignalLauncherFailures(t *testing.T) {
	_, err := NewSignalLauncher(WorkerCommand{}, discardLogger())
	assert.Error(t, err)

	l, err := NewSignalLauncher(WorkerCommand{Path: filepath.Join(t.TempDir(), "nope")}, discardLogger())
	require.NoError(t, err)

	_, err = l.Launch(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot launch worker")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Launch(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSchedulerWithRealWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, err := NewSignalLauncher(WorkerCommand{Path: fakeWorkerScript(t), OutputDir: t.TempDir(), RunID: "real"}, discardLogger())
	require.NoError(t, err)

	sink := &recordSink{}
	s, err := NewScheduler(jobsOf([3]int{1, 0, 3}, [3]int{2, 1, 1}), l, sink, discardLogger())
	require.NoError(t, err)

	require.NoError(t, RunClock(context.Background(), 20*time.Millisecond, s.Tick))

	// t=1 START p=2, t=2 FINISH p=2 START p=1, t=3..4 CONTINUE, t=5 FINISH p=1, Complete!
	require.Len(t, sink.events, 7)
	pids := make(map[int]int)
	for _, e := range sink.events {
		if e.Kind == EventStart {
			pids[e.JobID] = e.PID
		}
		if e.Kind == EventFinish {
			assert.Equal(t, pids[e.JobID], e.PID, "job %d finished under a different pid", e.JobID)
		}
	}
	assert.Len(t, pids, 2)

	// Both workers were sent SIGTERM; wait until they have been reaped.
	for _, h := range s.ctrl.handles {
		waitDone(t, h)
	}
}
