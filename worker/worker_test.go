package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// syncBuffer is a bytes.Buffer safe to read while the worker writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestIsPrime(t *testing.T) {
	primes := []uint64{2, 3, 5, 7, 11, 97, 7919, 1_000_000_007}
	for _, p := range primes {
		assert.True(t, IsPrime(p), "%d", p)
	}
	composites := []uint64{0, 1, 4, 9, 15, 7917, 1_000_000_001}
	for _, c := range composites {
		assert.False(t, IsPrime(c), "%d", c)
	}
}

func TestSearchKeepsProgress(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewSearch(1_000_000_000)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	require.Eventually(t, func() bool { return s.Highest() != 0 }, 5*time.Second, time.Millisecond)
	cancel()
	<-done

	first := s.Highest()
	assert.True(t, IsPrime(first))
	assert.GreaterOrEqual(t, first, uint64(1_000_000_000))

	// A second run continues upward instead of starting over.
	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.Run(ctx)
	assert.GreaterOrEqual(t, s.Highest(), first)
}

func TestRandomStartRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := randomStart()
		require.GreaterOrEqual(t, v, uint64(1_000_000_000))
		require.LessOrEqual(t, v, uint64(9_999_999_999))
	}
}

func TestRunLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	out := &syncBuffer{}
	sigs := make(chan os.Signal, 1)

	errc := make(chan error, 1)
	go func() {
		errc <- Run(context.Background(), Config{
			ProcNum: 7,
			Out:     out,
			Signals: sigs,
			Start:   1_000_000_000,
		})
	}()

	pid := os.Getpid()
	sigs <- syscall.SIGTSTP
	sigs <- syscall.SIGCONT
	sigs <- syscall.SIGTERM

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop on SIGTERM")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, fmt.Sprintf("CHILD START p=7 pid=%d rand=1000000000", pid), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], fmt.Sprintf("CHILD SUSPEND p=7 pid=%d highest=", pid)), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], fmt.Sprintf("CHILD RESUME p=7 pid=%d highest=", pid)), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], fmt.Sprintf("CHILD END p=7 pid=%d highest=", pid)), lines[3])
}

func TestRunCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Run(ctx, Config{
		ProcNum: 1,
		Out:     &syncBuffer{},
		Signals: make(chan os.Signal),
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunIncompleteConfig(t *testing.T) {
	assert.Error(t, Run(context.Background(), Config{ProcNum: 1}))
}
