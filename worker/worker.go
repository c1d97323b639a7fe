// Package worker is the CPU-bound payload run by every scheduled job. It searches
// for ever larger primes until told to stop and reports job-control signals:
// SIGTSTP announces a suspension (the scheduler follows it with SIGSTOP), SIGCONT
// a resumption, and SIGTERM ends the worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// Config holds what a worker needs to run.
type Config struct {
	// ProcNum is the job id the worker stands in for.
	ProcNum int

	// Out receives the worker's lifecycle reports.
	Out io.Writer

	// Signals delivers SIGTSTP, SIGCONT and SIGTERM.
	Signals <-chan os.Signal

	// Start is the first candidate examined. Zero picks a random 10-digit number.
	Start uint64
}

// Search finds primes counting up from a starting point.
type Search struct {
	next    uint64
	highest atomic.Uint64
}

// NewSearch returns a search beginning at start.
func NewSearch(start uint64) *Search {
	return &Search{next: start}
}

// Highest returns the largest prime found so far, or 0.
func (s *Search) Highest() uint64 {
	return s.highest.Load()
}

// Run examines candidates until ctx is done. Calling Run again continues where
// the previous call left off.
func (s *Search) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if IsPrime(s.next) && s.next > s.highest.Load() {
			s.highest.Store(s.next)
		}
		s.next++
	}
}

// IsPrime reports whether n is prime, by trial division.
func IsPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := uint64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// randomStart returns a number in [1,000,000,000 .. 9,999,999,999].
func randomStart() uint64 {
	return 1_000_000_000 + uint64(rand.Int63n(9_000_000_000))
}

// Run starts the search and serves lifecycle signals until SIGTERM arrives or ctx
// is cancelled. A SIGTERM is a normal exit and returns nil.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Out == nil || cfg.Signals == nil {
		return errors.New("cannot run worker, incomplete config")
	}

	start := cfg.Start
	if start == 0 {
		start = randomStart()
	}
	pid := os.Getpid()
	report := func(what, field string, v uint64) {
		fmt.Fprintf(cfg.Out, "CHILD %s p=%d pid=%d %s=%d\n", what, cfg.ProcNum, pid, field, v)
	}

	report("START", "rand", start)

	search := NewSearch(start)
	sctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		search.Run(sctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-cfg.Signals:
			if !ok {
				return errors.New("signal channel closed")
			}
			switch sig {
			case syscall.SIGTSTP:
				// Only a report. The sender stops us with SIGSTOP.
				report("SUSPEND", "highest", search.Highest())
			case syscall.SIGCONT:
				report("RESUME", "highest", search.Highest())
			case syscall.SIGTERM:
				report("END", "highest", search.Highest())
				return nil
			}
		}
	}
}
