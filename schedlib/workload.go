package schedlib

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultMaxJobs is the largest number of jobs a workload may hold unless configured otherwise.
const DefaultMaxJobs = 256

// maxRowLen bounds a workload row, newline included. Longer rows are dropped.
const maxRowLen = 4096

// Errors returned by the workload loader. They are wrapped, so use errors.Is().
var (
	ErrEmptyWorkload = errors.New("workload file is empty")
	ErrNoJobs        = errors.New("no jobs loaded (check input format)")
	ErrTooManyJobs   = errors.New("too many jobs")
)

// LoadWorkloadFile opens path and loads it with LoadWorkload.
func LoadWorkloadFile(path string, maxJobs int) ([]Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load workload: %w", err)
	}
	defer f.Close()

	jobs, err := LoadWorkload(f, maxJobs)
	if err != nil {
		return nil, fmt.Errorf("cannot load workload %q: %w", path, err)
	}
	return jobs, nil
}

// LoadWorkload reads job definitions from r. The first line is a header and is
// ignored. Every following line that is not blank and not a '#' comment should
// hold three integers: job id, arrival tick and burst length. Lines which do not
// parse, rows longer than maxRowLen and repeats of an id already loaded are
// skipped without complaint.
func LoadWorkload(r io.Reader, maxJobs int) ([]Job, error) {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}

	br := bufio.NewReaderSize(r, maxRowLen)
	if _, _, err := nextRow(br); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyWorkload
		}
		return nil, fmt.Errorf("failed reading header: %w", err)
	}

	var jobs []Job
	seen := make(map[int]struct{})
	for {
		row, ok, err := nextRow(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed reading jobs: %w", err)
		}
		if !ok {
			continue
		}

		id, arrival, burst, ok := parseJobLine(row)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		if len(jobs) >= maxJobs {
			return nil, fmt.Errorf("%w (max %d)", ErrTooManyJobs, maxJobs)
		}
		seen[id] = struct{}{}
		jobs = append(jobs, newJob(id, arrival, burst))
	}

	if len(jobs) == 0 {
		return nil, ErrNoJobs
	}
	return jobs, nil
}

// nextRow returns the next line of br without its newline. It returns io.EOF
// only once the input is exhausted. ok is false for a row that does not fit in
// br's buffer; such a row is consumed and dropped.
func nextRow(br *bufio.Reader) (row string, ok bool, err error) {
	line, err := br.ReadSlice('\n')
	switch {
	case err == nil:
		return string(line[:len(line)-1]), true, nil
	case errors.Is(err, io.EOF) && len(line) > 0:
		return string(line), true, nil
	case !errors.Is(err, bufio.ErrBufferFull):
		return "", false, err
	}

	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = br.ReadSlice('\n')
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	return "", false, nil
}

// parseJobLine extracts (id, arrival, burst) from a workload row. Fields after
// the third are ignored.
func parseJobLine(line string) (id, arrival, burst int, ok bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" || line[0] == '#' {
		return 0, 0, 0, false
	}

	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0, 0, 0, false
	}

	var vals [3]int
	for i := range vals {
		v, err := strconv.Atoi(fields[i])
		if err != nil {
			return 0, 0, 0, false
		}
		vals[i] = v
	}

	if vals[1] < 0 || vals[2] < 1 {
		return 0, 0, 0, false
	}
	return vals[0], vals[1], vals[2], true
}
