package schedlib

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

// NewRunID returns a fresh identifier for a scheduling run. It names the run's
// cgroup directory and worker output files, and tags its log lines.
func NewRunID() (string, error) {
	ks, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed generating KSUID: %w", err)
	}
	return ks.String(), nil
}
