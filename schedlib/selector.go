package schedlib

// SelectNext returns the index of the job that should own the CPU at tick now,
// or -1 when no job is ready. A job is ready once it has arrived and until it
// finishes. Among ready jobs the least remaining work wins; ties go to the
// earlier arrival, then to the lower id, so the choice never depends on table order.
func SelectNext(jobs []Job, now int) int {
	best := -1
	for i := range jobs {
		if jobs[i].Finished() || jobs[i].Arrival > now {
			continue
		}
		if best == -1 || before(jobs[i], jobs[best]) {
			best = i
		}
	}
	return best
}

// before reports whether a ranks strictly ahead of b.
func before(a, b Job) bool {
	if a.Remaining != b.Remaining {
		return a.Remaining < b.Remaining
	}
	if a.Arrival != b.Arrival {
		return a.Arrival < b.Arrival
	}
	return a.ID < b.ID
}
