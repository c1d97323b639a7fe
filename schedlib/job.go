package schedlib

// JobState is a type which indicates where a job is in its scheduling lifecycle.
// Jobs only ever move forward: NotSpawned -> Running -> (Ready <-> Running) -> Finished.
type JobState uint8

const (
	// NotSpawned says that no worker process exists for the job yet.
	NotSpawned JobState = iota

	// Running indicates that the job owns the (single, simulated) CPU.
	Running

	// Ready indicates that the job has a worker which is currently paused by the scheduler.
	Ready

	// Finished indicates that the job consumed its whole burst and its worker was terminated.
	Finished
)

func (s JobState) String() string {
	return [...]string{"NotSpawned", "Running", "Ready", "Finished"}[s]
}

// Job is a struct which holds information about a job in the scheduler's job table.
type Job struct {
	// ID is the external job identifier from the workload file.
	ID int

	// Arrival is the tick at which the job becomes eligible to run.
	Arrival int

	// Burst is the total number of ticks the job needs. It never changes.
	Burst int

	// Remaining is the number of ticks still owed to the job. It only decreases
	// while the job is running, and never drops below zero.
	Remaining int

	// State is the scheduling state of the job.
	State JobState

	// PID is the process ID of the worker bound to this job. Zero means that the
	// worker has not been spawned yet.
	PID int

	// StartedAt is the tick at which the job was first selected, or -1.
	StartedAt int

	// FinishedAt is the tick at which the job finished, or -1.
	FinishedAt int
}

// Finished reports whether the job has completed.
func (j Job) Finished() bool {
	return j.State == Finished
}

// Spawned reports whether a worker process has been bound to the job.
func (j Job) Spawned() bool {
	return j.State != NotSpawned
}

// newJob returns a job which has not been spawned yet.
func newJob(id, arrival, burst int) Job {
	return Job{
		ID:         id,
		Arrival:    arrival,
		Burst:      burst,
		Remaining:  burst,
		State:      NotSpawned,
		StartedAt:  -1,
		FinishedAt: -1,
	}
}
