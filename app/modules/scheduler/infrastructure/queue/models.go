package schedulerqueue

import "time"

// QueueDigest is the dedicated single-worker queue digest runs execute on.
const QueueDigest = "digest"

// Job triggers.
const (
	TriggerPeriodic = "periodic"
	TriggerManual   = "manual"
)

// DigestRunJob runs the full roster sync and delivers the report.
type DigestRunJob struct {
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}

// Kind returns the job type identifier for River
func (DigestRunJob) Kind() string { return "digest_run" }

// JobInfo is a snapshot of a queued digest job.
type JobInfo struct {
	ID          int64     `json:"id"`
	State       string    `json:"state"`
	Trigger     string    `json:"trigger"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Attempt     int       `json:"attempt"`
}
