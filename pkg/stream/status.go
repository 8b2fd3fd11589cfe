package stream

// JobStatus is the wire value for a matching job's execution status.
type JobStatus string

// Job status wire values.
const (
	StatusQueued   JobStatus = "queued"
	StatusRunning  JobStatus = "running"
	StatusComplete JobStatus = "complete"
	StatusFailed   JobStatus = "failed"
)

// statusLabels maps wire values to the human labels used in titles and badges.
var statusLabels = map[JobStatus]string{
	StatusQueued:   "Queued",
	StatusRunning:  "Running",
	StatusComplete: "Complete",
	StatusFailed:   "Failed",
}

// Label returns the human-readable label for the status. Unknown wire values
// are returned verbatim so an unexpected status still renders.
func (s JobStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Terminal reports whether the job performs no further work in this status.
func (s JobStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// StatusSnapshot is the latest known execution status of a job as reported by
// the live stream. It is overwritten each time a status event arrives and is
// not retained across sessions.
type StatusSnapshot struct {
	Status       JobStatus `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    string    `json:"timestamp,omitempty"`
}
