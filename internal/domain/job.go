package domain

// JobStatus enumerates the provider-neutral job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further polling should happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Job is one remote try-on execution. Raw holds the provider's final status
// payload and is returned for diagnostics only.
type Job struct {
	ID       string         `json:"job_id"`
	Provider string         `json:"provider"`
	Status   JobStatus      `json:"status"`
	Outputs  []string       `json:"output"`
	Raw      map[string]any `json:"raw"`
}
