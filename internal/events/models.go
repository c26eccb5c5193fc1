package events

// JobEvent describes one lifecycle step of a job.
type JobEvent struct {
	JobID    string `json:"job_id"`
	TenantID string `json:"tenant_id"`
	State    string `json:"state"`
	Detail   string `json:"detail,omitempty"`
}
