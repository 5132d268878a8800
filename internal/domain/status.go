package domain

import "time"

// JobStatus is the persisted state of a repository job.
type JobStatus string

// Job status values. Exactly one is current per repository; later writes win.
const (
	StatusSubmitted              JobStatus = "submitted"
	StatusCompleted              JobStatus = "completed"
	StatusFailed                 JobStatus = "failed"
	StatusFailedRepositoryDetail JobStatus = "failed-to-get-repository-details"
	StatusFailedClone            JobStatus = "failed-to-clone-repository"
)

// IsValid reports whether s is one of the known statuses.
func (s JobStatus) IsValid() bool {
	switch s {
	case StatusSubmitted, StatusCompleted, StatusFailed, StatusFailedRepositoryDetail, StatusFailedClone:
		return true
	}
	return false
}

// IsFailure reports whether s is any of the failure statuses.
func (s JobStatus) IsFailure() bool {
	switch s {
	case StatusFailed, StatusFailedRepositoryDetail, StatusFailedClone:
		return true
	}
	return false
}

// BlocksResubmission reports whether a job in this status must not be started again.
func (s JobStatus) BlocksResubmission() bool {
	return s == StatusSubmitted || s == StatusCompleted
}

// StatusRecord is the key-value record stored per repository.
type StatusRecord struct {
	Repository string    `json:"repository"`
	Status     JobStatus `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Commit     string    `json:"commit,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
