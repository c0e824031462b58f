package model

import "time"

// PublishRequest is the input for a graph platform (Instagram) publish.
type PublishRequest struct {
	OwnerID     string
	AccessToken string
	MediaURL    string // must be publicly reachable, the platform fetches it
	Caption     string
}

// UploadRequest is the input for a hosting platform (YouTube) upload.
type UploadRequest struct {
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	SourceURL     string
	Title         string
	Description   string
	PrivacyStatus string // public, unlisted, private
	DailyLimit    int
}

const (
	DefaultDailyLimit    = 6
	DefaultPrivacyStatus = "unlisted"
)

// ContainerStatus is the status_code of a graph media container.
type ContainerStatus string

const (
	ContainerInProgress ContainerStatus = "IN_PROGRESS"
	ContainerFinished   ContainerStatus = "FINISHED"
	ContainerError      ContainerStatus = "ERROR"
	ContainerExpired    ContainerStatus = "EXPIRED"
	ContainerPublished  ContainerStatus = "PUBLISHED"
)

// PublishResult is the normalized outcome of a publish or upload.
// Skipped means the daily quota gate declined the attempt; it is not a failure.
type PublishResult struct {
	OK      bool   `json:"ok"`
	ID      string `json:"id,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is a queued post waiting for the scheduler.
type Job struct {
	ID          string                   `json:"id"`
	SourceURL   string                   `json:"source_url"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Caption     string                   `json:"caption"`
	Platforms   []string                 `json:"platforms"`
	Remaining   []string                 `json:"remaining"`
	Status      JobStatus                `json:"status"`
	Results     map[string]PublishResult `json:"results,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

type JobsIndex struct {
	UpdatedAt time.Time `json:"updated_at"`
	Items     []Job     `json:"items"`
}
