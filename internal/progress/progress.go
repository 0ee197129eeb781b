// Package progress tracks sync pipeline state with a TTL, so dashboards can
// poll a sync they kicked off and stale records clean themselves up.
package progress

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending               Status = "PENDING"
	StatusFetchingCourse        Status = "FETCHING_COURSE"
	StatusFetchingEnrollments   Status = "FETCHING_ENROLLMENTS"
	StatusFetchingUsers         Status = "FETCHING_USERS"
	StatusFetchingAssignments   Status = "FETCHING_ASSIGNMENTS"
	StatusFetchingSubmissions   Status = "FETCHING_SUBMISSIONS"
	StatusSavingData            Status = "SAVING_DATA"
	StatusProcessingSubmissions Status = "PROCESSING_SUBMISSIONS"
	StatusSyncingGroups         Status = "SYNCING_GROUPS"
	StatusCompleted             Status = "COMPLETED"
	StatusError                 Status = "ERROR"
)

// Terminal reports whether the sync is over, successfully or not.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

const DefaultTTL = time.Hour

// Record is the state of one course sync. Current never decreases; Total may
// grow as the pipeline discovers more work.
type Record struct {
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CourseStatus is the per-course slice of a batch record.
type CourseStatus struct {
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// BatchRecord aggregates a multi-course run. Courses is keyed by the Canvas
// course id rendered as a string.
type BatchRecord struct {
	Record
	Courses map[string]CourseStatus `json:"courses"`
}

// Tracker stores sync progress per (actor, course) and per (actor, batch).
// Get returns nil without error when nothing is tracked, which callers treat
// as "no sync running".
type Tracker interface {
	Start(ctx context.Context, actor string, courseID int64) error
	Update(ctx context.Context, actor string, courseID int64, current, total int, status Status, message string) error
	Get(ctx context.Context, actor string, courseID int64) (*Record, error)
	Complete(ctx context.Context, actor string, courseID int64, success bool, message, errMsg string) error
	Clear(ctx context.Context, actor string, courseID int64) error

	StartBatch(ctx context.Context, actor, batchID string, total int) error
	UpdateBatchCourse(ctx context.Context, actor, batchID string, courseID int64, status CourseStatus) error
	GetBatch(ctx context.Context, actor, batchID string) (*BatchRecord, error)
	CompleteBatch(ctx context.Context, actor, batchID string, success bool, message, errMsg string) error
	ClearBatch(ctx context.Context, actor, batchID string) error
}
