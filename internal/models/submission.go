package models

import "time"

// Submission state follows the Canvas workflow_state vocabulary.
const (
	SubmissionUnsubmitted = "unsubmitted"
	SubmissionSubmitted   = "submitted"
	SubmissionGraded      = "graded"
	SubmissionPending     = "pending_review"
)

type Submission struct {
	ID           int64      `db:"id" json:"id"`
	CanvasID     int64      `db:"canvas_id" json:"canvas_id" validate:"required"`
	AssignmentID int64      `db:"assignment_id" json:"assignment_id"`
	EnrollmentID int64      `db:"enrollment_id" json:"enrollment_id"`
	State        string     `db:"state" json:"state"`
	Score        *float64   `db:"score" json:"score,omitempty"`
	Late         bool       `db:"late" json:"late"`
	Missing      bool       `db:"missing" json:"missing"`
	Excused      bool       `db:"excused" json:"excused"`
	SubmittedAt  *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	GradedAt     *time.Time `db:"graded_at" json:"graded_at,omitempty"`
}

/*
unique_together handled on DB level:
    UNIQUE (assignment_id, enrollment_id)
*/
