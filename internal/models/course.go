package models

import "time"

// Course mirrors one Canvas course. CanvasID is the natural key for upserts;
// the local id exists only for foreign keys.
type Course struct {
	ID            int64      `db:"id" json:"id"`
	CanvasID      int64      `db:"canvas_id" json:"canvas_id" validate:"required"`
	Name          string     `db:"name" json:"name" validate:"required"`
	CourseCode    string     `db:"course_code" json:"course_code"`
	WorkflowState string     `db:"workflow_state" json:"workflow_state"`
	StartAt       *time.Time `db:"start_at" json:"start_at,omitempty"`
	EndAt         *time.Time `db:"end_at" json:"end_at,omitempty"`
	LastSyncedAt  *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
}
