package models

import "time"

// Team is a local grouping of Students. When CanvasGroupID is set the team
// mirrors a Canvas group ("core team") and takes part in group sync.
type Team struct {
	ID            int64      `db:"id" json:"id"`
	Name          string     `db:"name" json:"name" validate:"required,max=128"`
	Description   string     `db:"description" json:"description" validate:"max=512"`
	CourseID      *int64     `db:"course_id" json:"course_id,omitempty"`
	CanvasGroupID *int64     `db:"canvas_group_id" json:"canvas_group_id,omitempty"`
	LastSyncedAt  *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
}
