package models

import "time"

type Assignment struct {
	ID             int64      `db:"id" json:"id"`
	CanvasID       int64      `db:"canvas_id" json:"canvas_id" validate:"required"`
	CourseID       int64      `db:"course_id" json:"course_id"`
	Name           string     `db:"name" json:"name" validate:"required"`
	PointsPossible float64    `db:"points_possible" json:"points_possible"`
	DueAt          *time.Time `db:"due_at" json:"due_at,omitempty"`
	UnlockAt       *time.Time `db:"unlock_at" json:"unlock_at,omitempty"`
	LockAt         *time.Time `db:"lock_at" json:"lock_at,omitempty"`
	Published      bool       `db:"published" json:"published"`
	GradingType    string     `db:"grading_type" json:"grading_type"`
}

// RubricCriterion is one row of an assignment's embedded rubric. Canvas hands
// out string ids for criteria ("_1234"), not integers like everything else.
type RubricCriterion struct {
	ID              int64   `db:"id" json:"id"`
	AssignmentID    int64   `db:"assignment_id" json:"assignment_id"`
	CanvasID        string  `db:"canvas_id" json:"canvas_id"`
	Description     string  `db:"description" json:"description"`
	LongDescription string  `db:"long_description" json:"long_description"`
	Points          float64 `db:"points" json:"points"`
	Position        int     `db:"position" json:"position"`
}
