package models

// GroupCategory is a Canvas "group set": a named collection of
// mutually-exclusive groups within a course.
type GroupCategory struct {
	ID         int64  `db:"id" json:"id"`
	CanvasID   int64  `db:"canvas_id" json:"canvas_id" validate:"required"`
	CourseID   int64  `db:"course_id" json:"course_id"`
	Name       string `db:"name" json:"name" validate:"required"`
	SelfSignup string `db:"self_signup" json:"self_signup"`
	AutoLeader string `db:"auto_leader" json:"auto_leader"`
	GroupLimit int    `db:"group_limit" json:"group_limit"`
}

// Group is one Canvas group. CoreTeamID links it 1:1 to the local Team that
// represents the same real-world team; the Team carries the reverse link.
type Group struct {
	ID          int64  `db:"id" json:"id"`
	CanvasID    int64  `db:"canvas_id" json:"canvas_id" validate:"required"`
	CategoryID  int64  `db:"category_id" json:"category_id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	CoreTeamID  *int64 `db:"core_team_id" json:"core_team_id,omitempty"`
}

// GroupMembership joins a Canvas user to a group. A user holds at most one
// membership per category; moving between groups removes the old row first.
type GroupMembership struct {
	ID           int64  `db:"id" json:"id"`
	GroupID      int64  `db:"group_id" json:"group_id"`
	CanvasUserID int64  `db:"canvas_user_id" json:"canvas_user_id"`
	UserName     string `db:"user_name" json:"user_name"`
	StudentID    *int64 `db:"student_id" json:"student_id,omitempty"`
}
