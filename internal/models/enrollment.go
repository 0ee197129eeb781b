package models

// Enrollment links a Canvas user to a role within one course.
// Exactly one row per (course_id, canvas_user_id); re-sync updates in place.
type Enrollment struct {
	ID           int64  `db:"id" json:"id"`
	CanvasID     int64  `db:"canvas_id" json:"canvas_id" validate:"required"`
	CourseID     int64  `db:"course_id" json:"course_id"`
	CanvasUserID int64  `db:"canvas_user_id" json:"canvas_user_id"`
	UserName     string `db:"user_name" json:"user_name"`
	Email        string `db:"email" json:"email"`
	Role         string `db:"role" json:"role"`
	State        string `db:"state" json:"state"`
	StudentID    *int64 `db:"student_id" json:"student_id,omitempty"`
}

/*
CREATE TABLE enrollments (
    id BIGSERIAL PRIMARY KEY,
    canvas_id BIGINT NOT NULL UNIQUE,
    course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    canvas_user_id BIGINT NOT NULL,
    ...
    UNIQUE (course_id, canvas_user_id)
);
*/
