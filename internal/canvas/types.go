package canvas

import "time"

// Wire types for the Canvas REST API. Field sets are trimmed to what the
// sync pipeline consumes; unknown fields are ignored on decode.

type Course struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	CourseCode    string     `json:"course_code"`
	WorkflowState string     `json:"workflow_state"`
	StartAt       *time.Time `json:"start_at"`
	EndAt         *time.Time `json:"end_at"`
}

type Enrollment struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Type   string `json:"type"`
	State  string `json:"enrollment_state"`
	User   struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
}

// User carries the email address that enrollment payloads omit.
type User struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	LoginID string `json:"login_id"`
}

type Assignment struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	PointsPossible float64           `json:"points_possible"`
	DueAt          *time.Time        `json:"due_at"`
	UnlockAt       *time.Time        `json:"unlock_at"`
	LockAt         *time.Time        `json:"lock_at"`
	Published      bool              `json:"published"`
	GradingType    string            `json:"grading_type"`
	Rubric         []RubricCriterion `json:"rubric"`
}

// RubricCriterion ids are strings like "_7491", unlike every other Canvas id.
type RubricCriterion struct {
	ID              string  `json:"id"`
	Description     string  `json:"description"`
	LongDescription string  `json:"long_description"`
	Points          float64 `json:"points"`
}

type Submission struct {
	ID            int64      `json:"id"`
	AssignmentID  int64      `json:"assignment_id"`
	UserID        int64      `json:"user_id"`
	WorkflowState string     `json:"workflow_state"`
	Score         *float64   `json:"score"`
	Late          bool       `json:"late"`
	Missing       bool       `json:"missing"`
	Excused       bool       `json:"excused"`
	SubmittedAt   *time.Time `json:"submitted_at"`
	GradedAt      *time.Time `json:"graded_at"`
}

type GroupCategory struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	SelfSignup string `json:"self_signup"`
	AutoLeader string `json:"auto_leader"`
	GroupLimit int    `json:"group_limit"`
}

type Group struct {
	ID              int64  `json:"id"`
	GroupCategoryID int64  `json:"group_category_id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	MembersCount    int    `json:"members_count"`
}

// GroupUser is the short user record returned by /groups/:id/users.
type GroupUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
