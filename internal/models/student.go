package models

import "github.com/go-playground/validator/v10"

// Student is the local identity entity, independent of any login account.
// External platform handles (Canvas, GitHub, Taiga) hang off it so the sync
// pipelines can correlate the same person across systems.
type Student struct {
	ID             int64  `db:"id" json:"id"`
	FirstName      string `db:"first_name" json:"first_name" validate:"required"`
	LastName       string `db:"last_name" json:"last_name"`
	Email          string `db:"email" json:"email" validate:"required,email"`
	StudentNo      string `db:"student_no" json:"student_no"`
	CanvasUserID   *int64 `db:"canvas_user_id" json:"canvas_user_id,omitempty"`
	GithubUsername string `db:"github_username" json:"github_username"`
	TaigaUsername  string `db:"taiga_username" json:"taiga_username"`
	TeamID         *int64 `db:"team_id" json:"team_id,omitempty"`
}

func (s *Student) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}
