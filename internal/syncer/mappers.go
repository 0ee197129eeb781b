package syncer

import (
	"fmt"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/lussekatt/internal/canvas"
	"github.com/shrimpsizemoose/lussekatt/internal/metrics"
	"github.com/shrimpsizemoose/lussekatt/internal/models"
)

// Mapping rules: a payload missing its natural key or a required name is
// rejected, optional fields fall back to zero values.

func (s *Syncer) saveCourse(remote *canvas.Course) (*models.Course, error) {
	if remote.ID == 0 || remote.Name == "" {
		return nil, fmt.Errorf("course payload missing id or name")
	}

	course := &models.Course{
		CanvasID:      remote.ID,
		Name:          remote.Name,
		CourseCode:    remote.CourseCode,
		WorkflowState: remote.WorkflowState,
		StartAt:       remote.StartAt,
		EndAt:         remote.EndAt,
	}
	if _, err := s.store.UpsertCourse(course); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *Syncer) saveEnrollment(courseID int64, remote canvas.Enrollment, emails map[int64]string) error {
	if remote.ID == 0 || remote.UserID == 0 {
		return fmt.Errorf("enrollment payload missing id or user id")
	}

	enrollment := &models.Enrollment{
		CanvasID:     remote.ID,
		CourseID:     courseID,
		CanvasUserID: remote.UserID,
		UserName:     remote.User.Name,
		Email:        emails[remote.UserID],
		Role:         remote.Type,
		State:        remote.State,
	}
	_, err := s.store.UpsertEnrollment(enrollment)
	return err
}

func (s *Syncer) saveAssignment(courseID int64, remote canvas.Assignment) (*models.Assignment, error) {
	if remote.ID == 0 || remote.Name == "" {
		return nil, fmt.Errorf("assignment payload missing id or name")
	}

	assignment := &models.Assignment{
		CanvasID:       remote.ID,
		CourseID:       courseID,
		Name:           remote.Name,
		PointsPossible: remote.PointsPossible,
		DueAt:          remote.DueAt,
		UnlockAt:       remote.UnlockAt,
		LockAt:         remote.LockAt,
		Published:      remote.Published,
		GradingType:    remote.GradingType,
	}
	if _, err := s.store.UpsertAssignment(assignment); err != nil {
		return nil, err
	}

	for i, rc := range remote.Rubric {
		if rc.ID == "" {
			logger.Info.Printf("Skipping rubric criterion without id on assignment %d", remote.ID)
			continue
		}
		criterion := &models.RubricCriterion{
			AssignmentID:    assignment.ID,
			CanvasID:        rc.ID,
			Description:     rc.Description,
			LongDescription: rc.LongDescription,
			Points:          rc.Points,
			Position:        i + 1,
		}
		if _, err := s.store.UpsertRubricCriterion(criterion); err != nil {
			return nil, err
		}
	}
	return assignment, nil
}

// saveSubmissions matches each submission to a local enrollment. A submission
// for an unknown user is logged and skipped, never fatal: Canvas keeps
// submissions around for users dropped from the course.
func (s *Syncer) saveSubmissions(courseID, assignmentID int64, submissions []canvas.Submission) (int, error) {
	saved := 0
	for _, remote := range submissions {
		if remote.ID == 0 {
			continue
		}

		enrollment, err := s.store.GetEnrollment(courseID, remote.UserID)
		if err != nil {
			return saved, err
		}
		if enrollment == nil {
			logger.Info.Printf("No enrollment for user %d on assignment %d, skipping submission %d",
				remote.UserID, assignmentID, remote.ID)
			metrics.SubmissionsSkippedTotal.Inc()
			continue
		}

		state := remote.WorkflowState
		if state == "" {
			state = models.SubmissionUnsubmitted
		}

		submission := &models.Submission{
			CanvasID:     remote.ID,
			AssignmentID: assignmentID,
			EnrollmentID: enrollment.ID,
			State:        state,
			Score:        remote.Score,
			Late:         remote.Late,
			Missing:      remote.Missing,
			Excused:      remote.Excused,
			SubmittedAt:  remote.SubmittedAt,
			GradedAt:     remote.GradedAt,
		}
		if _, err := s.store.UpsertSubmission(submission); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

func (s *Syncer) saveGroupCategory(courseID int64, remote canvas.GroupCategory) (*models.GroupCategory, error) {
	if remote.ID == 0 || remote.Name == "" {
		return nil, fmt.Errorf("group category payload missing id or name")
	}

	category := &models.GroupCategory{
		CanvasID:   remote.ID,
		CourseID:   courseID,
		Name:       remote.Name,
		SelfSignup: remote.SelfSignup,
		AutoLeader: remote.AutoLeader,
		GroupLimit: remote.GroupLimit,
	}
	if _, err := s.store.UpsertGroupCategory(category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *Syncer) saveGroup(categoryID int64, remote canvas.Group) (*models.Group, error) {
	if remote.ID == 0 {
		return nil, fmt.Errorf("group payload missing id")
	}

	group := &models.Group{
		CanvasID:    remote.ID,
		CategoryID:  categoryID,
		Name:        remote.Name,
		Description: remote.Description,
	}
	if _, err := s.store.UpsertGroup(group); err != nil {
		return nil, err
	}

	// Upsert leaves the team link alone, read it back for callers
	stored, err := s.store.GetGroupByCanvasID(remote.ID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		group.CoreTeamID = stored.CoreTeamID
	}
	return group, nil
}
