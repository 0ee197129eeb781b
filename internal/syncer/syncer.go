// Package syncer pulls course data out of Canvas and reconciles it into the
// local database, reporting progress along the way.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/lussekatt/internal/canvas"
	"github.com/shrimpsizemoose/lussekatt/internal/metrics"
	"github.com/shrimpsizemoose/lussekatt/internal/models"
	"github.com/shrimpsizemoose/lussekatt/internal/progress"
	"github.com/shrimpsizemoose/lussekatt/internal/store"
)

type Syncer struct {
	canvas   *canvas.Client
	store    store.SyncStore
	progress progress.Tracker

	mu       sync.Mutex
	inFlight map[int64]bool
}

func New(client *canvas.Client, st store.SyncStore, tracker progress.Tracker) *Syncer {
	return &Syncer{
		canvas:   client,
		store:    st,
		progress: tracker,
		inFlight: make(map[int64]bool),
	}
}

func (s *Syncer) acquire(courseID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[courseID] {
		return false
	}
	s.inFlight[courseID] = true
	return true
}

func (s *Syncer) release(courseID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, courseID)
}

// SyncCourse runs the full pipeline for one course. The progress record
// always reaches a terminal status, whatever happens inside: the deferred
// finalizer catches panics too, so a record can never stay stuck at a
// non-terminal state blocking later syncs.
func (s *Syncer) SyncCourse(ctx context.Context, actor string, courseID int64) (err error) {
	if !s.acquire(courseID) {
		return ErrSyncInFlight
	}
	defer s.release(courseID)

	start := time.Now()
	if perr := s.progress.Start(ctx, actor, courseID); perr != nil {
		logger.Error.Printf("Failed to start progress record for course %d: %v", courseID, perr)
	}

	var summary string
	defer func() {
		if r := recover(); r != nil {
			logger.Error.Printf("Panic while syncing course %d: %v", courseID, r)
			err = fmt.Errorf("panic: %v", r)
		}

		if err != nil {
			metrics.SyncRunsTotal.WithLabelValues("error").Inc()
			metrics.SyncDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
			logger.Error.Printf("Sync failed for course %d: %v", courseID, err)
			if perr := s.progress.Complete(ctx, actor, courseID, false, friendlyMessage(err), err.Error()); perr != nil {
				logger.Error.Printf("Failed to finalize progress record for course %d: %v", courseID, perr)
			}
			return
		}

		metrics.SyncRunsTotal.WithLabelValues("ok").Inc()
		metrics.SyncDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
		logger.Info.Printf("Course %d synced in %s: %s", courseID, time.Since(start).Round(time.Millisecond), summary)
		if perr := s.progress.Complete(ctx, actor, courseID, true, summary, ""); perr != nil {
			logger.Error.Printf("Failed to finalize progress record for course %d: %v", courseID, perr)
		}
	}()

	summary, err = s.runCourseSync(ctx, actor, courseID)
	return err
}

// Progress accounting: 3 fixed steps (course, enrollments, assignments),
// one step per assignment for submissions, one for groups. Total only ever
// grows, once the assignment count is known.
func (s *Syncer) runCourseSync(ctx context.Context, actor string, courseID int64) (string, error) {
	total := 5
	s.update(ctx, actor, courseID, 0, total, progress.StatusFetchingCourse, "Fetching course")

	remote, err := s.canvas.GetCourse(ctx, courseID)
	if err != nil {
		return "", err
	}
	course, err := s.saveCourse(remote)
	if err != nil {
		return "", err
	}

	s.update(ctx, actor, courseID, 1, total, progress.StatusFetchingEnrollments, "Fetching enrollments")
	enrollments, err := s.canvas.ListEnrollments(ctx, courseID)
	if err != nil {
		return "", err
	}

	s.update(ctx, actor, courseID, 1, total, progress.StatusFetchingUsers, "Fetching user emails")
	users, err := s.canvas.ListUsers(ctx, courseID)
	if err != nil {
		return "", err
	}
	emails := make(map[int64]string, len(users))
	for _, u := range users {
		emails[u.ID] = u.Email
	}

	s.update(ctx, actor, courseID, 1, total, progress.StatusSavingData, fmt.Sprintf("Saving %d enrollments", len(enrollments)))
	for _, e := range enrollments {
		if err := s.saveEnrollment(course.ID, e, emails); err != nil {
			return "", err
		}
	}

	s.update(ctx, actor, courseID, 2, total, progress.StatusFetchingAssignments, "Fetching assignments")
	assignments, err := s.canvas.ListAssignments(ctx, courseID)
	if err != nil {
		return "", err
	}
	total = len(assignments) + 5

	saved := make([]savedAssignment, 0, len(assignments))
	for _, a := range assignments {
		assignment, err := s.saveAssignment(course.ID, a)
		if err != nil {
			return "", err
		}
		saved = append(saved, savedAssignment{local: assignment, canvasID: a.ID})
	}

	submissionCount := 0
	for i, a := range saved {
		message := fmt.Sprintf("Fetching submissions for %q (%d/%d)", a.local.Name, i+1, len(saved))
		s.update(ctx, actor, courseID, 3+i, total, progress.StatusFetchingSubmissions, message)

		submissions, err := s.canvas.ListSubmissions(ctx, courseID, a.canvasID)
		if err != nil {
			return "", err
		}

		s.update(ctx, actor, courseID, 3+i, total, progress.StatusProcessingSubmissions, message)
		n, err := s.saveSubmissions(course.ID, a.local.ID, submissions)
		if err != nil {
			return "", err
		}
		submissionCount += n
	}

	s.update(ctx, actor, courseID, 3+len(saved), total, progress.StatusSyncingGroups, "Syncing groups")
	if err := s.SyncGroups(ctx, course); err != nil {
		// Group sync is best effort, a broken group set must not fail the run
		logger.Error.Printf("Group sync failed for course %d: %v", courseID, err)
	}

	if err := s.store.UpdateCourseSync(course.ID, time.Now().UTC()); err != nil {
		return "", err
	}

	summary := fmt.Sprintf("Synced %d enrollments, %d assignments, %d submissions",
		len(enrollments), len(saved), submissionCount)
	return summary, nil
}

type savedAssignment struct {
	local    *models.Assignment
	canvasID int64
}

func (s *Syncer) update(ctx context.Context, actor string, courseID int64, current, total int, status progress.Status, message string) {
	if err := s.progress.Update(ctx, actor, courseID, current, total, status, message); err != nil {
		logger.Debug.Printf("Failed to update progress for course %d: %v", courseID, err)
	}
}
