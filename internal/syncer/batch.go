package syncer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/lussekatt/internal/progress"
)

// batchChunkSize caps how many courses sync concurrently within one batch.
const batchChunkSize = 5

type courseResult struct {
	courseID int64
	name     string
	err      error
}

// SyncCourses runs a batch of course syncs in chunks. One failing course
// never takes down the others, and the batch counts as successful as long
// as at least one course made it.
func (s *Syncer) SyncCourses(ctx context.Context, actor, batchID string, courseIDs []int64) error {
	if err := s.progress.StartBatch(ctx, actor, batchID, len(courseIDs)); err != nil {
		logger.Error.Printf("Failed to start batch record %s: %v", batchID, err)
	}

	results := make([]courseResult, len(courseIDs))
	for start := 0; start < len(courseIDs); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(courseIDs) {
			end = len(courseIDs)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int, courseID int64) {
				defer wg.Done()
				results[idx] = s.syncBatchCourse(ctx, actor, batchID, courseID)
			}(i, courseIDs[i])
		}
		wg.Wait()
	}

	succeeded := 0
	var failures []courseResult
	for _, r := range results {
		if r.err == nil {
			succeeded++
		} else {
			failures = append(failures, r)
		}
	}

	message := fmt.Sprintf("Synced %d of %d courses", succeeded, len(courseIDs))
	if len(failures) > 0 {
		names := make([]string, 0, 3)
		for i, f := range failures {
			if i == 3 {
				break
			}
			names = append(names, f.name)
		}
		message += ", failed: " + strings.Join(names, ", ")
		if len(failures) > 3 {
			message += fmt.Sprintf(" and %d more", len(failures)-3)
		}
	}

	errMsgs := make([]string, 0, len(failures))
	for _, f := range failures {
		errMsgs = append(errMsgs, fmt.Sprintf("%s: %v", f.name, f.err))
	}

	success := succeeded > 0
	if err := s.progress.CompleteBatch(ctx, actor, batchID, success, message, strings.Join(errMsgs, "; ")); err != nil {
		logger.Error.Printf("Failed to finalize batch record %s: %v", batchID, err)
	}

	if !success && len(courseIDs) > 0 {
		return fmt.Errorf("all %d course syncs failed", len(courseIDs))
	}
	return nil
}

// syncBatchCourse runs one course inside a batch, panics included, and keeps
// the batch record's course slice up to date.
func (s *Syncer) syncBatchCourse(ctx context.Context, actor, batchID string, courseID int64) (result courseResult) {
	result.courseID = courseID
	result.name = fmt.Sprintf("course %d", courseID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error.Printf("Panic while syncing course %d: %v", courseID, r)
			result.err = fmt.Errorf("panic: %v", r)
			s.updateBatchCourse(ctx, actor, batchID, courseID, progress.CourseStatus{
				Name:    result.name,
				Status:  progress.StatusError,
				Message: "Sync failed",
			})
		}
	}()

	started := time.Now().UTC()
	s.updateBatchCourse(ctx, actor, batchID, courseID, progress.CourseStatus{
		Name:      result.name,
		Status:    progress.StatusFetchingCourse,
		StartedAt: &started,
	})

	result.err = s.SyncCourse(ctx, actor, courseID)

	if course, err := s.store.GetCourseByCanvasID(courseID); err == nil && course != nil {
		result.name = course.Name
	}

	completed := time.Now().UTC()
	status := progress.CourseStatus{
		Name:        result.name,
		Status:      progress.StatusCompleted,
		Progress:    100,
		StartedAt:   &started,
		CompletedAt: &completed,
	}
	if result.err != nil {
		status.Status = progress.StatusError
		status.Progress = 0
		status.Message = friendlyMessage(result.err)
	}
	s.updateBatchCourse(ctx, actor, batchID, courseID, status)
	return result
}

func (s *Syncer) updateBatchCourse(ctx context.Context, actor, batchID string, courseID int64, status progress.CourseStatus) {
	if err := s.progress.UpdateBatchCourse(ctx, actor, batchID, courseID, status); err != nil {
		logger.Debug.Printf("Failed to update batch %s course %d: %v", batchID, courseID, err)
	}
}
