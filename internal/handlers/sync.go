package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/lussekatt/internal/app"
	"github.com/shrimpsizemoose/lussekatt/internal/jobs"
	"github.com/shrimpsizemoose/lussekatt/internal/metrics"
	"github.com/shrimpsizemoose/lussekatt/internal/syncer"
)

// actorHeader names who kicked off a sync, progress records are scoped by it.
const actorHeader = "X-Actor"

type SyncHandler struct {
	service *app.Service
}

func NewSyncHandler(service *app.Service) *SyncHandler {
	return &SyncHandler{
		service: service,
	}
}

func actor(r *http.Request) string {
	if a := r.Header.Get(actorHeader); a != "" {
		return a
	}
	return "api"
}

func courseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("courseID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid course id %q", r.PathValue("courseID"))
	}
	return id, nil
}

func generateBatchID() (string, error) {
	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Debug.Printf("Error encoding response: %v", err)
	}
}

// HandleCourseSync queues a full sync for one course. Answers 202 with the
// poll location, 409 when the course is already syncing, 503 when the queue
// has no room.
func (h *SyncHandler) HandleCourseSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		duration := time.Since(start).Seconds()
		metrics.APIRequestDuration.WithLabelValues(
			r.URL.Path,
			r.Method,
			"200",
		).Observe(duration)
	}()

	id, err := courseID(r)
	if err != nil {
		logger.Error.Printf("Failed to extract course from path: %s", r.URL.Path)
		http.Error(w, "Invalid course", http.StatusBadRequest)
		return
	}
	who := actor(r)

	record, err := h.service.Progress.Get(r.Context(), who, id)
	if err != nil {
		logger.Error.Printf("Failed to check progress for course %d: %v", id, err)
		http.Error(w, "Failed to check sync state", http.StatusInternalServerError)
		return
	}
	if record != nil && !record.Status.Terminal() {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"status":   "already_running",
			"progress": record,
		})
		return
	}

	err = h.service.Jobs.Enqueue(func(ctx context.Context) {
		if err := h.service.Syncer.SyncCourse(ctx, who, id); err != nil && !errors.Is(err, syncer.ErrSyncInFlight) {
			logger.Error.Printf("Queued sync failed for course %d: %v", id, err)
		}
	})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			http.Error(w, "Sync queue is full, try again later", http.StatusServiceUnavailable)
			return
		}
		logger.Error.Printf("Failed to queue sync for course %d: %v", id, err)
		http.Error(w, "Failed to queue sync", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":    "queued",
		"course_id": id,
	})
}

// HandleCourseSyncStatus reports the progress record of the latest sync.
func (h *SyncHandler) HandleCourseSyncStatus(w http.ResponseWriter, r *http.Request) {
	id, err := courseID(r)
	if err != nil {
		http.Error(w, "Invalid course", http.StatusBadRequest)
		return
	}

	record, err := h.service.Progress.Get(r.Context(), actor(r), id)
	if err != nil {
		logger.Error.Printf("Failed to get progress for course %d: %v", id, err)
		http.Error(w, "Failed to fetch sync state", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "No sync found for this course", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"progress": record,
	})
}

type batchSyncRequest struct {
	CourseIDs []int64 `json:"course_ids"`
}

// HandleBatchSync queues a multi-course sync and hands back a batch id to
// poll.
func (h *SyncHandler) HandleBatchSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		duration := time.Since(start).Seconds()
		metrics.APIRequestDuration.WithLabelValues(
			r.URL.Path,
			r.Method,
			"200",
		).Observe(duration)
	}()

	var req batchSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.CourseIDs) == 0 {
		http.Error(w, "course_ids must not be empty", http.StatusBadRequest)
		return
	}
	for _, id := range req.CourseIDs {
		if id <= 0 {
			http.Error(w, fmt.Sprintf("invalid course id %d", id), http.StatusBadRequest)
			return
		}
	}

	batchID, err := generateBatchID()
	if err != nil {
		logger.Error.Printf("Failed to generate batch id: %v", err)
		http.Error(w, "Failed to start batch", http.StatusInternalServerError)
		return
	}
	who := actor(r)

	err = h.service.Jobs.Enqueue(func(ctx context.Context) {
		if err := h.service.Syncer.SyncCourses(ctx, who, batchID, req.CourseIDs); err != nil {
			logger.Error.Printf("Batch %s failed: %v", batchID, err)
		}
	})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			http.Error(w, "Sync queue is full, try again later", http.StatusServiceUnavailable)
			return
		}
		logger.Error.Printf("Failed to queue batch %s: %v", batchID, err)
		http.Error(w, "Failed to queue batch", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":   "queued",
		"batch_id": batchID,
	})
}

func (h *SyncHandler) HandleBatchSyncStatus(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("batchID")
	if batchID == "" {
		http.Error(w, "Invalid batch id", http.StatusBadRequest)
		return
	}

	record, err := h.service.Progress.GetBatch(r.Context(), actor(r), batchID)
	if err != nil {
		logger.Error.Printf("Failed to get batch %s: %v", batchID, err)
		http.Error(w, "Failed to fetch batch state", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "No such batch", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"progress": record,
	})
}

// HandleCourseDelete drops a course and all synced course data. Students and
// teams stay.
func (h *SyncHandler) HandleCourseDelete(w http.ResponseWriter, r *http.Request) {
	id, err := courseID(r)
	if err != nil {
		http.Error(w, "Invalid course", http.StatusBadRequest)
		return
	}

	course, err := h.service.Store.GetCourseByCanvasID(id)
	if err != nil {
		logger.Error.Printf("Failed to look up course %d: %v", id, err)
		http.Error(w, "Failed to delete course", http.StatusInternalServerError)
		return
	}
	if course == nil {
		http.Error(w, "No such course", http.StatusNotFound)
		return
	}

	if err := h.service.Store.DeleteCourse(id); err != nil {
		logger.Error.Printf("Failed to delete course %d: %v", id, err)
		http.Error(w, "Failed to delete course", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "deleted",
	})
}

func (h *SyncHandler) HandleGradebook(w http.ResponseWriter, r *http.Request) {
	id, err := courseID(r)
	if err != nil {
		http.Error(w, "Invalid course", http.StatusBadRequest)
		return
	}

	rows, err := h.service.Store.FetchGradebook(id)
	if err != nil {
		logger.Error.Printf("Failed to fetch gradebook for course %d: %v", id, err)
		http.Error(w, "Failed to fetch gradebook", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rows": rows,
	})
}

// HandleReassignments applies manual group moves inside one category.
func (h *SyncHandler) HandleReassignments(w http.ResponseWriter, r *http.Request) {
	categoryID, err := strconv.ParseInt(r.PathValue("categoryID"), 10, 64)
	if err != nil || categoryID <= 0 {
		http.Error(w, "Invalid category", http.StatusBadRequest)
		return
	}

	var moves []syncer.Reassignment
	if err := json.NewDecoder(r.Body).Decode(&moves); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(moves) == 0 {
		http.Error(w, "No reassignments given", http.StatusBadRequest)
		return
	}

	result := h.service.Syncer.ApplyReassignments(categoryID, moves)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": result,
	})
}

// HandleTeamPush replaces the Canvas group roster with the local team roster.
func (h *SyncHandler) HandleTeamPush(w http.ResponseWriter, r *http.Request) {
	teamID, err := strconv.ParseInt(r.PathValue("teamID"), 10, 64)
	if err != nil || teamID <= 0 {
		http.Error(w, "Invalid team", http.StatusBadRequest)
		return
	}

	if err := h.service.Syncer.PushTeamRoster(r.Context(), teamID); err != nil {
		logger.Error.Printf("Failed to push roster for team %d: %v", teamID, err)
		http.Error(w, "Failed to push roster", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "pushed",
	})
}
