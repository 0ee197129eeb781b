package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/lussekatt/internal/canvas"
	"github.com/shrimpsizemoose/lussekatt/internal/progress"
	"github.com/shrimpsizemoose/lussekatt/internal/store/sqlite"
)

// fakeCanvas serves a canned slice of the Canvas API for any number of
// courses. Zero-value maps mean empty collections, not errors.
type fakeCanvas struct {
	mu sync.Mutex

	courses     map[int64]canvas.Course
	enrollments map[int64][]canvas.Enrollment
	users       map[int64][]canvas.User
	assignments map[int64][]canvas.Assignment
	submissions map[string][]canvas.Submission // "courseID/assignmentID"
	categories  map[int64][]canvas.GroupCategory
	groups      map[int64][]canvas.Group     // by category id
	groupUsers  map[int64][]canvas.GroupUser // by group id

	courseStatus   map[int64]int // force an HTTP status for a course
	categoryStatus int           // force an HTTP status for group endpoints

	putMembers map[int64][]string // last members[] PUT per group
}

func newFakeCanvas() *fakeCanvas {
	return &fakeCanvas{
		courses:      make(map[int64]canvas.Course),
		enrollments:  make(map[int64][]canvas.Enrollment),
		users:        make(map[int64][]canvas.User),
		assignments:  make(map[int64][]canvas.Assignment),
		submissions:  make(map[string][]canvas.Submission),
		categories:   make(map[int64][]canvas.GroupCategory),
		groups:       make(map[int64][]canvas.Group),
		groupUsers:   make(map[int64][]canvas.GroupUser),
		courseStatus: make(map[int64]int),
		putMembers:   make(map[int64][]string),
	}
}

func (f *fakeCanvas) addCourse(id int64, name string) {
	f.courses[id] = canvas.Course{ID: id, Name: name, CourseCode: "C-" + strconv.FormatInt(id, 10), WorkflowState: "available"}
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id
}

func (f *fakeCanvas) failCourse(w http.ResponseWriter, courseID int64) bool {
	if status := f.courseStatus[courseID]; status != 0 {
		http.Error(w, `{"errors":[{"message":"forced failure"}]}`, status)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (f *fakeCanvas) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/courses/{courseID}", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "courseID")
		if f.failCourse(w, id) {
			return
		}
		course, ok := f.courses[id]
		if !ok {
			http.Error(w, `{"errors":[{"message":"not found"}]}`, http.StatusNotFound)
			return
		}
		writeJSON(w, course)
	})

	mux.HandleFunc("GET /api/v1/courses/{courseID}/enrollments", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "courseID")
		if f.failCourse(w, id) {
			return
		}
		writeJSON(w, f.enrollments[id])
	})

	mux.HandleFunc("GET /api/v1/courses/{courseID}/users", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "courseID")
		if f.failCourse(w, id) {
			return
		}
		writeJSON(w, f.users[id])
	})

	mux.HandleFunc("GET /api/v1/courses/{courseID}/assignments", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "courseID")
		if f.failCourse(w, id) {
			return
		}
		writeJSON(w, f.assignments[id])
	})

	mux.HandleFunc("GET /api/v1/courses/{courseID}/assignments/{assignmentID}/submissions", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "courseID")
		if f.failCourse(w, id) {
			return
		}
		key := fmt.Sprintf("%d/%d", id, pathID(r, "assignmentID"))
		writeJSON(w, f.submissions[key])
	})

	mux.HandleFunc("GET /api/v1/courses/{courseID}/group_categories", func(w http.ResponseWriter, r *http.Request) {
		if f.categoryStatus != 0 {
			http.Error(w, `{"errors":[{"message":"forced failure"}]}`, f.categoryStatus)
			return
		}
		writeJSON(w, f.categories[pathID(r, "courseID")])
	})

	mux.HandleFunc("GET /api/v1/group_categories/{categoryID}/groups", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, f.groups[pathID(r, "categoryID")])
	})

	mux.HandleFunc("GET /api/v1/groups/{groupID}/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, f.groupUsers[pathID(r, "groupID")])
	})

	mux.HandleFunc("PUT /api/v1/groups/{groupID}", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.putMembers[pathID(r, "groupID")] = r.PostForm["members[]"]
		f.mu.Unlock()
		writeJSON(w, map[string]int64{"id": pathID(r, "groupID")})
	})

	return mux
}

func newTestSyncer(t *testing.T, fake *fakeCanvas) (*Syncer, *sqlite.SQLiteStore, *progress.MemoryTracker, func()) {
	srv := httptest.NewServer(fake.handler())

	st, err := sqlite.NewSQLiteStore(":memory:", "../../migrations")
	require.NoError(t, err)

	client := canvas.New(srv.URL, "test-token", 5*time.Second)
	tracker := progress.NewMemoryTracker(time.Hour)

	cleanup := func() {
		st.Close()
		srv.Close()
	}
	return New(client, st, tracker), st, tracker, cleanup
}

func newTestSyncerWithTracker(t *testing.T, fake *fakeCanvas, tracker progress.Tracker) (*Syncer, func()) {
	srv := httptest.NewServer(fake.handler())

	st, err := sqlite.NewSQLiteStore(":memory:", "../../migrations")
	require.NoError(t, err)

	client := canvas.New(srv.URL, "test-token", 5*time.Second)
	cleanup := func() {
		st.Close()
		srv.Close()
	}
	return New(client, st, tracker), cleanup
}

// seedHappyCourse fills the fake with one course, two students, two
// assignments and their submissions.
func seedHappyCourse(f *fakeCanvas) {
	f.addCourse(1001, "Data Engineering")

	f.enrollments[1001] = []canvas.Enrollment{
		{ID: 9001, UserID: 501, Type: "StudentEnrollment", State: "active",
			User: struct {
				ID   int64  `json:"id"`
				Name string `json:"name"`
			}{ID: 501, Name: "John Doe"}},
		{ID: 9002, UserID: 502, Type: "StudentEnrollment", State: "active",
			User: struct {
				ID   int64  `json:"id"`
				Name string `json:"name"`
			}{ID: 502, Name: "Ada Lovelace"}},
	}
	f.users[1001] = []canvas.User{
		{ID: 501, Name: "John Doe", Email: "john.doe@example.com"},
		{ID: 502, Name: "Ada Lovelace", Email: "ada@example.com"},
	}

	due := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	f.assignments[1001] = []canvas.Assignment{
		{ID: 2001, Name: "Lab 1", PointsPossible: 10, DueAt: &due, Published: true, GradingType: "points",
			Rubric: []canvas.RubricCriterion{
				{ID: "_100", Description: "Correctness", Points: 6},
				{ID: "_200", Description: "Style", Points: 4},
			}},
		{ID: 2002, Name: "Lab 2", PointsPossible: 20, Published: true, GradingType: "points"},
	}

	score := 8.5
	f.submissions["1001/2001"] = []canvas.Submission{
		{ID: 3001, AssignmentID: 2001, UserID: 501, WorkflowState: "graded", Score: &score},
		{ID: 3002, AssignmentID: 2001, UserID: 502, WorkflowState: "submitted"},
	}
	f.submissions["1001/2002"] = []canvas.Submission{
		{ID: 3003, AssignmentID: 2002, UserID: 501, WorkflowState: "unsubmitted"},
	}
}

func TestSyncCourseHappyPath(t *testing.T) {
	fake := newFakeCanvas()
	seedHappyCourse(fake)

	s, st, tracker, cleanup := newTestSyncer(t, fake)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.SyncCourse(ctx, "alice", 1001))

	course, err := st.GetCourseByCanvasID(1001)
	require.NoError(t, err)
	require.NotNil(t, course)
	assert.Equal(t, "Data Engineering", course.Name)
	assert.NotNil(t, course.LastSyncedAt)

	enrollments, err := st.ListEnrollments(course.ID)
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	assert.Equal(t, "ada@example.com", enrollments[0].Email)
	assert.Equal(t, "john.doe@example.com", enrollments[1].Email)

	assignments, err := st.ListAssignments(course.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	require.NotNil(t, assignments[0].DueAt)

	criteria, err := st.ListRubricCriteria(assignments[0].ID)
	require.NoError(t, err)
	assert.Len(t, criteria, 2)

	lab1, err := st.ListSubmissions(assignments[0].ID)
	require.NoError(t, err)
	assert.Len(t, lab1, 2)
	lab2, err := st.ListSubmissions(assignments[1].ID)
	require.NoError(t, err)
	assert.Len(t, lab2, 1)

	record, err := tracker.Get(ctx, "alice", 1001)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, progress.StatusCompleted, record.Status)
	assert.Equal(t, record.Total, record.Current)
	assert.Contains(t, record.Message, "2 enrollments")
	assert.Contains(t, record.Message, "2 assignments")
	assert.Contains(t, record.Message, "3 submissions")
}

func TestSyncCourseIsIdempotent(t *testing.T) {
	fake := newFakeCanvas()
	seedHappyCourse(fake)

	s, st, _, cleanup := newTestSyncer(t, fake)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.SyncCourse(ctx, "alice", 1001))
	require.NoError(t, s.SyncCourse(ctx, "alice", 1001))

	course, err := st.GetCourseByCanvasID(1001)
	require.NoError(t, err)

	enrollments, err := st.ListEnrollments(course.ID)
	require.NoError(t, err)
	assert.Len(t, enrollments, 2)

	assignments, err := st.ListAssignments(course.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	submissions, err := st.ListSubmissions(assignments[0].ID)
	require.NoError(t, err)
	assert.Len(t, submissions, 2)
}

func TestSyncCoursePicksUpRemovedDeadline(t *testing.T) {
	fake := newFakeCanvas()
	seedHappyCourse(fake)

	s, st, _, cleanup := newTestSyncer(t, fake)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.SyncCourse(ctx, "alice", 1001))

	fake.assignments[1001][0].DueAt = nil
	require.NoError(t, s.SyncCourse(ctx, "alice", 1001))

	course, err := st.GetCourseByCanvasID(1001)
	require.NoError(t, err)
	assignments, err := st.ListAssignments(course.ID)
	require.NoError(t, err)
	assert.Nil(t, assignments[0].DueAt)
}

func TestSyncCourseSkipsOrphanSubmission(t *testing.T) {
	fake := newFakeCanvas()
	seedHappyCourse(fake)
	// User 999 has a submission but no enrollment
	fake.submissions["1001/2002"] = append(fake.submissions["1001/2002"],
		canvas.Submission{ID: 3999, AssignmentID: 2002, UserID: 999, WorkflowState: "submitted"})

	s, st, tracker, cleanup := newTestSyncer(t, fake)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.SyncCourse(ctx, "alice", 1001))

	course, err := st.GetCourseByCanvasID(1001)
	require.NoError(t, err)
	assignments, err := st.ListAssignments(course.ID)
	require.NoError(t, err)

	submissions, err := st.ListSubmissions(assignments[1].ID)
	require.NoError(t, err)
	assert.Len(t, submissions, 1, "orphan submission should be skipped")

	record, err := tracker.Get(ctx, "alice", 1001)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCompleted, record.Status)
}

func TestSyncCourseAuthFailure(t *testing.T) {
	fake := newFakeCanvas()
	fake.addCourse(1001, "Data Engineering")
	fake.courseStatus[1001] = http.StatusUnauthorized

	s, _, tracker, cleanup := newTestSyncer(t, fake)
	defer cleanup()

	ctx := context.Background()
	err := s.SyncCourse(ctx, "alice", 1001)
	require.Error(t, err)

	record, terr := tracker.Get(ctx, "alice", 1001)
	require.NoError(t, terr)
	require.NotNil(t, record)
	assert.Equal(t, progress.StatusError, record.Status)
	assert.Equal(t, "Canvas authentication failed, check the API token", record.Message)
	assert.Contains(t, record.Error, "401")
}

func TestSyncCourseNotFound(t *testing.T) {
	fake := newFakeCanvas()

	s, _, tracker, cleanup := newTestSyncer(t, fake)
	defer cleanup()

	ctx := context.Background()
	err := s.SyncCourse(ctx, "alice", 4242)
	require.Error(t, err)

	record, terr := tracker.Get(ctx, "alice", 4242)
	require.NoError(t, terr)
	require.NotNil(t, record)
	assert.Equal(t, progress.StatusError, record.Status)
	assert.Equal(t, "Course not found on Canvas", record.Message)
}

func TestSyncCourseGroupFailureIsNotFatal(t *testing.T) {
	fake := newFakeCanvas()
	seedHappyCourse(fake)
	fake.categoryStatus = http.StatusInternalServerError

	s, _, tracker, cleanup := newTestSyncer(t, fake)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.SyncCourse(ctx, "alice", 1001))

	record, err := tracker.Get(ctx, "alice", 1001)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCompleted, record.Status)
}

func TestSyncCourseInFlightGuard(t *testing.T) {
	fake := newFakeCanvas()
	seedHappyCourse(fake)

	s, _, _, cleanup := newTestSyncer(t, fake)
	defer cleanup()

	require.True(t, s.acquire(1001))
	err := s.SyncCourse(context.Background(), "alice", 1001)
	assert.ErrorIs(t, err, ErrSyncInFlight)

	s.release(1001)
	require.NoError(t, s.SyncCourse(context.Background(), "alice", 1001))
}

func TestSyncCourseSurvivesEnrollmentIDChurn(t *testing.T) {
	fake := newFakeCanvas()
	seedHappyCourse(fake)

	s, st, _, cleanup := newTestSyncer(t, fake)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.SyncCourse(ctx, "alice", 1001))

	// Canvas hands out a fresh enrollment id when a student is dropped
	// and re-added; the (course, user) row must update in place
	fake.enrollments[1001][0].ID = 9101
	require.NoError(t, s.SyncCourse(ctx, "alice", 1001))

	course, err := st.GetCourseByCanvasID(1001)
	require.NoError(t, err)
	enrollments, err := st.ListEnrollments(course.ID)
	require.NoError(t, err)
	assert.Len(t, enrollments, 2)

	got, err := st.GetEnrollment(course.ID, 501)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(9101), got.CanvasID)
}

// updatePanicTracker blows up on the first progress update, like a tracker
// backend going away mid-sync.
type updatePanicTracker struct {
	*progress.MemoryTracker
}

func (p *updatePanicTracker) Update(ctx context.Context, actor string, courseID int64, current, total int, status progress.Status, message string) error {
	panic("tracker backend gone")
}

func TestSyncCoursePanicStillFinalizesProgress(t *testing.T) {
	fake := newFakeCanvas()
	seedHappyCourse(fake)

	tracker := &updatePanicTracker{progress.NewMemoryTracker(time.Hour)}
	s, cleanup := newTestSyncerWithTracker(t, fake, tracker)
	defer cleanup()

	ctx := context.Background()
	err := s.SyncCourse(ctx, "alice", 1001)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")

	record, terr := tracker.Get(ctx, "alice", 1001)
	require.NoError(t, terr)
	require.NotNil(t, record)
	assert.Equal(t, progress.StatusError, record.Status)

	// The in-flight guard must be released too
	require.True(t, s.acquire(1001))
	s.release(1001)
}

// currentSpy records every current value handed to Update.
type currentSpy struct {
	*progress.MemoryTracker

	mu       sync.Mutex
	currents []int
}

func (c *currentSpy) Update(ctx context.Context, actor string, courseID int64, current, total int, status progress.Status, message string) error {
	c.mu.Lock()
	c.currents = append(c.currents, current)
	c.mu.Unlock()
	return c.MemoryTracker.Update(ctx, actor, courseID, current, total, status, message)
}

func TestSyncCourseProgressNeverDecreases(t *testing.T) {
	fake := newFakeCanvas()
	seedHappyCourse(fake)

	spy := &currentSpy{MemoryTracker: progress.NewMemoryTracker(time.Hour)}
	s, cleanup := newTestSyncerWithTracker(t, fake, spy)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.SyncCourse(ctx, "alice", 1001))

	spy.mu.Lock()
	currents := append([]int(nil), spy.currents...)
	spy.mu.Unlock()
	require.NotEmpty(t, currents)
	for i := 1; i < len(currents); i++ {
		assert.GreaterOrEqual(t, currents[i], currents[i-1], "progress went backwards at update %d", i)
	}

	record, err := spy.Get(ctx, "alice", 1001)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, progress.StatusCompleted, record.Status)
	assert.Equal(t, record.Total, record.Current)
}

func TestFriendlyMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&canvas.APIError{StatusCode: 401}, "Canvas authentication failed, check the API token"},
		{&canvas.APIError{StatusCode: 404}, "Course not found on Canvas"},
		{&canvas.APIError{StatusCode: 429}, "Canvas rate limit reached, try again later"},
		{&canvas.APIError{StatusCode: 503}, "Canvas is unavailable right now"},
		{&canvas.APIError{StatusCode: 418}, "Canvas returned unexpected status 418"},
		{&canvas.TransportError{Err: fmt.Errorf("dial tcp: refused")}, "Could not reach Canvas"},
		{fmt.Errorf("some db error"), "Sync failed"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, friendlyMessage(tc.err))
	}
}
