package store

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shrimpsizemoose/lussekatt/internal/models"
)

type SyncStore interface {
	Close() error

	UpsertCourse(course *models.Course) (bool, error)
	GetCourseByCanvasID(canvasID int64) (*models.Course, error)
	ListCourses() ([]models.Course, error)
	UpdateCourseSync(courseID int64, at time.Time) error
	DeleteCourse(canvasID int64) error

	UpsertEnrollment(enrollment *models.Enrollment) (bool, error)
	GetEnrollment(courseID, canvasUserID int64) (*models.Enrollment, error)
	ListEnrollments(courseID int64) ([]models.Enrollment, error)
	LinkEnrollmentStudent(enrollmentID, studentID int64) error

	UpsertAssignment(assignment *models.Assignment) (bool, error)
	ListAssignments(courseID int64) ([]models.Assignment, error)
	UpsertRubricCriterion(criterion *models.RubricCriterion) (bool, error)
	ListRubricCriteria(assignmentID int64) ([]models.RubricCriterion, error)

	UpsertSubmission(submission *models.Submission) (bool, error)
	ListSubmissions(assignmentID int64) ([]models.Submission, error)

	UpsertGroupCategory(category *models.GroupCategory) (bool, error)
	ListGroupCategories(courseID int64) ([]models.GroupCategory, error)
	UpsertGroup(group *models.Group) (bool, error)
	GetGroupByCanvasID(canvasID int64) (*models.Group, error)
	GetGroupByID(id int64) (*models.Group, error)
	ListGroups(categoryID int64) ([]models.Group, error)
	LinkGroupTeam(groupID, teamID int64) error

	UpsertGroupMembership(membership *models.GroupMembership) (bool, error)
	ListGroupMemberships(groupID int64) ([]models.GroupMembership, error)
	DeleteGroupMembership(groupID, canvasUserID int64) error
	DeleteStudentMembershipsInCategory(categoryID, studentID, exceptGroupID int64) error
	ListStudentGroupIDsInCategory(categoryID, studentID int64) ([]int64, error)

	GetStudentByCanvasUserID(canvasUserID int64) (*models.Student, error)
	GetStudentByEmail(email string) (*models.Student, error)
	GetStudentByID(id int64) (*models.Student, error)
	CreateStudent(student *models.Student) error
	SetStudentCanvasUserID(studentID, canvasUserID int64) error
	SetStudentTeam(studentID int64, teamID *int64) error

	GetTeamByCanvasGroup(courseID, canvasGroupID int64) (*models.Team, error)
	GetTeamByID(id int64) (*models.Team, error)
	CreateTeam(team *models.Team) error
	UpdateTeamSync(teamID int64, at time.Time) error
	ListTeamMemberCanvasIDs(teamID int64) ([]int64, error)

	FetchGradebook(courseCanvasID int64) ([]GradebookRow, error)
}

// BaseStore provides common functionality for different DB implementations.
// All SQL here is dialect-portable; placeholders go through Converter.
type BaseStore struct {
	DB        *sqlx.DB
	Converter func(string) string
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// ApplyMigrations applies SQL migrations from a directory, translating dialect if needed
func (s *BaseStore) ApplyMigrations(dir string, translateSQL func(string) string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		content, err := os.ReadFile(fmt.Sprintf("%s/%s", dir, file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file.Name(), err)
		}

		sql := string(content)
		if translateSQL != nil {
			sql = translateSQL(sql)
		}

		if _, err := s.DB.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Name(), err)
		}
	}

	return nil
}

// lookupID resolves a single id by natural key. Missing row is not an error,
// it reports created=true for the upsert helpers.
func (s *BaseStore) lookupID(query string, args ...interface{}) (int64, bool, error) {
	var id int64
	err := s.DB.Get(&id, s.Converter(query), args...)
	if err == sql.ErrNoRows {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, false, nil
}

func (s *BaseStore) UpsertCourse(course *models.Course) (bool, error) {
	const byCanvasID = `SELECT id FROM courses WHERE canvas_id = ?`

	id, created, err := s.lookupID(byCanvasID, course.CanvasID)
	if err != nil {
		return false, fmt.Errorf("failed to look up course: %w", err)
	}

	_, err = s.DB.NamedExec(`
		INSERT INTO courses (canvas_id, name, course_code, workflow_state, start_at, end_at)
		VALUES (:canvas_id, :name, :course_code, :workflow_state, :start_at, :end_at)
		ON CONFLICT(canvas_id) DO UPDATE SET
		name = :name,
		course_code = :course_code,
		workflow_state = :workflow_state,
		start_at = :start_at,
		end_at = :end_at
	`, course)
	if err != nil {
		return false, fmt.Errorf("failed to upsert course: %w", err)
	}

	if created {
		if id, _, err = s.lookupID(byCanvasID, course.CanvasID); err != nil {
			return false, fmt.Errorf("failed to read back course id: %w", err)
		}
	}
	course.ID = id
	return created, nil
}

func (s *BaseStore) GetCourseByCanvasID(canvasID int64) (*models.Course, error) {
	var course models.Course
	query := s.Converter(`
		SELECT id, canvas_id, name, course_code, workflow_state, start_at, end_at, last_synced_at
		FROM courses
		WHERE canvas_id = ?
	`)

	err := s.DB.Get(&course, query, canvasID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &course, nil
}

func (s *BaseStore) ListCourses() ([]models.Course, error) {
	var courses []models.Course
	err := s.DB.Select(&courses, `
		SELECT id, canvas_id, name, course_code, workflow_state, start_at, end_at, last_synced_at
		FROM courses
		ORDER BY canvas_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	return courses, nil
}

func (s *BaseStore) UpdateCourseSync(courseID int64, at time.Time) error {
	query := s.Converter(`UPDATE courses SET last_synced_at = ? WHERE id = ?`)
	if _, err := s.DB.Exec(query, at, courseID); err != nil {
		return fmt.Errorf("failed to update course sync time: %w", err)
	}
	return nil
}

// DeleteCourse removes a course and everything hanging off it through
// ON DELETE CASCADE. Students and teams survive, their links go NULL.
func (s *BaseStore) DeleteCourse(canvasID int64) error {
	query := s.Converter(`DELETE FROM courses WHERE canvas_id = ?`)
	if _, err := s.DB.Exec(query, canvasID); err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	return nil
}

// UpsertEnrollment keys on (course_id, canvas_user_id), one row per user per
// course. The Canvas enrollment id is data, not the key: Canvas hands out a
// fresh id when a student is dropped and re-added, and a dual-role user has
// several enrollment records for the same course. The student_id link is
// managed separately and never clobbered by a re-sync.
func (s *BaseStore) UpsertEnrollment(enrollment *models.Enrollment) (bool, error) {
	const byCourseUser = `SELECT id FROM enrollments WHERE course_id = ? AND canvas_user_id = ?`

	id, created, err := s.lookupID(byCourseUser, enrollment.CourseID, enrollment.CanvasUserID)
	if err != nil {
		return false, fmt.Errorf("failed to look up enrollment: %w", err)
	}

	_, err = s.DB.NamedExec(`
		INSERT INTO enrollments (canvas_id, course_id, canvas_user_id, user_name, email, role, state)
		VALUES (:canvas_id, :course_id, :canvas_user_id, :user_name, :email, :role, :state)
		ON CONFLICT(course_id, canvas_user_id) DO UPDATE SET
		canvas_id = :canvas_id,
		user_name = :user_name,
		email = :email,
		role = :role,
		state = :state
	`, enrollment)
	if err != nil {
		return false, fmt.Errorf("failed to upsert enrollment: %w", err)
	}

	if created {
		if id, _, err = s.lookupID(byCourseUser, enrollment.CourseID, enrollment.CanvasUserID); err != nil {
			return false, fmt.Errorf("failed to read back enrollment id: %w", err)
		}
	}
	enrollment.ID = id
	return created, nil
}

func (s *BaseStore) GetEnrollment(courseID, canvasUserID int64) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	query := s.Converter(`
		SELECT id, canvas_id, course_id, canvas_user_id, user_name, email, role, state, student_id
		FROM enrollments
		WHERE course_id = ?
		AND canvas_user_id = ?
	`)

	err := s.DB.Get(&enrollment, query, courseID, canvasUserID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return &enrollment, nil
}

func (s *BaseStore) ListEnrollments(courseID int64) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	query := s.Converter(`
		SELECT id, canvas_id, course_id, canvas_user_id, user_name, email, role, state, student_id
		FROM enrollments
		WHERE course_id = ?
		ORDER BY user_name, canvas_user_id
	`)

	err := s.DB.Select(&enrollments, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return enrollments, nil
}

func (s *BaseStore) LinkEnrollmentStudent(enrollmentID, studentID int64) error {
	query := s.Converter(`UPDATE enrollments SET student_id = ? WHERE id = ?`)
	if _, err := s.DB.Exec(query, studentID, enrollmentID); err != nil {
		return fmt.Errorf("failed to link enrollment to student: %w", err)
	}
	return nil
}

func (s *BaseStore) UpsertAssignment(assignment *models.Assignment) (bool, error) {
	const byCanvasID = `SELECT id FROM assignments WHERE canvas_id = ?`

	id, created, err := s.lookupID(byCanvasID, assignment.CanvasID)
	if err != nil {
		return false, fmt.Errorf("failed to look up assignment: %w", err)
	}

	_, err = s.DB.NamedExec(`
		INSERT INTO assignments (canvas_id, course_id, name, points_possible, due_at, unlock_at, lock_at, published, grading_type)
		VALUES (:canvas_id, :course_id, :name, :points_possible, :due_at, :unlock_at, :lock_at, :published, :grading_type)
		ON CONFLICT(canvas_id) DO UPDATE SET
		name = :name,
		points_possible = :points_possible,
		due_at = :due_at,
		unlock_at = :unlock_at,
		lock_at = :lock_at,
		published = :published,
		grading_type = :grading_type
	`, assignment)
	if err != nil {
		return false, fmt.Errorf("failed to upsert assignment: %w", err)
	}

	if created {
		if id, _, err = s.lookupID(byCanvasID, assignment.CanvasID); err != nil {
			return false, fmt.Errorf("failed to read back assignment id: %w", err)
		}
	}
	assignment.ID = id
	return created, nil
}

func (s *BaseStore) ListAssignments(courseID int64) ([]models.Assignment, error) {
	var assignments []models.Assignment
	query := s.Converter(`
		SELECT id, canvas_id, course_id, name, points_possible, due_at, unlock_at, lock_at, published, grading_type
		FROM assignments
		WHERE course_id = ?
		ORDER BY canvas_id
	`)

	err := s.DB.Select(&assignments, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}

func (s *BaseStore) UpsertRubricCriterion(criterion *models.RubricCriterion) (bool, error) {
	const byNaturalKey = `SELECT id FROM rubric_criteria WHERE assignment_id = ? AND canvas_id = ?`

	id, created, err := s.lookupID(byNaturalKey, criterion.AssignmentID, criterion.CanvasID)
	if err != nil {
		return false, fmt.Errorf("failed to look up rubric criterion: %w", err)
	}

	_, err = s.DB.NamedExec(`
		INSERT INTO rubric_criteria (assignment_id, canvas_id, description, long_description, points, position)
		VALUES (:assignment_id, :canvas_id, :description, :long_description, :points, :position)
		ON CONFLICT(assignment_id, canvas_id) DO UPDATE SET
		description = :description,
		long_description = :long_description,
		points = :points,
		position = :position
	`, criterion)
	if err != nil {
		return false, fmt.Errorf("failed to upsert rubric criterion: %w", err)
	}

	if created {
		if id, _, err = s.lookupID(byNaturalKey, criterion.AssignmentID, criterion.CanvasID); err != nil {
			return false, fmt.Errorf("failed to read back rubric criterion id: %w", err)
		}
	}
	criterion.ID = id
	return created, nil
}

func (s *BaseStore) ListRubricCriteria(assignmentID int64) ([]models.RubricCriterion, error) {
	var criteria []models.RubricCriterion
	query := s.Converter(`
		SELECT id, assignment_id, canvas_id, description, long_description, points, position
		FROM rubric_criteria
		WHERE assignment_id = ?
		ORDER BY position, canvas_id
	`)

	err := s.DB.Select(&criteria, query, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rubric criteria: %w", err)
	}
	return criteria, nil
}

// UpsertSubmission keys on (assignment, enrollment), one submission per
// student per assignment.
func (s *BaseStore) UpsertSubmission(submission *models.Submission) (bool, error) {
	const byNaturalKey = `SELECT id FROM submissions WHERE assignment_id = ? AND enrollment_id = ?`

	id, created, err := s.lookupID(byNaturalKey, submission.AssignmentID, submission.EnrollmentID)
	if err != nil {
		return false, fmt.Errorf("failed to look up submission: %w", err)
	}

	_, err = s.DB.NamedExec(`
		INSERT INTO submissions (canvas_id, assignment_id, enrollment_id, state, score, late, missing, excused, submitted_at, graded_at)
		VALUES (:canvas_id, :assignment_id, :enrollment_id, :state, :score, :late, :missing, :excused, :submitted_at, :graded_at)
		ON CONFLICT(assignment_id, enrollment_id) DO UPDATE SET
		canvas_id = :canvas_id,
		state = :state,
		score = :score,
		late = :late,
		missing = :missing,
		excused = :excused,
		submitted_at = :submitted_at,
		graded_at = :graded_at
	`, submission)
	if err != nil {
		return false, fmt.Errorf("failed to upsert submission: %w", err)
	}

	if created {
		if id, _, err = s.lookupID(byNaturalKey, submission.AssignmentID, submission.EnrollmentID); err != nil {
			return false, fmt.Errorf("failed to read back submission id: %w", err)
		}
	}
	submission.ID = id
	return created, nil
}

func (s *BaseStore) ListSubmissions(assignmentID int64) ([]models.Submission, error) {
	var submissions []models.Submission
	query := s.Converter(`
		SELECT id, canvas_id, assignment_id, enrollment_id, state, score, late, missing, excused, submitted_at, graded_at
		FROM submissions
		WHERE assignment_id = ?
		ORDER BY enrollment_id
	`)

	err := s.DB.Select(&submissions, query, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, nil
}

func (s *BaseStore) UpsertGroupCategory(category *models.GroupCategory) (bool, error) {
	const byCanvasID = `SELECT id FROM group_categories WHERE canvas_id = ?`

	id, created, err := s.lookupID(byCanvasID, category.CanvasID)
	if err != nil {
		return false, fmt.Errorf("failed to look up group category: %w", err)
	}

	_, err = s.DB.NamedExec(`
		INSERT INTO group_categories (canvas_id, course_id, name, self_signup, auto_leader, group_limit)
		VALUES (:canvas_id, :course_id, :name, :self_signup, :auto_leader, :group_limit)
		ON CONFLICT(canvas_id) DO UPDATE SET
		name = :name,
		self_signup = :self_signup,
		auto_leader = :auto_leader,
		group_limit = :group_limit
	`, category)
	if err != nil {
		return false, fmt.Errorf("failed to upsert group category: %w", err)
	}

	if created {
		if id, _, err = s.lookupID(byCanvasID, category.CanvasID); err != nil {
			return false, fmt.Errorf("failed to read back group category id: %w", err)
		}
	}
	category.ID = id
	return created, nil
}

func (s *BaseStore) ListGroupCategories(courseID int64) ([]models.GroupCategory, error) {
	var categories []models.GroupCategory
	query := s.Converter(`
		SELECT id, canvas_id, course_id, name, self_signup, auto_leader, group_limit
		FROM group_categories
		WHERE course_id = ?
		ORDER BY canvas_id
	`)

	err := s.DB.Select(&categories, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group categories: %w", err)
	}
	return categories, nil
}

// UpsertGroup leaves core_team_id alone, the team link is set once via
// LinkGroupTeam and survives re-syncs.
func (s *BaseStore) UpsertGroup(group *models.Group) (bool, error) {
	const byCanvasID = `SELECT id FROM groups WHERE canvas_id = ?`

	id, created, err := s.lookupID(byCanvasID, group.CanvasID)
	if err != nil {
		return false, fmt.Errorf("failed to look up group: %w", err)
	}

	_, err = s.DB.NamedExec(`
		INSERT INTO groups (canvas_id, category_id, name, description)
		VALUES (:canvas_id, :category_id, :name, :description)
		ON CONFLICT(canvas_id) DO UPDATE SET
		category_id = :category_id,
		name = :name,
		description = :description
	`, group)
	if err != nil {
		return false, fmt.Errorf("failed to upsert group: %w", err)
	}

	if created {
		if id, _, err = s.lookupID(byCanvasID, group.CanvasID); err != nil {
			return false, fmt.Errorf("failed to read back group id: %w", err)
		}
	}
	group.ID = id
	return created, nil
}

func (s *BaseStore) GetGroupByCanvasID(canvasID int64) (*models.Group, error) {
	var group models.Group
	query := s.Converter(`
		SELECT id, canvas_id, category_id, name, description, core_team_id
		FROM groups
		WHERE canvas_id = ?
	`)

	err := s.DB.Get(&group, query, canvasID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &group, nil
}

func (s *BaseStore) GetGroupByID(id int64) (*models.Group, error) {
	var group models.Group
	query := s.Converter(`
		SELECT id, canvas_id, category_id, name, description, core_team_id
		FROM groups
		WHERE id = ?
	`)

	err := s.DB.Get(&group, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &group, nil
}

func (s *BaseStore) ListGroups(categoryID int64) ([]models.Group, error) {
	var groups []models.Group
	query := s.Converter(`
		SELECT id, canvas_id, category_id, name, description, core_team_id
		FROM groups
		WHERE category_id = ?
		ORDER BY canvas_id
	`)

	err := s.DB.Select(&groups, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

func (s *BaseStore) LinkGroupTeam(groupID, teamID int64) error {
	query := s.Converter(`UPDATE groups SET core_team_id = ? WHERE id = ?`)
	if _, err := s.DB.Exec(query, teamID, groupID); err != nil {
		return fmt.Errorf("failed to link group to team: %w", err)
	}
	return nil
}

func (s *BaseStore) UpsertGroupMembership(membership *models.GroupMembership) (bool, error) {
	const byNaturalKey = `SELECT id FROM group_memberships WHERE group_id = ? AND canvas_user_id = ?`

	id, created, err := s.lookupID(byNaturalKey, membership.GroupID, membership.CanvasUserID)
	if err != nil {
		return false, fmt.Errorf("failed to look up group membership: %w", err)
	}

	_, err = s.DB.NamedExec(`
		INSERT INTO group_memberships (group_id, canvas_user_id, user_name, student_id)
		VALUES (:group_id, :canvas_user_id, :user_name, :student_id)
		ON CONFLICT(group_id, canvas_user_id) DO UPDATE SET
		user_name = :user_name,
		student_id = :student_id
	`, membership)
	if err != nil {
		return false, fmt.Errorf("failed to upsert group membership: %w", err)
	}

	if created {
		if id, _, err = s.lookupID(byNaturalKey, membership.GroupID, membership.CanvasUserID); err != nil {
			return false, fmt.Errorf("failed to read back group membership id: %w", err)
		}
	}
	membership.ID = id
	return created, nil
}

func (s *BaseStore) ListGroupMemberships(groupID int64) ([]models.GroupMembership, error) {
	var memberships []models.GroupMembership
	query := s.Converter(`
		SELECT id, group_id, canvas_user_id, user_name, student_id
		FROM group_memberships
		WHERE group_id = ?
		ORDER BY canvas_user_id
	`)

	err := s.DB.Select(&memberships, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group memberships: %w", err)
	}
	return memberships, nil
}

func (s *BaseStore) DeleteGroupMembership(groupID, canvasUserID int64) error {
	query := s.Converter(`DELETE FROM group_memberships WHERE group_id = ? AND canvas_user_id = ?`)
	if _, err := s.DB.Exec(query, groupID, canvasUserID); err != nil {
		return fmt.Errorf("failed to delete group membership: %w", err)
	}
	return nil
}

// DeleteStudentMembershipsInCategory enforces one-group-per-category when a
// student moves: every membership in the category except the target group
// goes away.
func (s *BaseStore) DeleteStudentMembershipsInCategory(categoryID, studentID, exceptGroupID int64) error {
	query := s.Converter(`
		DELETE FROM group_memberships
		WHERE student_id = ?
		AND group_id IN (
			SELECT id FROM groups WHERE category_id = ? AND id != ?
		)
	`)
	if _, err := s.DB.Exec(query, studentID, categoryID, exceptGroupID); err != nil {
		return fmt.Errorf("failed to delete stale memberships: %w", err)
	}
	return nil
}

func (s *BaseStore) ListStudentGroupIDsInCategory(categoryID, studentID int64) ([]int64, error) {
	var ids []int64
	query := s.Converter(`
		SELECT gm.group_id
		FROM group_memberships gm
		JOIN groups g ON g.id = gm.group_id
		WHERE g.category_id = ?
		AND gm.student_id = ?
		ORDER BY gm.group_id
	`)

	err := s.DB.Select(&ids, query, categoryID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list student groups: %w", err)
	}
	return ids, nil
}

const studentColumns = `id, first_name, last_name, email, student_no, canvas_user_id, github_username, taiga_username, team_id`

func (s *BaseStore) GetStudentByCanvasUserID(canvasUserID int64) (*models.Student, error) {
	var student models.Student
	query := s.Converter(`SELECT ` + studentColumns + ` FROM students WHERE canvas_user_id = ?`)

	err := s.DB.Get(&student, query, canvasUserID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student by canvas id: %w", err)
	}
	return &student, nil
}

func (s *BaseStore) GetStudentByEmail(email string) (*models.Student, error) {
	var student models.Student
	query := s.Converter(`SELECT ` + studentColumns + ` FROM students WHERE email = ?`)

	err := s.DB.Get(&student, query, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student by email: %w", err)
	}
	return &student, nil
}

func (s *BaseStore) GetStudentByID(id int64) (*models.Student, error) {
	var student models.Student
	query := s.Converter(`SELECT ` + studentColumns + ` FROM students WHERE id = ?`)

	err := s.DB.Get(&student, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return &student, nil
}

// CreateStudent inserts and reads the id back through the unique email,
// lib/pq has no LastInsertId.
func (s *BaseStore) CreateStudent(student *models.Student) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO students (first_name, last_name, email, student_no, canvas_user_id, github_username, taiga_username, team_id)
		VALUES (:first_name, :last_name, :email, :student_no, :canvas_user_id, :github_username, :taiga_username, :team_id)
	`, student)
	if err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}

	id, _, err := s.lookupID(`SELECT id FROM students WHERE email = ?`, student.Email)
	if err != nil {
		return fmt.Errorf("failed to read back student id: %w", err)
	}
	student.ID = id
	return nil
}

func (s *BaseStore) SetStudentCanvasUserID(studentID, canvasUserID int64) error {
	query := s.Converter(`UPDATE students SET canvas_user_id = ? WHERE id = ?`)
	if _, err := s.DB.Exec(query, canvasUserID, studentID); err != nil {
		return fmt.Errorf("failed to set student canvas id: %w", err)
	}
	return nil
}

func (s *BaseStore) SetStudentTeam(studentID int64, teamID *int64) error {
	query := s.Converter(`UPDATE students SET team_id = ? WHERE id = ?`)
	if _, err := s.DB.Exec(query, teamID, studentID); err != nil {
		return fmt.Errorf("failed to set student team: %w", err)
	}
	return nil
}

const teamColumns = `id, name, description, course_id, canvas_group_id, last_synced_at`

func (s *BaseStore) GetTeamByCanvasGroup(courseID, canvasGroupID int64) (*models.Team, error) {
	var team models.Team
	query := s.Converter(`SELECT ` + teamColumns + ` FROM teams WHERE course_id = ? AND canvas_group_id = ?`)

	err := s.DB.Get(&team, query, courseID, canvasGroupID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team by canvas group: %w", err)
	}
	return &team, nil
}

func (s *BaseStore) GetTeamByID(id int64) (*models.Team, error) {
	var team models.Team
	query := s.Converter(`SELECT ` + teamColumns + ` FROM teams WHERE id = ?`)

	err := s.DB.Get(&team, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

// CreateTeam inserts and reads the id back through the canvas group link,
// which the group sync always sets before calling this.
func (s *BaseStore) CreateTeam(team *models.Team) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO teams (name, description, course_id, canvas_group_id)
		VALUES (:name, :description, :course_id, :canvas_group_id)
	`, team)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	if team.CourseID == nil || team.CanvasGroupID == nil {
		return nil
	}
	id, _, err := s.lookupID(`SELECT id FROM teams WHERE course_id = ? AND canvas_group_id = ?`, *team.CourseID, *team.CanvasGroupID)
	if err != nil {
		return fmt.Errorf("failed to read back team id: %w", err)
	}
	team.ID = id
	return nil
}

func (s *BaseStore) UpdateTeamSync(teamID int64, at time.Time) error {
	query := s.Converter(`UPDATE teams SET last_synced_at = ? WHERE id = ?`)
	if _, err := s.DB.Exec(query, at, teamID); err != nil {
		return fmt.Errorf("failed to update team sync time: %w", err)
	}
	return nil
}

func (s *BaseStore) ListTeamMemberCanvasIDs(teamID int64) ([]int64, error) {
	var ids []int64
	query := s.Converter(`
		SELECT canvas_user_id
		FROM students
		WHERE team_id = ?
		AND canvas_user_id IS NOT NULL
		ORDER BY canvas_user_id
	`)

	err := s.DB.Select(&ids, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team member canvas ids: %w", err)
	}
	return ids, nil
}
