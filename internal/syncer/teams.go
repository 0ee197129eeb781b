package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/lussekatt/internal/canvas"
	"github.com/shrimpsizemoose/lussekatt/internal/models"
)

const (
	teamNameMax         = 128
	teamDescriptionMax  = 512
	placeholderEmailTpl = "external-user-%d@example.com"
)

// SyncGroups pulls every group set of a course and mirrors it into local
// teams: one team per Canvas group, membership following Canvas.
func (s *Syncer) SyncGroups(ctx context.Context, course *models.Course) error {
	categories, err := s.canvas.ListGroupCategories(ctx, course.CanvasID)
	if err != nil {
		return err
	}

	for _, remoteCategory := range categories {
		category, err := s.saveGroupCategory(course.ID, remoteCategory)
		if err != nil {
			return err
		}

		groups, err := s.canvas.ListGroups(ctx, remoteCategory.ID)
		if err != nil {
			return err
		}

		for _, remoteGroup := range groups {
			group, err := s.saveGroup(category.ID, remoteGroup)
			if err != nil {
				return err
			}

			team, err := s.ensureTeam(course, group, remoteGroup)
			if err != nil {
				return err
			}

			if err := s.syncTeamMembers(ctx, course, category, group, team); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureTeam finds or creates the local team mirroring a Canvas group and
// keeps the two linked in both directions.
func (s *Syncer) ensureTeam(course *models.Course, group *models.Group, remote canvas.Group) (*models.Team, error) {
	team, err := s.store.GetTeamByCanvasGroup(course.ID, group.CanvasID)
	if err != nil {
		return nil, err
	}

	if team == nil {
		name := truncate(remote.Name, teamNameMax)
		if name == "" {
			name = fmt.Sprintf("Group %d", group.CanvasID)
		}
		team = &models.Team{
			Name:          name,
			Description:   truncate(remote.Description, teamDescriptionMax),
			CourseID:      &course.ID,
			CanvasGroupID: &group.CanvasID,
		}
		if err := s.store.CreateTeam(team); err != nil {
			return nil, err
		}
		logger.Info.Printf("Created team %q for canvas group %d", team.Name, group.CanvasID)
	}

	if group.CoreTeamID == nil || *group.CoreTeamID != team.ID {
		if err := s.store.LinkGroupTeam(group.ID, team.ID); err != nil {
			return nil, err
		}
		group.CoreTeamID = &team.ID
	}
	return team, nil
}

func (s *Syncer) syncTeamMembers(ctx context.Context, course *models.Course, category *models.GroupCategory, group *models.Group, team *models.Team) error {
	users, err := s.canvas.ListGroupUsers(ctx, group.CanvasID)
	if err != nil {
		return err
	}

	remote := make(map[int64]bool, len(users))
	for _, user := range users {
		remote[user.ID] = true

		student, err := s.resolveStudent(course, user)
		if err != nil {
			logger.Error.Printf("Could not resolve student for canvas user %d (%s): %v", user.ID, user.Name, err)
			continue
		}

		membership := &models.GroupMembership{
			GroupID:      group.ID,
			CanvasUserID: user.ID,
			UserName:     user.Name,
			StudentID:    &student.ID,
		}
		if _, err := s.store.UpsertGroupMembership(membership); err != nil {
			return err
		}

		// One group per category: joining here evicts the student everywhere else
		if err := s.store.DeleteStudentMembershipsInCategory(category.ID, student.ID, group.ID); err != nil {
			return err
		}

		if student.TeamID == nil || *student.TeamID != team.ID {
			if err := s.store.SetStudentTeam(student.ID, &team.ID); err != nil {
				return err
			}
		}
	}

	// Drop local members who left the Canvas group
	memberships, err := s.store.ListGroupMemberships(group.ID)
	if err != nil {
		return err
	}
	for _, m := range memberships {
		if remote[m.CanvasUserID] {
			continue
		}
		if err := s.store.DeleteGroupMembership(group.ID, m.CanvasUserID); err != nil {
			return err
		}
		if m.StudentID == nil {
			continue
		}
		student, err := s.store.GetStudentByID(*m.StudentID)
		if err != nil {
			return err
		}
		if student != nil && student.TeamID != nil && *student.TeamID == team.ID {
			if err := s.store.SetStudentTeam(student.ID, nil); err != nil {
				return err
			}
		}
	}

	return s.store.UpdateTeamSync(team.ID, time.Now().UTC())
}

// resolveStudent maps a Canvas user to a local student, trying in order:
// direct canvas id, the enrollment's linked student, email match, and
// finally creating a fresh record. Matches found through the fallbacks get
// their canvas id backfilled so the next sync takes the fast path.
func (s *Syncer) resolveStudent(course *models.Course, user canvas.GroupUser) (*models.Student, error) {
	student, err := s.store.GetStudentByCanvasUserID(user.ID)
	if err != nil {
		return nil, err
	}
	if student != nil {
		return student, nil
	}

	enrollment, err := s.store.GetEnrollment(course.ID, user.ID)
	if err != nil {
		return nil, err
	}

	if enrollment != nil && enrollment.StudentID != nil {
		student, err = s.store.GetStudentByID(*enrollment.StudentID)
		if err != nil {
			return nil, err
		}
		if student != nil {
			if student.CanvasUserID == nil {
				if err := s.store.SetStudentCanvasUserID(student.ID, user.ID); err != nil {
					return nil, err
				}
				student.CanvasUserID = &user.ID
			}
			return student, nil
		}
	}

	if enrollment != nil && enrollment.Email != "" {
		student, err = s.store.GetStudentByEmail(enrollment.Email)
		if err != nil {
			return nil, err
		}
		if student != nil {
			if student.CanvasUserID == nil {
				if err := s.store.SetStudentCanvasUserID(student.ID, user.ID); err != nil {
					return nil, err
				}
				student.CanvasUserID = &user.ID
			}
			if enrollment.StudentID == nil {
				if err := s.store.LinkEnrollmentStudent(enrollment.ID, student.ID); err != nil {
					return nil, err
				}
			}
			return student, nil
		}
	}

	name := user.Name
	if name == "" && enrollment != nil {
		name = enrollment.UserName
	}
	first, last := splitName(name)

	email := fmt.Sprintf(placeholderEmailTpl, user.ID)
	if enrollment != nil && enrollment.Email != "" {
		email = enrollment.Email
	}

	student = &models.Student{
		FirstName:    first,
		LastName:     last,
		Email:        email,
		CanvasUserID: &user.ID,
	}
	if err := s.store.CreateStudent(student); err != nil {
		return nil, err
	}
	logger.Info.Printf("Created student %s %s for canvas user %d", first, last, user.ID)

	if enrollment != nil && enrollment.StudentID == nil {
		if err := s.store.LinkEnrollmentStudent(enrollment.ID, student.ID); err != nil {
			return nil, err
		}
	}
	return student, nil
}

// PushTeamRoster replaces the Canvas group member list with the current
// local team roster. Members without a canvas account are left out.
func (s *Syncer) PushTeamRoster(ctx context.Context, teamID int64) error {
	team, err := s.store.GetTeamByID(teamID)
	if err != nil {
		return err
	}
	if team == nil {
		return fmt.Errorf("team %d not found", teamID)
	}
	if team.CanvasGroupID == nil {
		return fmt.Errorf("team %d has no linked canvas group", teamID)
	}

	ids, err := s.store.ListTeamMemberCanvasIDs(team.ID)
	if err != nil {
		return err
	}

	if err := s.canvas.ReplaceGroupMembers(ctx, *team.CanvasGroupID, ids); err != nil {
		return err
	}
	logger.Info.Printf("Pushed %d members to canvas group %d", len(ids), *team.CanvasGroupID)

	return s.store.UpdateTeamSync(team.ID, time.Now().UTC())
}

// Reassignment moves a student into a group within one category. A nil
// GroupID removes the student from every group in the category.
type Reassignment struct {
	StudentID int64  `json:"student_id"`
	GroupID   *int64 `json:"group_id"`
}

type ReassignmentResult struct {
	Applied        int      `json:"applied"`
	Errors         []string `json:"errors,omitempty"`
	ModifiedGroups []int64  `json:"modified_groups,omitempty"`
}

// ApplyReassignments applies manual group moves. Failures are collected per
// move, the rest still goes through.
func (s *Syncer) ApplyReassignments(categoryID int64, moves []Reassignment) ReassignmentResult {
	result := ReassignmentResult{}
	modified := make(map[int64]bool)

	for _, move := range moves {
		student, err := s.store.GetStudentByID(move.StudentID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("student %d: %v", move.StudentID, err))
			continue
		}
		if student == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("student %d: not found", move.StudentID))
			continue
		}

		previous, err := s.store.ListStudentGroupIDsInCategory(categoryID, student.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("student %d: %v", move.StudentID, err))
			continue
		}

		if move.GroupID == nil {
			// 0 matches no group id, so everything in the category goes
			if err := s.store.DeleteStudentMembershipsInCategory(categoryID, student.ID, 0); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("student %d: %v", move.StudentID, err))
				continue
			}
			for _, id := range previous {
				modified[id] = true
			}
			result.Applied++
			continue
		}

		group, err := s.store.GetGroupByID(*move.GroupID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("student %d: %v", move.StudentID, err))
			continue
		}
		if group == nil || group.CategoryID != categoryID {
			result.Errors = append(result.Errors, fmt.Sprintf("student %d: group %d not in category", move.StudentID, *move.GroupID))
			continue
		}
		if student.CanvasUserID == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("student %d: no canvas account", move.StudentID))
			continue
		}

		membership := &models.GroupMembership{
			GroupID:      group.ID,
			CanvasUserID: *student.CanvasUserID,
			UserName:     strings.TrimSpace(student.FirstName + " " + student.LastName),
			StudentID:    &student.ID,
		}
		if _, err := s.store.UpsertGroupMembership(membership); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("student %d: %v", move.StudentID, err))
			continue
		}
		if err := s.store.DeleteStudentMembershipsInCategory(categoryID, student.ID, group.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("student %d: %v", move.StudentID, err))
			continue
		}

		for _, id := range previous {
			if id != group.ID {
				modified[id] = true
			}
		}
		modified[group.ID] = true
		result.Applied++
	}

	for id := range modified {
		result.ModifiedGroups = append(result.ModifiedGroups, id)
	}
	sort.Slice(result.ModifiedGroups, func(i, j int) bool {
		return result.ModifiedGroups[i] < result.ModifiedGroups[j]
	})
	return result
}

func splitName(full string) (string, string) {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "Unknown", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
