package services

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"delivery-tracker/backend/internal/models"
	"delivery-tracker/backend/internal/schedule"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CardUrgentWindow is how far ahead a project card counts open tasks as
// urgent. Unlike the dashboard this uses calendar days.
const CardUrgentWindow = 3 * 24 * time.Hour

type ProjectService interface {
	CreateProject(db *gorm.DB, in ProjectInput) (*models.Project, error)
	UpdateProject(db *gorm.DB, id uuid.UUID, in ProjectUpdate) (*models.Project, error)
	DeleteProject(db *gorm.DB, id uuid.UUID) error
	ListProjectOptions(db *gorm.DB) ([]ProjectRef, error)
	ListProjectCards(db *gorm.DB, now time.Time) ([]ProjectCard, error)
	GetProjectDetail(db *gorm.DB, id uuid.UUID) (*ProjectDetail, error)
	RecalculateProgress(db *gorm.DB, id uuid.UUID, now time.Time) (int, error)
	RefreshAllProgress(db *gorm.DB, now time.Time) (int, error)
	OnChange(l ChangeListener)
}

type ProjectInput struct {
	Name        string
	Description string
	ProjectType string
	Budget      float64
	Currency    string
	PMID        uuid.UUID
	MemberIDs   []uuid.UUID
}

// ProjectUpdate changes only the non-nil fields. A non-nil MemberIDs
// replaces the whole member list.
type ProjectUpdate struct {
	Name        *string
	Description *string
	ProjectType *string
	Budget      *float64
	Currency    *string
	Status      *string
	PMID        *uuid.UUID
	MemberIDs   *[]uuid.UUID
}

type MemberBrief struct {
	ID   uuid.UUID         `json:"id"`
	Name string            `json:"name"`
	Role models.MemberRole `json:"role"`
}

type ProjectCard struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Owner       string             `json:"owner"`
	Progress    int                `json:"progress"`
	Status      models.Status      `json:"status"`
	ProjectType models.ProjectType `json:"project_type"`
	Members     int                `json:"members"`
	UrgentCount int                `json:"urgent_count"`
	Budget      string             `json:"budget"`
	MemberIDs   []uuid.UUID        `json:"member_ids"`
	MemberUsers []MemberBrief      `json:"member_users"`
}

type ProjectDetail struct {
	Project *models.Project `json:"project"`
	Tasks   []TaskNode      `json:"tasks"`
	Members []MemberBrief   `json:"members"`
	Users   []UserOption    `json:"users"`
}

type ProjectServiceImpl struct {
	changeNotifier
	loc *time.Location
}

func NewProjectService(loc *time.Location) *ProjectServiceImpl {
	if loc == nil {
		loc = time.Local
	}
	return &ProjectServiceImpl{loc: loc}
}

func (s *ProjectServiceImpl) CreateProject(db *gorm.DB, in ProjectInput) (*models.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.PMID == uuid.Nil {
		return nil, invalid(msgProjectRequired)
	}
	currency := strings.TrimSpace(in.Currency)
	if currency == "" {
		currency = "USD"
	}
	if in.Budget < 0 || math.IsNaN(in.Budget) {
		in.Budget = 0
	}

	project := &models.Project{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		ProjectType: models.NormalizeProjectType(in.ProjectType),
		Budget:      in.Budget,
		Currency:    currency,
		Status:      models.StatusPending,
		Progress:    0,
		PMID:        in.PMID,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := ensureUserExists(tx, in.PMID, msgPMNotFound); err != nil {
			return err
		}
		if err := tx.Create(project).Error; err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		return setProjectMembers(tx, project.ID, project.PMID, in.MemberIDs)
	})
	if err != nil {
		return nil, err
	}

	s.notify(Change{Entity: EntityProject, ProjectID: project.ID})
	return project, nil
}

func (s *ProjectServiceImpl) UpdateProject(db *gorm.DB, id uuid.UUID, in ProjectUpdate) (*models.Project, error) {
	if id == uuid.Nil {
		return nil, invalid(msgProjectIDRequired)
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		if name := strings.TrimSpace(*in.Name); name != "" {
			updates["name"] = name
		}
	}
	if in.Description != nil {
		updates["description"] = strings.TrimSpace(*in.Description)
	}
	if in.ProjectType != nil {
		updates["project_type"] = models.NormalizeProjectType(*in.ProjectType)
	}
	if in.Budget != nil && *in.Budget >= 0 {
		updates["budget"] = *in.Budget
	}
	if in.Currency != nil && strings.TrimSpace(*in.Currency) != "" {
		updates["currency"] = strings.TrimSpace(*in.Currency)
	}
	if in.Status != nil {
		st, ok := models.ParseStatus(*in.Status)
		if !ok {
			return nil, invalid(msgInvalidStatus)
		}
		updates["status"] = st
	}

	var project models.Project
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&project, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(msgProjectNotFound)
			}
			return err
		}

		pmChanged := false
		if in.PMID != nil && *in.PMID != uuid.Nil && *in.PMID != project.PMID {
			if err := ensureUserExists(tx, *in.PMID, msgPMNotFound); err != nil {
				return err
			}
			updates["pm_id"] = *in.PMID
			pmChanged = true
		}

		if len(updates) > 0 {
			if err := tx.Model(&project).Updates(updates).Error; err != nil {
				return fmt.Errorf("update project: %w", err)
			}
			if err := tx.First(&project, "id = ?", id).Error; err != nil {
				return err
			}
		}

		switch {
		case in.MemberIDs != nil:
			return setProjectMembers(tx, project.ID, project.PMID, *in.MemberIDs)
		case pmChanged:
			return ensureManager(tx, project.ID, project.PMID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(Change{Entity: EntityProject, ProjectID: id})
	return &project, nil
}

// DeleteProject is a soft delete; tasks and logs stay in place.
func (s *ProjectServiceImpl) DeleteProject(db *gorm.DB, id uuid.UUID) error {
	if id == uuid.Nil {
		return invalid(msgProjectIDRequired)
	}
	res := db.Delete(&models.Project{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(msgProjectNotFound)
	}
	s.notify(Change{Entity: EntityProject, ProjectID: id})
	return nil
}

func (s *ProjectServiceImpl) ListProjectOptions(db *gorm.DB) ([]ProjectRef, error) {
	var projects []models.Project
	if err := db.Select("id", "name").Order("name ASC").Find(&projects).Error; err != nil {
		return nil, err
	}
	out := make([]ProjectRef, 0, len(projects))
	for _, p := range projects {
		out = append(out, ProjectRef{ID: p.ID, Name: p.Name})
	}
	return out, nil
}

func (s *ProjectServiceImpl) ListProjectCards(db *gorm.DB, now time.Time) ([]ProjectCard, error) {
	var projects []models.Project
	err := db.Preload("PM").
		Preload("Members", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		Preload("Members.User").
		Order("updated_at DESC").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}

	urgent, err := urgentCounts(db, now.Add(CardUrgentWindow))
	if err != nil {
		return nil, err
	}

	cards := make([]ProjectCard, 0, len(projects))
	for _, p := range projects {
		card := ProjectCard{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Progress:    p.Progress,
			Status:      p.Status.Normalized(),
			ProjectType: p.ProjectType,
			UrgentCount: urgent[p.ID],
			Budget:      FormatBudget(p.Budget),
			MemberIDs:   make([]uuid.UUID, 0, len(p.Members)),
			MemberUsers: make([]MemberBrief, 0, 3),
		}
		if p.PM != nil {
			card.Owner = p.PM.Name
		}
		for _, m := range p.Members {
			if m.User == nil {
				continue
			}
			card.Members++
			card.MemberIDs = append(card.MemberIDs, m.UserID)
			if len(card.MemberUsers) < 3 {
				card.MemberUsers = append(card.MemberUsers, MemberBrief{ID: m.UserID, Name: m.User.Name, Role: m.Role})
			}
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// urgentCounts counts open tasks due on or before until, per project.
func urgentCounts(db *gorm.DB, until time.Time) (map[uuid.UUID]int, error) {
	var rows []struct {
		ProjectID uuid.UUID
		Count     int
	}
	err := db.Model(&models.Task{}).
		Select("project_id, COUNT(*) AS count").
		Where("status NOT IN ? AND due_date IS NOT NULL AND due_date <= ?", doneLabels(), until.UTC()).
		Group("project_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		out[r.ProjectID] = r.Count
	}
	return out, nil
}

func doneLabels() []string {
	return []string{string(models.StatusDone), "完成", "done"}
}

func (s *ProjectServiceImpl) GetProjectDetail(db *gorm.DB, id uuid.UUID) (*ProjectDetail, error) {
	var project models.Project
	err := db.Preload("PM").Preload("Members.User").First(&project, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(msgProjectNotFound)
		}
		return nil, err
	}

	tree, err := loadTaskTree(db, id, s.loc)
	if err != nil {
		return nil, err
	}

	var users []models.User
	if err := db.Where("is_active = ?", true).Order("name ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	options := make([]UserOption, 0, len(users))
	for _, u := range users {
		options = append(options, UserOption{ID: u.ID, Name: u.Name, Email: u.Email, Title: u.Title})
	}

	members := make([]MemberBrief, 0, len(project.Members))
	for _, m := range project.Members {
		if m.User != nil {
			members = append(members, MemberBrief{ID: m.UserID, Name: m.User.Name, Role: m.Role})
		}
	}
	project.Members = nil

	return &ProjectDetail{Project: &project, Tasks: tree, Members: members, Users: options}, nil
}

func (s *ProjectServiceImpl) RecalculateProgress(db *gorm.DB, id uuid.UUID, now time.Time) (int, error) {
	var progress int
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		progress, err = recalculateProgress(tx, id, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notify(Change{Entity: EntityProject, ProjectID: id})
	return progress, nil
}

// RefreshAllProgress recomputes every live project. In-progress work gains
// progress with time alone, so this runs periodically. It returns the number
// of projects refreshed.
func (s *ProjectServiceImpl) RefreshAllProgress(db *gorm.DB, now time.Time) (int, error) {
	var ids []uuid.UUID
	if err := db.Model(&models.Project{}).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, err := recalculateProgress(db, id, now); err != nil {
			return 0, fmt.Errorf("refresh project %s: %w", id, err)
		}
	}
	if len(ids) > 0 {
		s.notify(Change{Entity: EntityProject})
	}
	return len(ids), nil
}

// recalculateProgress reads the top-level tasks of a project with their
// children and writes the duration weighted progress back.
func recalculateProgress(tx *gorm.DB, projectID uuid.UUID, now time.Time) (int, error) {
	var tasks []models.Task
	err := tx.Where("project_id = ? AND parent_id IS NULL", projectID).
		Preload("Children").
		Find(&tasks).Error
	if err != nil {
		return 0, err
	}

	top := make([]schedule.TopLevelTask, 0, len(tasks))
	for _, t := range tasks {
		tl := schedule.TopLevelTask{Leaf: leafOf(t)}
		for _, c := range t.Children {
			tl.Children = append(tl.Children, leafOf(c))
		}
		top = append(top, tl)
	}

	progress := schedule.ProjectProgress(top, now)
	err = tx.Model(&models.Project{}).Where("id = ?", projectID).Update("progress", progress).Error
	if err != nil {
		return 0, fmt.Errorf("save progress: %w", err)
	}
	return progress, nil
}

func leafOf(t models.Task) schedule.Leaf {
	return schedule.Leaf{Status: t.Status, StartDate: t.StartDate, DueDate: t.DueDate}
}

// FormatBudget renders a budget the way project cards show it.
func FormatBudget(budget float64) string {
	switch {
	case budget <= 0:
		return "$0"
	case budget >= 1000000:
		return fmt.Sprintf("$%.1fM", budget/1000000)
	case budget >= 1000:
		return fmt.Sprintf("$%.0fK", budget/1000)
	default:
		return "$" + strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", budget), "0"), ".")
	}
}

func ensureUserExists(tx *gorm.DB, id uuid.UUID, message string) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return invalid(message)
	}
	return nil
}

// setProjectMembers replaces the member list. The PM is always a member and
// the only Manager.
func setProjectMembers(tx *gorm.DB, projectID, pmID uuid.UUID, memberIDs []uuid.UUID) error {
	ids := uniqueIDs(append([]uuid.UUID{pmID}, memberIDs...))

	var count int64
	if err := tx.Model(&models.User{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
		return err
	}
	if int(count) != len(ids) {
		return invalid(msgUserNotFound)
	}

	if err := tx.Where("project_id = ?", projectID).Delete(&models.ProjectMember{}).Error; err != nil {
		return err
	}
	members := make([]models.ProjectMember, 0, len(ids))
	for _, uid := range ids {
		role := models.MemberRoleMember
		if uid == pmID {
			role = models.MemberRoleManager
		}
		members = append(members, models.ProjectMember{ProjectID: projectID, UserID: uid, Role: role})
	}
	return tx.Create(&members).Error
}

// ensureManager makes userID the single Manager of the project, adding the
// membership when missing.
func ensureManager(tx *gorm.DB, projectID, userID uuid.UUID) error {
	err := tx.Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id <> ? AND role = ?", projectID, userID, models.MemberRoleManager).
		Update("role", models.MemberRoleMember).Error
	if err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"role": models.MemberRoleManager}),
	}).Create(&models.ProjectMember{ProjectID: projectID, UserID: userID, Role: models.MemberRoleManager}).Error
}
