package services

import (
	"sort"
	"strings"
	"time"

	"delivery-tracker/backend/internal/models"
	"delivery-tracker/backend/internal/schedule"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// Unassigned is shown for urgent tasks without any owner.
const Unassigned = "未分配"

type DashboardService interface {
	Overview(db *gorm.DB, now time.Time) (*Overview, error)
}

type Overview struct {
	UrgentCount int          `json:"urgent_count"`
	Urgent      []UrgentItem `json:"urgent"`
	Gantt       []GanttItem  `json:"gantt"`
}

type UrgentItem struct {
	ID        uuid.UUID       `json:"id"`
	Title     string          `json:"title"`
	Project   string          `json:"project"`
	Due       string          `json:"due"`
	DaysLeft  int             `json:"days_left"`
	Status    models.Status   `json:"status"`
	Priority  models.Priority `json:"priority"`
	Owner     string          `json:"owner"`
	NoDueDate bool            `json:"no_due_date"`

	urgency schedule.Urgency
}

type GanttItem struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Project   string        `json:"project"`
	ProjectID uuid.UUID     `json:"project_id"`
	Status    models.Status `json:"status"`
	StartDate *string       `json:"start_date"`
	EndDate   *string       `json:"end_date"`
}

type DashboardServiceImpl struct {
	loc *time.Location
}

func NewDashboardService(loc *time.Location) *DashboardServiceImpl {
	if loc == nil {
		loc = time.Local
	}
	return &DashboardServiceImpl{loc: loc}
}

type openParent struct {
	task      models.Task
	effective schedule.Effective
}

func (s *DashboardServiceImpl) Overview(db *gorm.DB, now time.Time) (*Overview, error) {
	now = now.In(s.loc)

	var tasks []models.Task
	err := db.Joins("JOIN projects ON projects.id = tasks.project_id AND projects.deleted_at IS NULL").
		Where("tasks.parent_id IS NULL AND tasks.status NOT IN ?", doneLabels()).
		Preload("Project").
		Preload("Owner").
		Preload("Owners", ownerOrder).Preload("Owners.User").
		Preload("Children").
		Order("tasks.due_date IS NULL, tasks.due_date ASC, tasks.sort_order ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}

	open := make([]openParent, 0, len(tasks))
	for _, t := range tasks {
		children := make([]schedule.Node, 0, len(t.Children))
		for _, c := range t.Children {
			children = append(children, schedule.Node{Status: c.Status, StartDate: c.StartDate, DueDate: c.DueDate})
		}
		eff := schedule.RollUp(schedule.Node{Status: t.Status, StartDate: t.StartDate, DueDate: t.DueDate}, children)
		if eff.Status.IsDone() {
			continue
		}
		open = append(open, openParent{task: t, effective: eff})
	}

	out := &Overview{
		Urgent: make([]UrgentItem, 0),
		Gantt:  make([]GanttItem, 0, len(open)),
	}

	for _, p := range open {
		if !schedule.IsUrgent(now, p.effective.DueDate) {
			continue
		}
		u := schedule.UrgencyOf(now, p.effective.DueDate)
		owner := strings.Join(p.task.OwnerNames(), ", ")
		if owner == "" {
			owner = Unassigned
		}
		out.Urgent = append(out.Urgent, UrgentItem{
			ID:        p.task.ID,
			Title:     p.task.Name,
			Project:   projectName(p.task.Project),
			Due:       u.DueText(),
			DaysLeft:  u.DaysLeft,
			Status:    p.effective.Status,
			Priority:  urgentPriority(p.task.Priority),
			Owner:     owner,
			NoDueDate: !u.HasDue,
			urgency:   u,
		})
	}
	schedule.SortUrgent(out.Urgent, func(i UrgentItem) schedule.Urgency { return i.urgency })
	out.UrgentCount = len(out.Urgent)

	sort.SliceStable(open, func(i, j int) bool {
		a, b := open[i], open[j]
		if a.task.ProjectID != b.task.ProjectID {
			an, bn := projectName(a.task.Project), projectName(b.task.Project)
			if an != bn {
				return an < bn
			}
			return a.task.ProjectID.String() < b.task.ProjectID.String()
		}
		ad, bd := a.effective.DueDate, b.effective.DueDate
		switch {
		case ad == nil:
			return false
		case bd == nil:
			return true
		default:
			return ad.Before(*bd)
		}
	})
	for _, p := range open {
		out.Gantt = append(out.Gantt, GanttItem{
			ID:        p.task.ID,
			Name:      p.task.Name,
			Project:   projectName(p.task.Project),
			ProjectID: p.task.ProjectID,
			Status:    p.effective.Status,
			StartDate: dateString(p.effective.StartDate, s.loc),
			EndDate:   dateString(p.effective.DueDate, s.loc),
		})
	}
	return out, nil
}

// urgentPriority folds Low into Medium the way urgent cards display it.
func urgentPriority(p models.Priority) models.Priority {
	switch p {
	case models.PriorityCritical, models.PriorityHigh:
		return p
	default:
		return models.PriorityMedium
	}
}

func projectName(p *models.Project) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func dateString(t *time.Time, loc *time.Location) *string {
	if t == nil {
		return nil
	}
	s := FormatDate(t, loc)
	return &s
}
