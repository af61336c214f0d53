package services

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"delivery-tracker/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// EffortCSVHeader is the first line of the exported effort report.
var EffortCSVHeader = []string{"项目名称", "任务名称", "负责人", "开发人天", "测试人天", "合计"}

type ReportService interface {
	EffortReport(db *gorm.DB, projectID *uuid.UUID) (*EffortReport, error)
}

type EffortRow struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	ProjectID     uuid.UUID  `json:"project_id"`
	ProjectName   string     `json:"project_name"`
	ParentID      *uuid.UUID `json:"parent_id"`
	AssigneeNames string     `json:"assignee_names"`
	DevManDays    float64    `json:"dev_man_days"`
	TestManDays   float64    `json:"test_man_days"`
	Total         float64    `json:"total"`
}

type EffortSummary struct {
	DevManDays  float64 `json:"dev_man_days"`
	TestManDays float64 `json:"test_man_days"`
	Total       float64 `json:"total"`
}

type EffortReport struct {
	Projects []ProjectRef  `json:"projects"`
	Rows     []EffortRow   `json:"rows"`
	Summary  EffortSummary `json:"summary"`
}

type ReportServiceImpl struct{}

func NewReportService() *ReportServiceImpl {
	return &ReportServiceImpl{}
}

// EffortReport lists every task of live projects, each parent followed by
// its children. A non-nil projectID narrows the rows, not the project list.
func (s *ReportServiceImpl) EffortReport(db *gorm.DB, projectID *uuid.UUID) (*EffortReport, error) {
	var projects []models.Project
	if err := db.Select("id", "name").Order("name ASC").Find(&projects).Error; err != nil {
		return nil, err
	}

	report := &EffortReport{
		Projects: make([]ProjectRef, 0, len(projects)),
		Rows:     make([]EffortRow, 0),
	}
	names := make(map[uuid.UUID]string, len(projects))
	rank := make(map[uuid.UUID]int, len(projects))
	for i, p := range projects {
		report.Projects = append(report.Projects, ProjectRef{ID: p.ID, Name: p.Name})
		names[p.ID] = p.Name
		rank[p.ID] = i
	}

	q := db.Joins("JOIN projects ON projects.id = tasks.project_id AND projects.deleted_at IS NULL").
		Preload("Owner").
		Preload("Owners", ownerOrder).Preload("Owners.User").
		Order("tasks.sort_order ASC")
	if projectID != nil && *projectID != uuid.Nil {
		q = q.Where("tasks.project_id = ?", *projectID)
	}
	var tasks []models.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, err
	}

	children := make(map[uuid.UUID][]models.Task)
	top := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ParentID == nil {
			top = append(top, t)
			continue
		}
		children[*t.ParentID] = append(children[*t.ParentID], t)
	}
	sort.SliceStable(top, func(i, j int) bool {
		return rank[top[i].ProjectID] < rank[top[j].ProjectID]
	})

	for _, parent := range top {
		report.add(effortRow(parent, names))
		for _, c := range children[parent.ID] {
			report.add(effortRow(c, names))
		}
	}
	return report, nil
}

func (r *EffortReport) add(row EffortRow) {
	r.Rows = append(r.Rows, row)
	r.Summary.DevManDays += row.DevManDays
	r.Summary.TestManDays += row.TestManDays
	r.Summary.Total += row.Total
}

func effortRow(t models.Task, names map[uuid.UUID]string) EffortRow {
	return EffortRow{
		ID:            t.ID,
		Name:          t.Name,
		ProjectID:     t.ProjectID,
		ProjectName:   names[t.ProjectID],
		ParentID:      t.ParentID,
		AssigneeNames: strings.Join(t.OwnerNames(), ", "),
		DevManDays:    t.DevManDays,
		TestManDays:   t.TestManDays,
		Total:         t.DevManDays + t.TestManDays,
	}
}

// EffortCSVFilename is the download name for a report exported on day.
func EffortCSVFilename(day time.Time) string {
	return fmt.Sprintf("Effort-Report-%s.csv", day.Format(DateLayout))
}

// WriteEffortCSV writes rows with a UTF-8 BOM so spreadsheet tools pick the
// right encoding. Lines are separated by a bare "\n".
func WriteEffortCSV(w io.Writer, rows []EffortRow) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("\ufeff"); err != nil {
		return err
	}
	writeCSVLine(bw, EffortCSVHeader)
	for _, r := range rows {
		bw.WriteString("\n")
		writeCSVLine(bw, []string{
			r.ProjectName,
			r.Name,
			r.AssigneeNames,
			formatManDays(r.DevManDays),
			formatManDays(r.TestManDays),
			formatManDays(r.Total),
		})
	}
	return bw.Flush()
}

func writeCSVLine(w *bufio.Writer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteString(escapeCSVCell(c))
	}
}

// escapeCSVCell quotes cells holding a comma, quote or line break.
func escapeCSVCell(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatManDays(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
