package handlers

import (
	"fmt"
	"net/http"
	"time"

	"delivery-tracker/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// ReportHandler serves the dashboard and the effort report. Both are
// usually backed by services.CachedReportService.
type ReportHandler struct {
	db        *gorm.DB
	dashboard services.DashboardService
	reports   services.ReportService
	loc       *time.Location
	now       func() time.Time
}

func NewReportHandler(db *gorm.DB, dashboard services.DashboardService, reports services.ReportService, loc *time.Location, now func() time.Time) *ReportHandler {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &ReportHandler{db: db, dashboard: dashboard, reports: reports, loc: loc, now: now}
}

func (h *ReportHandler) Dashboard(c *gin.Context) {
	overview, err := h.dashboard.Overview(h.db.WithContext(c.Request.Context()), h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// projectFilter reads ?project_id=. Empty and "all" mean every project.
func projectFilter(c *gin.Context) (*uuid.UUID, bool) {
	raw := c.Query("project_id")
	if raw == "" || raw == "all" {
		return nil, true
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
		return nil, false
	}
	return &id, true
}

func (h *ReportHandler) EffortReport(c *gin.Context) {
	projectID, ok := projectFilter(c)
	if !ok {
		return
	}
	report, err := h.reports.EffortReport(h.db.WithContext(c.Request.Context()), projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ExportEffortCSV downloads the rows of EffortReport as CSV.
func (h *ReportHandler) ExportEffortCSV(c *gin.Context) {
	projectID, ok := projectFilter(c)
	if !ok {
		return
	}
	report, err := h.reports.EffortReport(h.db.WithContext(c.Request.Context()), projectID)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := services.EffortCSVFilename(h.now().In(h.loc))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Status(http.StatusOK)
	if err := services.WriteEffortCSV(c.Writer, report.Rows); err != nil {
		_ = c.Error(err)
	}
}
