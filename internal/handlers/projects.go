package handlers

import (
	"net/http"
	"strconv"
	"time"

	"delivery-tracker/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// ProgressQueue schedules a recompute on the background worker.
type ProgressQueue interface {
	EnqueueRecompute(projectID uuid.UUID) error
}

type ProjectHandler struct {
	db       *gorm.DB
	projects services.ProjectService
	queue    ProgressQueue
	now      func() time.Time
}

func NewProjectHandler(db *gorm.DB, projects services.ProjectService, now func() time.Time) *ProjectHandler {
	if now == nil {
		now = time.Now
	}
	return &ProjectHandler{db: db, projects: projects, now: now}
}

// WithProgressQueue lets RecalculateProgress hand work to the worker when the
// caller asks for ?async=true. A nil queue keeps every call synchronous.
func (h *ProjectHandler) WithProgressQueue(q ProgressQueue) *ProjectHandler {
	h.queue = q
	return h
}

type createProjectRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ProjectType string   `json:"project_type"`
	Budget      float64  `json:"budget"`
	Currency    string   `json:"currency"`
	PMID        string   `json:"pm_id"`
	MemberIDs   []string `json:"member_ids"`
}

type updateProjectRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	ProjectType *string   `json:"project_type"`
	Budget      *float64  `json:"budget"`
	Currency    *string   `json:"currency"`
	Status      *string   `json:"status"`
	PMID        *string   `json:"pm_id"`
	MemberIDs   *[]string `json:"member_ids"`
}

func (h *ProjectHandler) ListProjects(c *gin.Context) {
	cards, err := h.projects.ListProjectCards(h.db.WithContext(c.Request.Context()), h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

func (h *ProjectHandler) ListProjectOptions(c *gin.Context) {
	options, err := h.projects.ListProjectOptions(h.db.WithContext(c.Request.Context()))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, options)
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.projects.GetProjectDetail(h.db.WithContext(c.Request.Context()), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pmID, err := parseOptionalID(&req.PMID)
	if err != nil {
		respondError(c, err)
		return
	}
	memberIDs, err := parseIDs(req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	in := services.ProjectInput{
		Name:        req.Name,
		Description: req.Description,
		ProjectType: req.ProjectType,
		Budget:      req.Budget,
		Currency:    req.Currency,
		MemberIDs:   memberIDs,
	}
	if pmID != nil {
		in.PMID = *pmID
	}

	project, err := h.projects.CreateProject(h.db.WithContext(c.Request.Context()), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	in := services.ProjectUpdate{
		Name:        req.Name,
		Description: req.Description,
		ProjectType: req.ProjectType,
		Budget:      req.Budget,
		Currency:    req.Currency,
		Status:      req.Status,
	}
	var err error
	if in.PMID, err = parseOptionalID(req.PMID); err != nil {
		respondError(c, err)
		return
	}
	if req.MemberIDs != nil {
		var ids []uuid.UUID
		if ids, err = parseIDs(*req.MemberIDs); err != nil {
			respondError(c, err)
			return
		}
		in.MemberIDs = &ids
	}

	project, err := h.projects.UpdateProject(h.db.WithContext(c.Request.Context()), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.projects.DeleteProject(h.db.WithContext(c.Request.Context()), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RecalculateProgress recomputes the project's progress immediately, or
// queues the recompute and answers 202 when async is requested and a queue
// is configured.
func (h *ProjectHandler) RecalculateProgress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if async, _ := strconv.ParseBool(c.Query("async")); async && h.queue != nil {
		if err := h.queue.EnqueueRecompute(id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "queued"})
		return
	}
	progress, err := h.projects.RecalculateProgress(h.db.WithContext(c.Request.Context()), id, h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "progress": progress})
}
