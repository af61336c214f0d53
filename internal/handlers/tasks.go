package handlers

import (
	"net/http"
	"time"

	"delivery-tracker/backend/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type TaskHandler struct {
	db          *gorm.DB
	taskService services.TaskService
	loc         *time.Location
}

// NewTaskHandler reads date-only fields in loc.
func NewTaskHandler(db *gorm.DB, taskService services.TaskService, loc *time.Location) *TaskHandler {
	if loc == nil {
		loc = time.Local
	}
	return &TaskHandler{db: db, taskService: taskService, loc: loc}
}

type createTaskRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Remark      string   `json:"remark"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	StartDate   *string  `json:"start_date"`
	DueDate     *string  `json:"due_date"`
	OwnerID     *string  `json:"owner_id"`
	OwnerIDs    []string `json:"owner_ids"`
	DevManDays  float64  `json:"dev_man_days"`
	TestManDays float64  `json:"test_man_days"`
}

type updateParentRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Remark      *string  `json:"remark"`
	Status      *string  `json:"status"`
	Priority    *string  `json:"priority"`
	StartDate   *string  `json:"start_date"`
	DueDate     *string  `json:"due_date"`
	OwnerID     *string  `json:"owner_id"`
	DevManDays  *float64 `json:"dev_man_days"`
	TestManDays *float64 `json:"test_man_days"`
}

type updateSubTaskRequest struct {
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	StartDate   *string  `json:"start_date"`
	DueDate     *string  `json:"due_date"`
	OwnerIDs    []string `json:"owner_ids"`
	Description *string  `json:"description"`
	Remark      *string  `json:"remark"`
	Priority    *string  `json:"priority"`
	DevManDays  *float64 `json:"dev_man_days"`
	TestManDays *float64 `json:"test_man_days"`
}

func (h *TaskHandler) dates(start, due *string) (*time.Time, *time.Time, error) {
	s, err := parseDate(start, h.loc)
	if err != nil {
		return nil, nil, err
	}
	d, err := parseDate(due, h.loc)
	if err != nil {
		return nil, nil, err
	}
	return s, d, nil
}

// CreateParentTask adds a top-level task to the project in the path.
func (h *TaskHandler) CreateParentTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	start, due, err := h.dates(req.StartDate, req.DueDate)
	if err != nil {
		respondError(c, err)
		return
	}
	ownerID, err := parseOptionalID(req.OwnerID)
	if err != nil {
		respondError(c, err)
		return
	}

	task, err := h.taskService.CreateParentTask(h.db.WithContext(c.Request.Context()), actor, services.ParentTaskInput{
		ProjectID:   projectID,
		Name:        req.Name,
		Description: req.Description,
		Remark:      req.Remark,
		Status:      req.Status,
		Priority:    req.Priority,
		StartDate:   start,
		DueDate:     due,
		OwnerID:     ownerID,
		DevManDays:  req.DevManDays,
		TestManDays: req.TestManDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) UpdateParentTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateParentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	start, due, err := h.dates(req.StartDate, req.DueDate)
	if err != nil {
		respondError(c, err)
		return
	}
	ownerID, err := parseOptionalID(req.OwnerID)
	if err != nil {
		respondError(c, err)
		return
	}

	task, err := h.taskService.UpdateParentTask(h.db.WithContext(c.Request.Context()), actor, id, services.ParentTaskUpdate{
		Name:        req.Name,
		Description: req.Description,
		Remark:      req.Remark,
		Status:      req.Status,
		Priority:    req.Priority,
		StartDate:   start,
		DueDate:     due,
		OwnerID:     ownerID,
		DevManDays:  req.DevManDays,
		TestManDays: req.TestManDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// CreateSubTask adds a child under the parent task in the path. The
// project is the parent's.
func (h *TaskHandler) CreateSubTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	parentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		createTaskRequest
		ProjectID string `json:"project_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	start, due, err := h.dates(req.StartDate, req.DueDate)
	if err != nil {
		respondError(c, err)
		return
	}
	ownerIDs, err := parseIDs(req.OwnerIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	projectID, err := parseOptionalID(&req.ProjectID)
	if err != nil {
		respondError(c, err)
		return
	}

	in := services.SubTaskInput{
		ParentID:    parentID,
		Name:        req.Name,
		Description: req.Description,
		Remark:      req.Remark,
		Status:      req.Status,
		Priority:    req.Priority,
		StartDate:   start,
		DueDate:     due,
		OwnerIDs:    ownerIDs,
		DevManDays:  req.DevManDays,
		TestManDays: req.TestManDays,
	}
	if projectID != nil {
		in.ProjectID = *projectID
	}

	task, err := h.taskService.CreateSubTask(h.db.WithContext(c.Request.Context()), actor, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// UpdateSubTask replaces the subtask's editable fields, owners included.
func (h *TaskHandler) UpdateSubTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateSubTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	start, due, err := h.dates(req.StartDate, req.DueDate)
	if err != nil {
		respondError(c, err)
		return
	}
	ownerIDs, err := parseIDs(req.OwnerIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	task, err := h.taskService.UpdateSubTask(h.db.WithContext(c.Request.Context()), actor, id, services.SubTaskUpdate{
		Name:        req.Name,
		Status:      req.Status,
		StartDate:   start,
		DueDate:     due,
		OwnerIDs:    ownerIDs,
		Description: req.Description,
		Remark:      req.Remark,
		Priority:    req.Priority,
		DevManDays:  req.DevManDays,
		TestManDays: req.TestManDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.taskService.DeleteTask(h.db.WithContext(c.Request.Context()), actor, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) GetTaskHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	history, err := h.taskService.GetTaskHistory(h.db.WithContext(c.Request.Context()), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
