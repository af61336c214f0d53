package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"delivery-tracker/backend/internal/models"
	"delivery-tracker/backend/internal/schedule"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TaskService interface {
	CreateParentTask(db *gorm.DB, actor Actor, in ParentTaskInput) (*models.Task, error)
	UpdateParentTask(db *gorm.DB, actor Actor, id uuid.UUID, in ParentTaskUpdate) (*models.Task, error)
	CreateSubTask(db *gorm.DB, actor Actor, in SubTaskInput) (*models.Task, error)
	UpdateSubTask(db *gorm.DB, actor Actor, id uuid.UUID, in SubTaskUpdate) (*models.Task, error)
	DeleteTask(db *gorm.DB, actor Actor, id uuid.UUID) error
	GetTaskHistory(db *gorm.DB, id uuid.UUID) ([]HistoryEntry, error)
	OnChange(l ChangeListener)
}

type ParentTaskInput struct {
	ProjectID   uuid.UUID
	Name        string
	Description string
	Remark      string
	Status      string
	Priority    string
	StartDate   *time.Time
	DueDate     *time.Time
	OwnerID     *uuid.UUID
	DevManDays  float64
	TestManDays float64
}

// ParentTaskUpdate changes only the non-nil fields.
type ParentTaskUpdate struct {
	Name        *string
	Description *string
	Remark      *string
	Status      *string
	Priority    *string
	StartDate   *time.Time
	DueDate     *time.Time
	OwnerID     *uuid.UUID
	DevManDays  *float64
	TestManDays *float64
}

type SubTaskInput struct {
	ProjectID   uuid.UUID
	ParentID    uuid.UUID
	Name        string
	Description string
	Remark      string
	Status      string
	Priority    string
	StartDate   *time.Time
	DueDate     *time.Time
	OwnerIDs    []uuid.UUID
	DevManDays  float64
	TestManDays float64
}

// SubTaskUpdate replaces name, status, dates and owners. The remaining
// pointer fields change only when set.
type SubTaskUpdate struct {
	Name        string
	Status      string
	StartDate   *time.Time
	DueDate     *time.Time
	OwnerIDs    []uuid.UUID
	Description *string
	Remark      *string
	Priority    *string
	DevManDays  *float64
	TestManDays *float64
}

type TaskServiceImpl struct {
	changeNotifier
	// Now is the clock progress is computed against.
	Now func() time.Time
}

func NewTaskService() *TaskServiceImpl {
	return &TaskServiceImpl{Now: time.Now}
}

func (s *TaskServiceImpl) CreateParentTask(db *gorm.DB, actor Actor, in ParentTaskInput) (*models.Task, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid(msgTaskNameRequired)
	}
	if in.ProjectID == uuid.Nil {
		return nil, invalid(msgProjectIDRequired)
	}
	desc, err := checkDescription(in.Description)
	if err != nil {
		return nil, err
	}
	status, priority, err := statusAndPriority(in.Status, in.Priority)
	if err != nil {
		return nil, err
	}
	if err := checkEffort(in.DevManDays, in.TestManDays); err != nil {
		return nil, err
	}
	if err := checkDates(in.StartDate, in.DueDate); err != nil {
		return nil, err
	}

	task := &models.Task{
		Name:        name,
		Description: desc,
		Remark:      strings.TrimSpace(in.Remark),
		Status:      status,
		Priority:    priority,
		StartDate:   utc(in.StartDate),
		DueDate:     utc(in.DueDate),
		ProjectID:   in.ProjectID,
		OwnerID:     nilIfZero(in.OwnerID),
		DevManDays:  in.DevManDays,
		TestManDays: in.TestManDays,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := ensureProjectExists(tx, in.ProjectID); err != nil {
			return err
		}
		if task.OwnerID != nil {
			if err := ensureUsersExist(tx, []uuid.UUID{*task.OwnerID}); err != nil {
				return err
			}
		}
		order, err := nextOrder(tx, in.ProjectID, nil)
		if err != nil {
			return err
		}
		task.Order = order

		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		if task.OwnerID != nil {
			if err := replaceOwners(tx, task.ID, []uuid.UUID{*task.OwnerID}); err != nil {
				return err
			}
		}
		if err := writeLog(tx, actor, models.ActionCreateTask, task, taskDetails(task)); err != nil {
			return err
		}
		_, err = recalculateProgress(tx, task.ProjectID, s.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(Change{Entity: EntityTask, ProjectID: task.ProjectID})
	return task, nil
}

func (s *TaskServiceImpl) UpdateParentTask(db *gorm.DB, actor Actor, id uuid.UUID, in ParentTaskUpdate) (*models.Task, error) {
	if id == uuid.Nil {
		return nil, invalid(msgTaskIDRequired)
	}

	updates := map[string]interface{}{}
	var newDesc string
	if in.Description != nil {
		desc, err := checkDescription(*in.Description)
		if err != nil {
			return nil, err
		}
		newDesc = desc
		updates["description"] = desc
	}
	if in.Name != nil {
		if name := strings.TrimSpace(*in.Name); name != "" {
			updates["name"] = name
		}
	}
	if in.Remark != nil {
		updates["remark"] = strings.TrimSpace(*in.Remark)
	}
	if in.Status != nil && *in.Status != "" {
		st, ok := models.ParseStatus(*in.Status)
		if !ok {
			return nil, invalid(msgInvalidStatus)
		}
		updates["status"] = st
	}
	if in.Priority != nil && *in.Priority != "" {
		p, ok := models.ParsePriority(*in.Priority)
		if !ok {
			return nil, invalid(msgInvalidPriority)
		}
		updates["priority"] = p
	}
	if in.DevManDays != nil {
		updates["dev_man_days"] = *in.DevManDays
	}
	if in.TestManDays != nil {
		updates["test_man_days"] = *in.TestManDays
	}
	if err := checkEffort(deref(in.DevManDays), deref(in.TestManDays)); err != nil {
		return nil, err
	}
	if in.StartDate != nil {
		updates["start_date"] = utc(in.StartDate)
	}
	if in.DueDate != nil {
		updates["due_date"] = utc(in.DueDate)
	}

	var task models.Task
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(msgTaskNotFound)
			}
			return err
		}
		old := task

		start, due := task.StartDate, task.DueDate
		if in.StartDate != nil {
			start = in.StartDate
		}
		if in.DueDate != nil {
			due = in.DueDate
		}
		if err := checkDates(start, due); err != nil {
			return err
		}

		if in.OwnerID != nil {
			owner := nilIfZero(in.OwnerID)
			if owner != nil {
				if err := ensureUsersExist(tx, []uuid.UUID{*owner}); err != nil {
					return err
				}
			}
			updates["owner_id"] = owner
		}

		if len(updates) > 0 {
			if err := tx.Model(&models.Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return fmt.Errorf("update task: %w", err)
			}
			if err := tx.First(&task, "id = ?", id).Error; err != nil {
				return err
			}
		}
		if in.OwnerID != nil {
			var owners []uuid.UUID
			if task.OwnerID != nil {
				owners = []uuid.UUID{*task.OwnerID}
			}
			if err := replaceOwners(tx, task.ID, owners); err != nil {
				return err
			}
		}

		changes := &taskChanges{}
		if in.Name != nil && task.Name != old.Name {
			changes.Name = &models.FieldChange{Old: old.Name, New: task.Name}
		}
		if task.Status != old.Status {
			changes.Status = &models.FieldChange{Old: string(old.Status), New: string(task.Status)}
		}
		if in.Description != nil && newDesc != old.Description {
			changes.Description = &descriptionChange{Updated: true}
		}
		details := taskDetails(&task)
		details.Changes = changes
		if err := writeLog(tx, actor, models.ActionUpdateTask, &task, details); err != nil {
			return err
		}

		_, err := recalculateProgress(tx, task.ProjectID, s.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(Change{Entity: EntityTask, ProjectID: task.ProjectID})
	return &task, nil
}

func (s *TaskServiceImpl) CreateSubTask(db *gorm.DB, actor Actor, in SubTaskInput) (*models.Task, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid(msgTaskNameRequired)
	}
	if in.ParentID == uuid.Nil {
		return nil, invalid(msgParentNotFound)
	}
	desc, err := checkDescription(in.Description)
	if err != nil {
		return nil, err
	}
	status, priority, err := statusAndPriority(in.Status, in.Priority)
	if err != nil {
		return nil, err
	}
	if err := checkEffort(in.DevManDays, in.TestManDays); err != nil {
		return nil, err
	}
	if err := checkDates(in.StartDate, in.DueDate); err != nil {
		return nil, err
	}
	owners := uniqueIDs(in.OwnerIDs)

	var task *models.Task
	err = db.Transaction(func(tx *gorm.DB) error {
		var parent models.Task
		if err := tx.First(&parent, "id = ?", in.ParentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invalid(msgParentNotFound)
			}
			return err
		}
		if parent.ParentID != nil {
			return invalid(msgParentNotTopLevel)
		}
		if in.ProjectID != uuid.Nil && in.ProjectID != parent.ProjectID {
			return invalid(msgParentOtherProject)
		}
		if err := ensureProjectExists(tx, parent.ProjectID); err != nil {
			return err
		}
		if err := ensureUsersExist(tx, owners); err != nil {
			return err
		}

		order, err := nextOrder(tx, parent.ProjectID, &parent.ID)
		if err != nil {
			return err
		}

		task = &models.Task{
			Name:        name,
			Description: desc,
			Remark:      strings.TrimSpace(in.Remark),
			Status:      status,
			Priority:    priority,
			StartDate:   utc(in.StartDate),
			DueDate:     utc(in.DueDate),
			ProjectID:   parent.ProjectID,
			ParentID:    &parent.ID,
			Order:       order,
			OwnerID:     firstOwner(owners),
			DevManDays:  in.DevManDays,
			TestManDays: in.TestManDays,
		}
		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("create subtask: %w", err)
		}
		if err := replaceOwners(tx, task.ID, owners); err != nil {
			return err
		}

		details := taskDetails(task)
		details.ParentID = &parent.ID
		details.ParentName = parent.Name
		details.OwnerIDs = owners
		if err := writeLog(tx, actor, models.ActionCreateSubTask, task, details); err != nil {
			return err
		}

		_, err = recalculateProgress(tx, task.ProjectID, s.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(Change{Entity: EntityTask, ProjectID: task.ProjectID})
	return task, nil
}

func (s *TaskServiceImpl) UpdateSubTask(db *gorm.DB, actor Actor, id uuid.UUID, in SubTaskUpdate) (*models.Task, error) {
	if id == uuid.Nil {
		return nil, invalid(msgTaskIDRequired)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid(msgTaskNameRequired)
	}
	status, ok := models.ParseStatus(in.Status)
	if !ok {
		return nil, invalid(msgInvalidStatus)
	}
	if err := checkDates(in.StartDate, in.DueDate); err != nil {
		return nil, err
	}
	if err := checkEffort(deref(in.DevManDays), deref(in.TestManDays)); err != nil {
		return nil, err
	}
	owners := uniqueIDs(in.OwnerIDs)

	updates := map[string]interface{}{
		"name":       name,
		"status":     status,
		"start_date": utc(in.StartDate),
		"due_date":   utc(in.DueDate),
		"owner_id":   firstOwner(owners),
	}
	if in.Description != nil {
		desc, err := checkDescription(*in.Description)
		if err != nil {
			return nil, err
		}
		updates["description"] = desc
	}
	if in.Remark != nil {
		updates["remark"] = strings.TrimSpace(*in.Remark)
	}
	if in.Priority != nil && *in.Priority != "" {
		p, ok := models.ParsePriority(*in.Priority)
		if !ok {
			return nil, invalid(msgInvalidPriority)
		}
		updates["priority"] = p
	}
	if in.DevManDays != nil {
		updates["dev_man_days"] = *in.DevManDays
	}
	if in.TestManDays != nil {
		updates["test_man_days"] = *in.TestManDays
	}

	var task models.Task
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Owners.User").First(&task, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(msgTaskNotFound)
			}
			return err
		}
		old := task
		oldOwners := ownerNames(task.Owners)

		if err := ensureUsersExist(tx, owners); err != nil {
			return err
		}
		if err := tx.Model(&models.Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("update subtask: %w", err)
		}
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			return err
		}
		if err := replaceOwners(tx, task.ID, owners); err != nil {
			return err
		}

		var current []models.TaskOwner
		if err := tx.Preload("User").Where("task_id = ?", task.ID).Order("created_at ASC").Find(&current).Error; err != nil {
			return err
		}
		task.Owners = current
		newOwners := ownerNames(current)

		changes := &taskChanges{}
		if task.Name != old.Name {
			changes.Name = &models.FieldChange{Old: old.Name, New: task.Name}
		}
		if task.Status != old.Status {
			changes.Status = &models.FieldChange{Old: string(old.Status), New: string(task.Status)}
		}
		if oldOwners != newOwners {
			changes.Owners = &models.FieldChange{Old: orNone(oldOwners), New: orNone(newOwners)}
		}
		details := taskDetails(&task)
		details.Changes = changes
		if err := writeLog(tx, actor, models.ActionUpdateSubTask, &task, details); err != nil {
			return err
		}

		_, err := recalculateProgress(tx, task.ProjectID, s.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(Change{Entity: EntityTask, ProjectID: task.ProjectID})
	return &task, nil
}

// DeleteTask logs the deletion, then removes the task together with its
// children and their owner rows.
func (s *TaskServiceImpl) DeleteTask(db *gorm.DB, actor Actor, id uuid.UUID) error {
	if id == uuid.Nil {
		return invalid(msgTaskIDRequired)
	}

	var task models.Task
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(msgTaskNotFound)
			}
			return err
		}
		if err := writeLog(tx, actor, models.ActionDeleteTask, &task, taskDetails(&task)); err != nil {
			return err
		}

		var childIDs []uuid.UUID
		if err := tx.Model(&models.Task{}).Where("parent_id = ?", id).Pluck("id", &childIDs).Error; err != nil {
			return err
		}
		all := append(childIDs, id)
		if err := tx.Where("task_id IN ?", all).Delete(&models.TaskOwner{}).Error; err != nil {
			return err
		}
		if len(childIDs) > 0 {
			if err := tx.Where("id IN ?", childIDs).Delete(&models.Task{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&models.Task{}, "id = ?", id).Error; err != nil {
			return err
		}

		_, err := recalculateProgress(tx, task.ProjectID, s.Now())
		return err
	})
	if err != nil {
		return err
	}

	s.notify(Change{Entity: EntityTask, ProjectID: task.ProjectID})
	return nil
}

func statusAndPriority(status, priority string) (models.Status, models.Priority, error) {
	st := models.StatusPending
	if strings.TrimSpace(status) != "" {
		parsed, ok := models.ParseStatus(status)
		if !ok {
			return "", "", invalid(msgInvalidStatus)
		}
		st = parsed
	}
	pr := models.PriorityMedium
	if strings.TrimSpace(priority) != "" {
		parsed, ok := models.ParsePriority(priority)
		if !ok {
			return "", "", invalid(msgInvalidPriority)
		}
		pr = parsed
	}
	return st, pr, nil
}

func checkDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if len([]rune(desc)) > models.DescriptionMaxLength {
		return "", invalid(msgDescriptionTooLongFmt, models.DescriptionMaxLength)
	}
	return desc, nil
}

func checkEffort(dev, test float64) error {
	if dev < 0 || test < 0 {
		return invalid(msgNegativeManDays)
	}
	return nil
}

func checkDates(start, due *time.Time) error {
	if start != nil && due != nil && start.After(*due) {
		return invalid(msgDateOrder)
	}
	return nil
}

func ensureProjectExists(tx *gorm.DB, id uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.Project{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return notFound(msgProjectNotFound)
	}
	return nil
}

func ensureUsersExist(tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	var count int64
	if err := tx.Model(&models.User{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
		return err
	}
	if int(count) != len(ids) {
		return invalid(msgOwnerNotFound)
	}
	return nil
}

// nextOrder is one past the highest order among siblings, or 0 for the
// first sibling.
func nextOrder(tx *gorm.DB, projectID uuid.UUID, parentID *uuid.UUID) (int, error) {
	q := tx.Model(&models.Task{}).Where("project_id = ?", projectID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	var last models.Task
	err := q.Order("sort_order DESC").Limit(1).Find(&last).Error
	if err != nil {
		return 0, err
	}
	if last.ID == uuid.Nil {
		return 0, nil
	}
	return last.Order + 1, nil
}

func replaceOwners(tx *gorm.DB, taskID uuid.UUID, owners []uuid.UUID) error {
	if err := tx.Where("task_id = ?", taskID).Delete(&models.TaskOwner{}).Error; err != nil {
		return err
	}
	if len(owners) == 0 {
		return nil
	}
	rows := make([]models.TaskOwner, 0, len(owners))
	base := time.Now().UTC()
	for i, uid := range owners {
		// Distinct timestamps keep owner order stable on read.
		rows = append(rows, models.TaskOwner{TaskID: taskID, UserID: uid, CreatedAt: base.Add(time.Duration(i) * time.Microsecond)})
	}
	return tx.Create(&rows).Error
}

func ownerNames(owners []models.TaskOwner) string {
	names := make([]string, 0, len(owners))
	for _, o := range owners {
		if o.User != nil {
			names = append(names, o.User.Name)
		}
	}
	return strings.Join(names, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "无"
	}
	return s
}

func firstOwner(owners []uuid.UUID) *uuid.UUID {
	if len(owners) == 0 {
		return nil
	}
	id := owners[0]
	return &id
}

func nilIfZero(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// TaskNode is a task in the project tree. Effective is the roll-up of the
// children for parents that have them, and the task itself otherwise.
type TaskNode struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Remark      string             `json:"remark"`
	Status      models.Status      `json:"status"`
	Priority    models.Priority    `json:"priority"`
	StartDate   *time.Time         `json:"start_date"`
	DueDate     *time.Time         `json:"due_date"`
	Order       int                `json:"order"`
	Owners      []schedule.Owner   `json:"owners"`
	DevManDays  float64            `json:"dev_man_days"`
	TestManDays float64            `json:"test_man_days"`
	Effective   schedule.Effective `json:"effective"`
	Children    []TaskNode         `json:"children"`
}

func loadTaskTree(db *gorm.DB, projectID uuid.UUID, loc *time.Location) ([]TaskNode, error) {
	var tasks []models.Task
	err := db.Where("project_id = ? AND parent_id IS NULL", projectID).
		Preload("Owner").
		Preload("Owners", ownerOrder).Preload("Owners.User").
		Preload("Children", func(q *gorm.DB) *gorm.DB { return q.Order("sort_order ASC") }).
		Preload("Children.Owner").
		Preload("Children.Owners", ownerOrder).Preload("Children.Owners.User").
		Order("sort_order ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}

	tree := make([]TaskNode, 0, len(tasks))
	for i := range tasks {
		tree = append(tree, taskNode(&tasks[i], loc))
	}
	return tree, nil
}

func ownerOrder(q *gorm.DB) *gorm.DB {
	return q.Order("created_at ASC")
}

func taskNode(t *models.Task, loc *time.Location) TaskNode {
	node := TaskNode{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Remark:      t.Remark,
		Status:      t.Status.Normalized(),
		Priority:    t.Priority,
		StartDate:   inLoc(t.StartDate, loc),
		DueDate:     inLoc(t.DueDate, loc),
		Order:       t.Order,
		Owners:      taskOwners(t),
		DevManDays:  t.DevManDays,
		TestManDays: t.TestManDays,
		Children:    make([]TaskNode, 0, len(t.Children)),
	}

	children := make([]schedule.Node, 0, len(t.Children))
	for i := range t.Children {
		child := taskNode(&t.Children[i], loc)
		node.Children = append(node.Children, child)
		children = append(children, scheduleNode(child))
	}
	node.Effective = schedule.RollUp(scheduleNode(node), children)
	return node
}

func scheduleNode(n TaskNode) schedule.Node {
	return schedule.Node{Status: n.Status, StartDate: n.StartDate, DueDate: n.DueDate, Owners: n.Owners}
}

// taskOwners prefers the owner relation and falls back to the legacy owner.
func taskOwners(t *models.Task) []schedule.Owner {
	owners := make([]schedule.Owner, 0, len(t.Owners))
	for _, o := range t.Owners {
		if o.User != nil {
			owners = append(owners, schedule.Owner{ID: o.UserID, Name: o.User.Name})
		}
	}
	if len(owners) == 0 && t.Owner != nil {
		owners = append(owners, schedule.Owner{ID: t.Owner.ID, Name: t.Owner.Name})
	}
	return owners
}

func inLoc(t *time.Time, loc *time.Location) *time.Time {
	if t == nil || loc == nil {
		return t
	}
	l := t.In(loc)
	return &l
}
