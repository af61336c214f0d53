package services

import (
	"encoding/json"
	"fmt"
	"time"

	"delivery-tracker/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HistoryLimit caps how many entries a task history returns.
const HistoryLimit = 20

type HistoryEntry struct {
	ID        uuid.UUID             `json:"id"`
	Action    models.ActivityAction `json:"action"`
	Details   datatypes.JSON        `json:"details"`
	UserName  string                `json:"user_name"`
	CreatedAt time.Time             `json:"created_at"`
}

type taskDetailsPayload struct {
	TaskID     uuid.UUID    `json:"taskId"`
	TaskName   string       `json:"taskName"`
	Type       string       `json:"type"`
	ParentID   *uuid.UUID   `json:"parentId,omitempty"`
	ParentName string       `json:"parentName,omitempty"`
	OwnerIDs   []uuid.UUID  `json:"ownerIds,omitempty"`
	Changes    *taskChanges `json:"changes,omitempty"`
}

type taskChanges struct {
	Name        *models.FieldChange `json:"name,omitempty"`
	Status      *models.FieldChange `json:"status,omitempty"`
	Owners      *models.FieldChange `json:"owners,omitempty"`
	Description *descriptionChange  `json:"description,omitempty"`
}

type descriptionChange struct {
	Updated bool `json:"updated"`
}

func taskDetails(t *models.Task) *taskDetailsPayload {
	return &taskDetailsPayload{
		TaskID:   t.ID,
		TaskName: t.Name,
		Type:     t.Kind(),
		ParentID: t.ParentID,
	}
}

func writeLog(tx *gorm.DB, actor Actor, action models.ActivityAction, t *models.Task, details *taskDetailsPayload) error {
	if details.Changes != nil && *details.Changes == (taskChanges{}) {
		details.Changes = nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode activity details: %w", err)
	}
	entry := &models.ActivityLog{
		Action:    action,
		Details:   datatypes.JSON(raw),
		ActorID:   actor.ID,
		ActorName: actor.Name,
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("write activity log: %w", err)
	}
	return nil
}

// GetTaskHistory returns the latest entries for a task, newest first. The
// entries outlive the task itself.
func (s *TaskServiceImpl) GetTaskHistory(db *gorm.DB, id uuid.UUID) ([]HistoryEntry, error) {
	if id == uuid.Nil {
		return nil, invalid(msgTaskIDRequired)
	}
	var logs []models.ActivityLog
	err := db.Where("task_id = ?", id).
		Order("created_at DESC").
		Limit(HistoryLimit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}

	out := make([]HistoryEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, HistoryEntry{
			ID:        l.ID,
			Action:    l.Action,
			Details:   l.Details,
			UserName:  l.ActorName,
			CreatedAt: l.CreatedAt,
		})
	}
	return out, nil
}
