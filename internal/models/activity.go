package models

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrActivityLogImmutable = errors.New("activity log entries cannot be modified")

// ActivityLog is append-only. Actor name is copied at write time so the
// entry stays readable after the user is deleted.
type ActivityLog struct {
	ID        uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	Action    ActivityAction `json:"action" gorm:"type:varchar(32);not null"`
	Details   datatypes.JSON `json:"details"`
	ActorID   uuid.UUID      `json:"actor_id" gorm:"type:uuid;index"`
	ActorName string         `json:"actor_name"`
	ProjectID uuid.UUID      `json:"project_id" gorm:"type:uuid;index"`
	TaskID    uuid.UUID      `json:"task_id" gorm:"type:uuid;index"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&a.ID)
}

func (a *ActivityLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrActivityLogImmutable
}

func (a *ActivityLog) BeforeDelete(tx *gorm.DB) error {
	return ErrActivityLogImmutable
}

// FieldChange records an old/new pair inside activity details.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}
