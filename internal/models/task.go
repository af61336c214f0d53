package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// DescriptionMaxLength is counted in characters, not bytes.
const DescriptionMaxLength = 500

type Task struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string     `json:"name" gorm:"not null"`
	Description string     `json:"description" gorm:"type:text"`
	Remark      string     `json:"remark" gorm:"type:text"`
	Status      Status     `json:"status" gorm:"type:varchar(20);not null;default:'Pending'"`
	Priority    Priority   `json:"priority" gorm:"type:varchar(10);not null;default:'Medium'"`
	StartDate   *time.Time `json:"start_date"`
	DueDate     *time.Time `json:"due_date"`
	ProjectID   uuid.UUID  `json:"project_id" gorm:"type:uuid;not null;index"`
	ParentID    *uuid.UUID `json:"parent_id" gorm:"type:uuid;index"`
	Order       int        `json:"order" gorm:"column:sort_order;not null;default:0"`
	OwnerID     *uuid.UUID `json:"owner_id" gorm:"type:uuid;index"`
	DevManDays  float64    `json:"dev_man_days" gorm:"not null;default:0"`
	TestManDays float64    `json:"test_man_days" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Project  *Project    `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
	Owner    *User       `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Children []Task      `json:"children,omitempty" gorm:"foreignKey:ParentID"`
	Owners   []TaskOwner `json:"owners,omitempty" gorm:"foreignKey:TaskID"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&t.ID)
}

func (t *Task) IsSubTask() bool {
	return t.ParentID != nil
}

// Kind is the label written into activity log details.
func (t *Task) Kind() string {
	if t.IsSubTask() {
		return "subtask"
	}
	return "parent"
}

// OwnerNames prefers the multi-owner relation and falls back to the legacy
// single owner.
func (t *Task) OwnerNames() []string {
	names := make([]string, 0, len(t.Owners))
	for _, o := range t.Owners {
		if o.User != nil {
			names = append(names, o.User.Name)
		}
	}
	if len(names) == 0 && t.Owner != nil {
		names = append(names, t.Owner.Name)
	}
	return names
}

type TaskOwner struct {
	TaskID    uuid.UUID `json:"task_id" gorm:"type:uuid;not null;primaryKey"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;primaryKey;index"`
	CreatedAt time.Time `json:"created_at"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
