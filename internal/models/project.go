package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type Project struct {
	ID          uuid.UUID   `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string      `json:"name" gorm:"not null"`
	Description string      `json:"description"`
	ProjectType ProjectType `json:"project_type" gorm:"type:varchar(32);not null;default:'Change Requirement'"`
	Budget      float64     `json:"budget"`
	Currency    string      `json:"currency" gorm:"type:varchar(8);not null;default:'USD'"`
	Status      Status      `json:"status" gorm:"type:varchar(20);not null;default:'Pending'"`
	Progress    int         `json:"progress" gorm:"not null;default:0"`
	PMID        uuid.UUID   `json:"pm_id" gorm:"column:pm_id;type:uuid;not null;index"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	PM      *User           `json:"pm,omitempty" gorm:"foreignKey:PMID"`
	Members []ProjectMember `json:"members,omitempty" gorm:"foreignKey:ProjectID"`
	Tasks   []Task          `json:"tasks,omitempty" gorm:"foreignKey:ProjectID"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&p.ID)
}

type ProjectMember struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	ProjectID uuid.UUID  `json:"project_id" gorm:"type:uuid;not null;uniqueIndex:uk_project_user"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:uk_project_user;index"`
	Role      MemberRole `json:"role" gorm:"type:varchar(10);not null"`
	CreatedAt time.Time  `json:"created_at"`

	Project *Project `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
	User    *User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (m *ProjectMember) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&m.ID)
}
