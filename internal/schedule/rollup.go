package schedule

import (
	"time"

	"delivery-tracker/backend/internal/models"

	"github.com/gofrs/uuid"
)

type Owner struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Node is the part of a task the roll-up reads.
type Node struct {
	Status    models.Status
	StartDate *time.Time
	DueDate   *time.Time
	Owners    []Owner
}

// Effective is the display view of a task. For a parent with children it is
// derived from the children and never persisted.
type Effective struct {
	Status    models.Status `json:"status"`
	StartDate *time.Time    `json:"start_date"`
	DueDate   *time.Time    `json:"due_date"`
	Owners    []Owner       `json:"owners"`
	Derived   bool          `json:"derived"`
}

// RollUp returns the effective view of parent. Without children the
// parent's own fields are used as they are.
func RollUp(parent Node, children []Node) Effective {
	if len(children) == 0 {
		return Effective{
			Status:    parent.Status.Normalized(),
			StartDate: parent.StartDate,
			DueDate:   parent.DueDate,
			Owners:    parent.Owners,
		}
	}

	return Effective{
		Status:    RollUpStatus(children),
		StartDate: earliest(children),
		DueDate:   latest(children),
		Owners:    ownerUnion(children),
		Derived:   true,
	}
}

// RollUpStatus: all done is done, any in progress is in progress, all
// pending is pending, and every other mix counts as in progress.
func RollUpStatus(children []Node) models.Status {
	if len(children) == 0 {
		return models.StatusPending
	}

	allDone, allPending, anyInProgress := true, true, false
	for _, c := range children {
		switch c.Status.Normalized() {
		case models.StatusDone:
			allPending = false
		case models.StatusPending:
			allDone = false
		case models.StatusInProgress:
			anyInProgress = true
			allDone, allPending = false, false
		default:
			allDone, allPending = false, false
		}
	}

	switch {
	case allDone:
		return models.StatusDone
	case anyInProgress:
		return models.StatusInProgress
	case allPending:
		return models.StatusPending
	default:
		return models.StatusInProgress
	}
}

func earliest(children []Node) *time.Time {
	var out *time.Time
	for _, c := range children {
		if c.StartDate != nil && (out == nil || c.StartDate.Before(*out)) {
			out = c.StartDate
		}
	}
	return out
}

func latest(children []Node) *time.Time {
	var out *time.Time
	for _, c := range children {
		if c.DueDate != nil && (out == nil || c.DueDate.After(*out)) {
			out = c.DueDate
		}
	}
	return out
}

func ownerUnion(children []Node) []Owner {
	seen := make(map[uuid.UUID]bool)
	owners := make([]Owner, 0)
	for _, c := range children {
		for _, o := range c.Owners {
			if seen[o.ID] {
				continue
			}
			seen[o.ID] = true
			owners = append(owners, o)
		}
	}
	return owners
}
