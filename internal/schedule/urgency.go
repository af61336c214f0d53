package schedule

import (
	"fmt"
	"sort"
	"time"
)

const (
	DueTextOverdue   = "已逾期"
	DueTextNoDueDate = "无截止日期"
)

// IsUrgent reports whether a task is overdue, due within UrgentWindow
// working days, or has no due date at all.
func IsUrgent(now time.Time, due *time.Time) bool {
	if due == nil {
		return true
	}
	today := startOfDay(now)
	target := startOfDay(due.In(now.Location()))
	if target.Before(today) {
		return true
	}
	return !target.After(AddWorkingDays(today, UrgentWindow))
}

// Urgency is the sort key of an urgent task.
type Urgency struct {
	DaysLeft int
	HasDue   bool
}

func UrgencyOf(now time.Time, due *time.Time) Urgency {
	return Urgency{DaysLeft: WorkingDaysLeft(now, due), HasDue: due != nil}
}

func (u Urgency) Overdue() bool {
	return u.HasDue && u.DaysLeft <= 0
}

func (u Urgency) rank() int {
	switch {
	case u.Overdue():
		return 0
	case u.HasDue:
		return 1
	default:
		return 2
	}
}

// DueText is the label shown on urgent task cards.
func (u Urgency) DueText() string {
	if !u.HasDue {
		return DueTextNoDueDate
	}
	if u.DaysLeft <= 0 {
		return DueTextOverdue
	}
	return fmt.Sprintf("剩 %d 工作日", u.DaysLeft)
}

// Less orders overdue tasks first, then dated tasks by remaining working
// days, then undated tasks.
func (u Urgency) Less(other Urgency) bool {
	if u.rank() != other.rank() {
		return u.rank() < other.rank()
	}
	if u.rank() == 1 {
		return u.DaysLeft < other.DaysLeft
	}
	return false
}

// SortUrgent sorts items in place, keeping input order among equals.
func SortUrgent[T any](items []T, key func(T) Urgency) {
	sort.SliceStable(items, func(i, j int) bool {
		return key(items[i]).Less(key(items[j]))
	})
}
