// Package schedule holds the date arithmetic behind project progress, the
// urgent-task dashboard and the parent task roll-up. Nothing here touches
// the database; callers pass already loaded rows and the current time.
package schedule

import (
	"math"
	"time"

	"delivery-tracker/backend/internal/models"
)

const (
	day = 24 * time.Hour

	// InProgressCap keeps an overrunning in-progress task below 100%.
	InProgressCap = 0.99
	// UnstartedInProgressRatio is used for in-progress work with no start date.
	UnstartedInProgressRatio = 0.5
)

// Leaf is the unit progress is measured over: a top-level task without
// children, or a child of a task that has children.
type Leaf struct {
	Status    models.Status
	StartDate *time.Time
	DueDate   *time.Time
}

// TopLevelTask is a task with no parent together with its children.
type TopLevelTask struct {
	Leaf
	Children []Leaf
}

// LeafDuration returns the planned length in whole days, never less than 1.
func LeafDuration(start, due *time.Time) int {
	if start == nil || due == nil {
		return 1
	}
	days := int(math.Ceil(float64(due.Sub(*start)) / float64(day)))
	if days < 1 {
		return 1
	}
	return days
}

// LeafRatio returns the earned fraction of a leaf in [0, 1]. Only work in
// progress earns by elapsed time; UAT earns nothing until it is done.
func LeafRatio(leaf Leaf, duration int, now time.Time) float64 {
	switch leaf.Status.Normalized() {
	case models.StatusDone:
		return 1.0
	case models.StatusInProgress:
		if leaf.StartDate == nil {
			return UnstartedInProgressRatio
		}
		elapsed := now.Sub(*leaf.StartDate)
		if elapsed < 0 {
			elapsed = 0
		}
		if duration < 1 {
			duration = 1
		}
		return math.Min(float64(elapsed)/float64(day)/float64(duration), InProgressCap)
	default:
		return 0
	}
}

// Leaves flattens top-level tasks into the leaf units progress is computed
// over.
func Leaves(tasks []TopLevelTask) []Leaf {
	leaves := make([]Leaf, 0, len(tasks))
	for _, t := range tasks {
		if len(t.Children) == 0 {
			leaves = append(leaves, t.Leaf)
			continue
		}
		leaves = append(leaves, t.Children...)
	}
	return leaves
}

// ProjectProgress is the duration weighted completion of a project, as an
// integer percentage in [0, 100].
func ProjectProgress(tasks []TopLevelTask, now time.Time) int {
	var totalDuration, totalEarned float64
	for _, leaf := range Leaves(tasks) {
		duration := LeafDuration(leaf.StartDate, leaf.DueDate)
		totalDuration += float64(duration)
		totalEarned += float64(duration) * LeafRatio(leaf, duration, now)
	}
	if totalDuration == 0 {
		return 0
	}

	progress := int(math.Round(totalEarned / totalDuration * 100))
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}
