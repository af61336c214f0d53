package schedule

import "time"

// NoDueDateDays is the distance reported for tasks without a due date so
// they sort after every dated task.
const NoDueDateDays = 999

// UrgentWindow is the number of working days ahead that still counts as urgent.
const UrgentWindow = 5

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func isWorkingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// AddWorkingDays moves forward n Monday-to-Friday days from t.
func AddWorkingDays(t time.Time, n int) time.Time {
	result := t
	for added := 0; added < n; {
		result = result.AddDate(0, 0, 1)
		if isWorkingDay(result) {
			added++
		}
	}
	return result
}

// WorkingDaysLeft counts the working days between today and due. Due dates
// before today give 0, a nil due date gives NoDueDateDays.
func WorkingDaysLeft(now time.Time, due *time.Time) int {
	if due == nil {
		return NoDueDateDays
	}
	today := startOfDay(now)
	target := startOfDay(due.In(now.Location()))
	if target.Before(today) {
		return 0
	}

	days := 0
	for cur := today; cur.Before(target); {
		cur = cur.AddDate(0, 0, 1)
		if isWorkingDay(cur) {
			days++
		}
	}
	return days
}
