package models

import "strings"

// Status is shared by projects and tasks.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusUAT        Status = "UAT"
	StatusDone       Status = "Done"
)

// Older rows and the first UI revision wrote Chinese labels.
var statusAliases = map[string]Status{
	"pending":     StatusPending,
	"待处理":         StatusPending,
	"in progress": StatusInProgress,
	"in_progress": StatusInProgress,
	"进行中":         StatusInProgress,
	"uat":         StatusUAT,
	"done":        StatusDone,
	"完成":          StatusDone,
}

// ParseStatus normalises a status label. The second return value is false
// for unknown labels.
func ParseStatus(s string) (Status, bool) {
	st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

// Normalized returns the canonical form of s, or s unchanged if unknown.
func (s Status) Normalized() Status {
	if st, ok := ParseStatus(string(s)); ok {
		return st
	}
	return s
}

func (s Status) IsDone() bool {
	return s.Normalized() == StatusDone
}

type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.TrimSpace(s)) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(strings.TrimSpace(s)), true
	}
	return "", false
}

type ProjectType string

const (
	ProjectTypeChangeRequirement ProjectType = "Change Requirement"
	ProjectTypeSupport           ProjectType = "Support"
)

// NormalizeProjectType maps anything that is not "Support" to a change
// requirement project.
func NormalizeProjectType(s string) ProjectType {
	if ProjectType(s) == ProjectTypeSupport {
		return ProjectTypeSupport
	}
	return ProjectTypeChangeRequirement
}

type MemberRole string

const (
	MemberRoleManager MemberRole = "Manager"
	MemberRoleMember  MemberRole = "Member"
)

// Role is the account-level role flag derived from User.Title.
type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleNormal Role = "Normal"
)

const TitleAdmin = "Admin"

// TitleFor returns the title stored for an account role.
func TitleFor(r Role) string {
	if r == RoleAdmin {
		return TitleAdmin
	}
	return "Member"
}

type ActivityAction string

const (
	ActionCreateTask    ActivityAction = "CREATE_TASK"
	ActionUpdateTask    ActivityAction = "UPDATE_TASK"
	ActionCreateSubTask ActivityAction = "CREATE_SUBTASK"
	ActionUpdateSubTask ActivityAction = "UPDATE_SUBTASK"
	ActionDeleteTask    ActivityAction = "DELETE_TASK"
)
