package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("forbidden")
	// ErrNoSuccessor blocks deleting a project manager nobody can replace.
	ErrNoSuccessor  = errors.New("无法删除：该用户是项目经理，且系统中没有其他可接管的用户")
	ErrInvalidToken = errors.New("invalid token")
)

// ValidationError carries a message meant to be shown to the user as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type notFoundError struct {
	message string
}

func (e *notFoundError) Error() string { return e.message }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

// notFound returns an error that matches ErrNotFound and reads as message.
func notFound(message string) error {
	return &notFoundError{message: message}
}

// LoginError is a rejected login. Message is shown to the user.
type LoginError struct {
	Message  string
	Disabled bool
}

func (e *LoginError) Error() string { return e.Message }

// User facing messages.
const (
	msgProjectRequired     = "项目名称和项目经理是必填项"
	msgProjectIDRequired   = "项目ID是必填项"
	msgProjectNotFound     = "项目不存在"
	msgPMNotFound          = "项目经理不存在"
	msgInvalidStatus       = "状态无效"
	msgInvalidPriority     = "优先级无效"
	msgTaskNameRequired    = "任务名称是必填项"
	msgTaskIDRequired      = "任务ID是必填项"
	msgTaskNotFound        = "任务不存在"
	msgParentNotFound      = "父任务不存在"
	msgParentNotTopLevel   = "子任务不能再添加子任务"
	msgParentOtherProject  = "父任务不属于该项目"
	msgNegativeManDays     = "人天不能为负数"
	msgDateOrder           = "开始日期不能晚于截止日期"
	msgMemberRequired      = "姓名、邮箱和密码是必填项"
	msgPasswordTooShort    = "密码长度至少为6位"
	msgEmailTaken          = "该邮箱已被注册"
	msgUserIDRequired      = "用户ID是必填项"
	msgUserNotFound        = "用户不存在"
	msgPasswordRequired    = "用户ID和新密码是必填项"
	msgLoginRequired       = "请填写邮箱和密码"
	msgAccountDisabled     = "账号已被禁用"
	msgWrongPassword       = "密码错误"
	msgInvalidRole         = "角色无效"
	msgOwnerNotFound       = "负责人不存在"
	msgMembershipProjectNF = "所选项目不存在"
)

// Description limit message, formatted with the limit.
const msgDescriptionTooLongFmt = "任务描述不能超过 %d 字符"
