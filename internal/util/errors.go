package util

import "errors"

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailRegistered    = errors.New("该邮箱已被注册")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrNotEnrolled    = errors.New("not enrolled in this course")
	ErrCourseNotFound = errors.New("course not found")

	ErrUnknownTopic          = errors.New("topic does not belong to this course")
	ErrUnknownLesson         = errors.New("lesson does not belong to this course")
	ErrIncompleteDependency  = errors.New("lesson still has unfinished topics")
	ErrLessonAlreadyComplete = errors.New("topic belongs to a completed lesson, reopen the lesson first")
	ErrCourseLocked          = errors.New("course progress has reached the ceiling and cannot be walked back")
	ErrNoProgressRecord      = errors.New("no progress record for this course")
)
