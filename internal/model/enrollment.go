package model

import "time"

type Enrollment struct {
	BaseModel
	UserID     uint      `gorm:"uniqueIndex:idx_enrollment_user_course;type:bigint unsigned" json:"userId"`
	CourseID   uint      `gorm:"uniqueIndex:idx_enrollment_user_course;type:bigint unsigned" json:"courseId"`
	EnrolledAt time.Time `json:"enrolledAt"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}
