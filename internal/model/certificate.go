package model

import "time"

// Certificate 结课证书记录，渲染与发送由外部系统负责
type Certificate struct {
	UUIDBase
	UserID         uint      `gorm:"uniqueIndex:idx_certificate_user_course;type:bigint unsigned" json:"userId"`
	CourseID       uint      `gorm:"uniqueIndex:idx_certificate_user_course;type:bigint unsigned" json:"courseId"`
	StudentName    string    `gorm:"size:100" json:"studentName"`
	CompletionRate float64   `json:"completionRate"`
	IssuedAt       time.Time `json:"issuedAt"`
}

func (Certificate) TableName() string {
	return "certificates"
}
