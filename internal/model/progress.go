package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// CompletionRateCeiling 进度引擎能给出的最高完成率，剩余 10 分留给本服务不跟踪的环节（如作业）
const CompletionRateCeiling = 90.0

// UintSet 以 JSON 数组存储的 ID 集合
type UintSet []uint

func (s UintSet) Value() (driver.Value, error) {
	if s == nil {
		s = UintSet{}
	}
	return json.Marshal(s)
}

func (s *UintSet) Scan(value interface{}) error {
	if value == nil {
		*s = UintSet{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported type for UintSet: %T", value)
	}
}

func (s UintSet) Contains(id uint) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add 追加 id，已存在时不变
func (s UintSet) Add(id uint) UintSet {
	if s.Contains(id) {
		return s
	}
	return append(s, id)
}

func (s UintSet) Remove(id uint) UintSet {
	out := make(UintSet, 0, len(s))
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (s UintSet) Clone() UintSet {
	out := make(UintSet, len(s))
	copy(out, s)
	return out
}

// CourseProgress 每个 (user, course) 一条进度记录
type CourseProgress struct {
	BaseModel
	UserID             uint    `gorm:"uniqueIndex:idx_progress_user_course;type:bigint unsigned" json:"userId"`
	CourseID           uint    `gorm:"uniqueIndex:idx_progress_user_course;type:bigint unsigned" json:"courseId"`
	CompletedLessonIDs UintSet `gorm:"type:json" json:"completedLessonIds"`
	CompletedTopicIDs  UintSet `gorm:"type:json" json:"completedTopicIds"`
	CompletedLessons   int     `gorm:"default:0" json:"completedLessons"`
	TotalLessons       int     `gorm:"default:0" json:"totalLessons"`
	TotalTopics        int     `gorm:"default:0" json:"totalTopics"`
	CompletionRate     float64 `gorm:"default:0" json:"completionRate"`
}

func (CourseProgress) TableName() string {
	return "course_progress"
}
