package repository

import (
	"errors"
	"lms_backend/internal/model"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// FindByUserAndCourse 记录不存在时返回 (nil, nil)
func (r *ProgressRepository) FindByUserAndCourse(userID, courseID uint) (*model.CourseProgress, error) {
	var progress model.CourseProgress
	err := r.DB.Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &progress, nil
}

// Upsert 不存在则插入，否则整体覆盖派生字段与 ID 集合
func (r *ProgressRepository) Upsert(progress *model.CourseProgress) error {
	tx := r.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var existing model.CourseProgress
	err := tx.Where("user_id = ? AND course_id = ?", progress.UserID, progress.CourseID).
		First(&existing).Error

	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			tx.Rollback()
			return err
		}
		err = tx.Create(progress).Error
	} else {
		existing.CompletedLessonIDs = progress.CompletedLessonIDs
		existing.CompletedTopicIDs = progress.CompletedTopicIDs
		existing.CompletedLessons = progress.CompletedLessons
		existing.TotalLessons = progress.TotalLessons
		existing.TotalTopics = progress.TotalTopics
		existing.CompletionRate = progress.CompletionRate
		err = tx.Save(&existing).Error
		if err == nil {
			progress.ID = existing.ID
		}
	}

	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// DeleteByUserAndCourse 仅在退课时由报名侧调用，进度引擎自身从不删除记录
func (r *ProgressRepository) DeleteByUserAndCourse(userID, courseID uint) error {
	return r.DB.Where("user_id = ? AND course_id = ?", userID, courseID).
		Delete(&model.CourseProgress{}).Error
}
