package repository

import (
	"lms_backend/internal/model"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) FindByID(id uint) (*model.Course, error) {
	var course model.Course
	err := r.DB.First(&course, id).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// GetStructure 读取课程结构投影（课 -> 小节），进度引擎的唯一课程视图
func (r *CourseRepository) GetStructure(courseID uint) (*model.CourseStructure, error) {
	var course model.Course
	err := r.DB.
		Preload("Lessons", func(db *gorm.DB) *gorm.DB {
			return db.Order("lessons.`order` ASC")
		}).
		Preload("Lessons.Topics", func(db *gorm.DB) *gorm.DB {
			return db.Order("topics.`order` ASC")
		}).
		First(&course, courseID).Error
	if err != nil {
		return nil, err
	}
	return model.NewCourseStructure(&course), nil
}

// FindEnrolledByUser 返回用户已报名的课程列表
func (r *CourseRepository) FindEnrolledByUser(userID uint) ([]model.Course, error) {
	var courses []model.Course
	err := r.DB.
		Joins("JOIN enrollments ON enrollments.course_id = courses.id").
		Where("enrollments.user_id = ? AND enrollments.deleted_at IS NULL", userID).
		Order("enrollments.enrolled_at DESC").
		Find(&courses).Error
	if err != nil {
		return nil, err
	}
	return courses, nil
}
