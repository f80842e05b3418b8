package service

import (
	"context"
	"errors"
	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CourseService struct {
	CourseRepo     *repository.CourseRepository
	EnrollmentRepo *repository.EnrollmentRepository
	ProgressRepo   *repository.ProgressRepository
	Cache          *CacheService
}

func NewCourseService(
	courseRepo *repository.CourseRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	progressRepo *repository.ProgressRepository,
	cache *CacheService,
) *CourseService {
	return &CourseService{
		CourseRepo:     courseRepo,
		EnrollmentRepo: enrollmentRepo,
		ProgressRepo:   progressRepo,
		Cache:          cache,
	}
}

type CourseListItem struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	CoverURL    string `json:"coverUrl"`
}

// ListEnrolled 已报名课程列表，结果缓存在用户分组下，进度变更时整组失效
func (s *CourseService) ListEnrolled(ctx context.Context, userID uint) ([]CourseListItem, error) {
	group := EnrolledCoursesGroup(userID)
	cacheKey := group + ":list"

	var cached []CourseListItem
	hit, err := s.Cache.GetJSON(ctx, cacheKey, &cached)
	if err != nil {
		logger.Log.Warn("enrolled courses cache read failed",
			zap.Uint("userId", userID), zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	courses, err := s.CourseRepo.FindEnrolledByUser(userID)
	if err != nil {
		return nil, err
	}

	items := make([]CourseListItem, len(courses))
	for i, course := range courses {
		items[i] = CourseListItem{
			ID:          course.ID,
			Title:       course.Title,
			Slug:        course.Slug,
			Description: course.Description,
			CoverURL:    course.CoverURL,
		}
	}

	if err := s.Cache.SetJSONInGroup(ctx, group, cacheKey, items); err != nil {
		logger.Log.Warn("enrolled courses cache write failed",
			zap.Uint("userId", userID), zap.Error(err))
	}
	return items, nil
}

func (s *CourseService) GetStructure(courseID uint) (*model.CourseStructure, error) {
	structure, err := s.CourseRepo.GetStructure(courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}
	return structure, nil
}

// Enroll 重复报名视为成功
func (s *CourseService) Enroll(ctx context.Context, userID, courseID uint) error {
	if _, err := s.CourseRepo.FindByID(courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrCourseNotFound
		}
		return err
	}

	enrolled, err := s.EnrollmentRepo.IsEnrolled(userID, courseID)
	if err != nil {
		return err
	}
	if enrolled {
		return nil
	}

	enrollment := &model.Enrollment{
		UserID:     userID,
		CourseID:   courseID,
		EnrolledAt: time.Now(),
	}
	if err := s.EnrollmentRepo.Create(enrollment); err != nil {
		return err
	}

	s.invalidate(ctx, userID, courseID)
	return nil
}

// Unenroll 退课时连同进度记录一起删除，进度引擎自身从不删记录
func (s *CourseService) Unenroll(ctx context.Context, userID, courseID uint) error {
	enrolled, err := s.EnrollmentRepo.IsEnrolled(userID, courseID)
	if err != nil {
		return err
	}
	if !enrolled {
		return util.ErrNotEnrolled
	}

	if err := s.EnrollmentRepo.Delete(userID, courseID); err != nil {
		return err
	}
	if err := s.ProgressRepo.DeleteByUserAndCourse(userID, courseID); err != nil {
		return err
	}

	s.invalidate(ctx, userID, courseID)
	return nil
}

func (s *CourseService) invalidate(ctx context.Context, userID, courseID uint) {
	if err := s.Cache.Invalidate(ctx, ProgressCacheKey(userID, courseID)); err != nil {
		logger.Log.Warn("progress cache invalidation failed",
			zap.Uint("userId", userID), zap.Error(err))
	}
	if err := s.Cache.InvalidateGroup(ctx, EnrolledCoursesGroup(userID)); err != nil {
		logger.Log.Warn("enrolled courses cache invalidation failed",
			zap.Uint("userId", userID), zap.Error(err))
	}
}
