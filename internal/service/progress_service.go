package service

import (
	"context"
	"errors"
	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ProgressService struct {
	CourseRepo     *repository.CourseRepository
	ProgressRepo   *repository.ProgressRepository
	EnrollmentRepo *repository.EnrollmentRepository
	UserRepo       *repository.UserRepository
	Cache          CacheInvalidator
	Certificates   CertificateIssuer
}

func NewProgressService(
	courseRepo *repository.CourseRepository,
	progressRepo *repository.ProgressRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	userRepo *repository.UserRepository,
	cache CacheInvalidator,
	certificates CertificateIssuer,
) *ProgressService {
	return &ProgressService{
		CourseRepo:     courseRepo,
		ProgressRepo:   progressRepo,
		EnrollmentRepo: enrollmentRepo,
		UserRepo:       userRepo,
		Cache:          cache,
		Certificates:   certificates,
	}
}

// AdvanceRequest 二选一：standaloneLessonId 直接结课，或按小节推进。
// newCompletedTopicIds 允许 null 占位，校验前过滤
type AdvanceRequest struct {
	NewCompletedTopicIDs []*uint `json:"newCompletedTopicIds"`
	IsLessonCompleted    bool    `json:"isLessonCompleted"`
	StandaloneLessonID   *uint   `json:"standaloneLessonId,omitempty"`
}

type RetreatRequest struct {
	TopicIDs  []uint `json:"topicIds,omitempty"`
	LessonIDs []uint `json:"lessonIds,omitempty"`
}

// ProgressView 查询响应；无记录时返回零值默认
type ProgressView struct {
	CourseID           uint    `json:"courseId"`
	CompletedLessonIDs []uint  `json:"completedLessonIds"`
	CompletedTopicIDs  []uint  `json:"completedTopicIds"`
	CompletedLessons   int     `json:"completedLessons"`
	TotalLessons       int     `json:"totalLessons"`
	TotalTopics        int     `json:"totalTopics"`
	CompletionRate     float64 `json:"completionRate"`
}

// EnsureEnrolled 报名校验，前门在应答前同步调用
func (s *ProgressService) EnsureEnrolled(userID, courseID uint) error {
	enrolled, err := s.EnrollmentRepo.IsEnrolled(userID, courseID)
	if err != nil {
		return err
	}
	if !enrolled {
		return util.ErrNotEnrolled
	}
	return nil
}

// Advance 标记小节/课完成。整次调用要么全部生效要么不落库
func (s *ProgressService) Advance(ctx context.Context, userID, courseID uint, req AdvanceRequest) error {
	structure, err := s.loadStructure(courseID)
	if err != nil {
		return err
	}

	progress, err := s.loadOrInit(userID, courseID, structure)
	if err != nil {
		return err
	}

	lessonIDs := progress.CompletedLessonIDs.Clone()
	topicIDs := progress.CompletedTopicIDs.Clone()

	if req.StandaloneLessonID != nil && req.IsLessonCompleted {
		lessonID := *req.StandaloneLessonID
		if !structure.HasLesson(lessonID) {
			return util.ErrUnknownLesson
		}
		// 有小节的课必须先完成全部小节
		for _, topicID := range structure.TopicsOfLesson(lessonID) {
			if !topicIDs.Contains(topicID) {
				return util.ErrIncompleteDependency
			}
		}
		lessonIDs = lessonIDs.Add(lessonID)
	} else {
		newTopicIDs := filterNil(req.NewCompletedTopicIDs)
		for _, topicID := range newTopicIDs {
			if !structure.HasTopic(topicID) {
				return util.ErrUnknownTopic
			}
		}
		for _, topicID := range newTopicIDs {
			topicIDs = topicIDs.Add(topicID)
		}

		if req.IsLessonCompleted {
			// 本次提交涉及到的课，若尚未完成则要求其全部小节已完成；
			// 任何一门不满足则整次调用失败
			for _, lessonID := range s.affectedLessons(structure, newTopicIDs, lessonIDs) {
				for _, topicID := range structure.TopicsOfLesson(lessonID) {
					if !topicIDs.Contains(topicID) {
						return util.ErrIncompleteDependency
					}
				}
				lessonIDs = lessonIDs.Add(lessonID)
			}
		}
	}

	s.applyDerived(progress, structure, lessonIDs, topicIDs)
	if err := s.ProgressRepo.Upsert(progress); err != nil {
		return err
	}

	s.invalidateCaches(ctx, userID, courseID)
	s.Certificates.Attempt(userID, courseID, progress.CompletionRate, s.studentName(userID))
	return nil
}

// Retreat 撤销完成。达到进度上限的课程不允许回退
func (s *ProgressService) Retreat(ctx context.Context, userID, courseID uint, req RetreatRequest) error {
	structure, err := s.loadStructure(courseID)
	if err != nil {
		return err
	}

	progress, err := s.ProgressRepo.FindByUserAndCourse(userID, courseID)
	if err != nil {
		return err
	}
	if progress == nil {
		return util.ErrNoProgressRecord
	}
	if progress.CompletionRate >= model.CompletionRateCeiling {
		return util.ErrCourseLocked
	}

	lessonIDs := progress.CompletedLessonIDs.Clone()
	topicIDs := progress.CompletedTopicIDs.Clone()

	for _, lessonID := range req.LessonIDs {
		if !structure.HasLesson(lessonID) {
			return util.ErrUnknownLesson
		}
		lessonIDs = lessonIDs.Remove(lessonID)
		// 级联：课重新打开后它的小节不能保持完成态
		for _, topicID := range structure.TopicsOfLesson(lessonID) {
			topicIDs = topicIDs.Remove(topicID)
		}
	}

	for _, topicID := range req.TopicIDs {
		owner, ok := structure.OwnerOfTopic(topicID)
		if !ok {
			return util.ErrUnknownTopic
		}
		// 所属课仍处于完成态时必须先回退课本身
		if lessonIDs.Contains(owner) {
			return util.ErrLessonAlreadyComplete
		}
		topicIDs = topicIDs.Remove(topicID)
	}

	s.applyDerived(progress, structure, lessonIDs, topicIDs)
	if err := s.ProgressRepo.Upsert(progress); err != nil {
		return err
	}

	s.invalidateCaches(ctx, userID, courseID)
	return nil
}

// GetProgress 无记录时返回零值默认而不是 404
func (s *ProgressService) GetProgress(userID, courseID uint) (*ProgressView, error) {
	progress, err := s.ProgressRepo.FindByUserAndCourse(userID, courseID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return &ProgressView{
			CourseID:           courseID,
			CompletedLessonIDs: []uint{},
			CompletedTopicIDs:  []uint{},
		}, nil
	}
	return &ProgressView{
		CourseID:           courseID,
		CompletedLessonIDs: progress.CompletedLessonIDs,
		CompletedTopicIDs:  progress.CompletedTopicIDs,
		CompletedLessons:   progress.CompletedLessons,
		TotalLessons:       progress.TotalLessons,
		TotalTopics:        progress.TotalTopics,
		CompletionRate:     progress.CompletionRate,
	}, nil
}

func (s *ProgressService) loadStructure(courseID uint) (*model.CourseStructure, error) {
	structure, err := s.CourseRepo.GetStructure(courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}
	return structure, nil
}

func (s *ProgressService) loadOrInit(userID, courseID uint, structure *model.CourseStructure) (*model.CourseProgress, error) {
	progress, err := s.ProgressRepo.FindByUserAndCourse(userID, courseID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = &model.CourseProgress{
			UserID:             userID,
			CourseID:           courseID,
			CompletedLessonIDs: model.UintSet{},
			CompletedTopicIDs:  model.UintSet{},
			TotalLessons:       structure.TotalLessons(),
			TotalTopics:        structure.TotalTopics(),
		}
	}
	return progress, nil
}

// affectedLessons 返回本次提交的小节所属、且尚未完成的课
func (s *ProgressService) affectedLessons(structure *model.CourseStructure, newTopicIDs []uint, completed model.UintSet) []uint {
	seen := make(map[uint]bool)
	var out []uint
	for _, topicID := range newTopicIDs {
		lessonID, ok := structure.OwnerOfTopic(topicID)
		if !ok || seen[lessonID] || completed.Contains(lessonID) {
			continue
		}
		seen[lessonID] = true
		out = append(out, lessonID)
	}
	return out
}

// applyDerived 写入集合并重算派生字段，totalLessons/totalTopics 以当次读到的课程结构为准
func (s *ProgressService) applyDerived(progress *model.CourseProgress, structure *model.CourseStructure, lessonIDs, topicIDs model.UintSet) {
	progress.CompletedLessonIDs = lessonIDs
	progress.CompletedTopicIDs = topicIDs
	progress.CompletedLessons = len(lessonIDs)
	progress.TotalLessons = structure.TotalLessons()
	progress.TotalTopics = structure.TotalTopics()
	progress.CompletionRate = completionRate(len(lessonIDs), structure.TotalLessons())
}

// completionRate = min(完成课数/总课数*90, 90)，上限 90 而不是 100：
// 剩余 10 分属于本服务不跟踪的环节
func completionRate(completedLessons, totalLessons int) float64 {
	if totalLessons <= 0 {
		return 0
	}
	rate := float64(completedLessons) / float64(totalLessons) * model.CompletionRateCeiling
	if rate > model.CompletionRateCeiling {
		return model.CompletionRateCeiling
	}
	return rate
}

func (s *ProgressService) invalidateCaches(ctx context.Context, userID, courseID uint) {
	if err := s.Cache.Invalidate(ctx, ProgressCacheKey(userID, courseID)); err != nil {
		logger.Log.Warn("progress cache invalidation failed",
			zap.Uint("userId", userID), zap.Error(err))
	}
	if err := s.Cache.InvalidateGroup(ctx, EnrolledCoursesGroup(userID)); err != nil {
		logger.Log.Warn("enrolled courses cache invalidation failed",
			zap.Uint("userId", userID), zap.Error(err))
	}
}

func (s *ProgressService) studentName(userID uint) string {
	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		logger.Log.Warn("student lookup for certificate failed",
			zap.Uint("userId", userID), zap.Error(err))
		return ""
	}
	return user.Name
}

func filterNil(ids []*uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != nil {
			out = append(out, *id)
		}
	}
	return out
}
