package service

import (
	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
)

// CertificateIssuer 进度引擎每次成功推进后无条件调用；
// 发证资格完全由实现方判断，失败只记日志，不回传给引擎
type CertificateIssuer interface {
	Attempt(userID, courseID uint, completionRate float64, studentName string)
}

type CertificateService struct {
	CertRepo *repository.CertificateRepository
}

func NewCertificateService(certRepo *repository.CertificateRepository) *CertificateService {
	return &CertificateService{CertRepo: certRepo}
}

func (s *CertificateService) Attempt(userID, courseID uint, completionRate float64, studentName string) {
	if completionRate < model.CompletionRateCeiling {
		return
	}

	existing, err := s.CertRepo.FindByUserAndCourse(userID, courseID)
	if err != nil {
		logger.Log.Error("certificate lookup failed",
			zap.Uint("userId", userID),
			zap.Uint("courseId", courseID),
			zap.Error(err))
		return
	}
	if existing != nil {
		return
	}

	cert := &model.Certificate{
		UserID:         userID,
		CourseID:       courseID,
		StudentName:    studentName,
		CompletionRate: completionRate,
		IssuedAt:       time.Now(),
	}
	if err := s.CertRepo.Create(cert); err != nil {
		logger.Log.Error("certificate issuance failed",
			zap.Uint("userId", userID),
			zap.Uint("courseId", courseID),
			zap.Error(err))
		return
	}

	logger.Log.Info("certificate issued",
		zap.Uint("userId", userID),
		zap.Uint("courseId", courseID),
		zap.String("serial", cert.ID))
}

func (s *CertificateService) ListByUser(userID uint) ([]model.Certificate, error) {
	return s.CertRepo.FindByUser(userID)
}
