package service

import (
	"context"
	"time"

	apperrors "github.com/kyungseok/course-settlement-go/common/errors"
	"github.com/kyungseok/course-settlement-go/internal/domain"
	"github.com/kyungseok/course-settlement-go/internal/repository"
	"go.uber.org/zap"
)

// EnrollmentLedger 수강 등록 원장.
// 등록은 검증된 결제에서만 파생되며 (user, course) 쌍당 한 건만 존재한다.
type EnrollmentLedger struct {
	store  repository.Store
	logger *zap.Logger
}

// NewEnrollmentLedger 수강 등록 원장 생성
func NewEnrollmentLedger(store repository.Store, logger *zap.Logger) *EnrollmentLedger {
	return &EnrollmentLedger{
		store:  store,
		logger: logger,
	}
}

// Enroll 결제에 대한 수강 등록.
// 결제 상태 전이와 같은 트랜잭션 안에서 호출되어야 한다.
// 이미 등록된 (user, course) 쌍이면 기존 기록을 그대로 반환한다.
func (l *EnrollmentLedger) Enroll(ctx context.Context, tx repository.Tx, payment *domain.PaymentRecord) (*domain.EnrollmentRecord, bool, error) {
	if payment.Status != domain.PaymentStatusVerified {
		return nil, false, apperrors.Newf(apperrors.ErrCodeInvalidRequest,
			"enrollment requires a verified payment, got status %s", payment.Status)
	}

	enrollment := &domain.EnrollmentRecord{
		UserID:          payment.UserID,
		CourseID:        payment.CourseID,
		SourcePaymentID: payment.ID,
		EnrolledAt:      time.Now(),
	}

	created, err := tx.CreateEnrollment(ctx, enrollment)
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrCodeDatabaseError, "failed to create enrollment", err)
	}

	if !created {
		existing, err := tx.FindEnrollment(ctx, payment.UserID, payment.CourseID)
		if err != nil {
			return nil, false, apperrors.Wrap(apperrors.ErrCodeDatabaseError, "failed to load existing enrollment", err)
		}
		return existing, false, nil
	}

	l.logger.Info("enrollment created",
		zap.String("userId", payment.UserID),
		zap.String("courseId", payment.CourseID),
		zap.Int64("paymentId", payment.ID))

	return enrollment, true, nil
}

// IsEnrolled 수강 등록 여부 조회 (스냅샷 읽기)
func (l *EnrollmentLedger) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	enrolled, err := l.store.IsEnrolled(ctx, userID, courseID)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrCodeDatabaseError, "failed to check enrollment", err)
	}
	return enrolled, nil
}
