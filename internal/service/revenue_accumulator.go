package service

import (
	"context"

	apperrors "github.com/kyungseok/course-settlement-go/common/errors"
	"github.com/kyungseok/course-settlement-go/internal/domain"
	"github.com/kyungseok/course-settlement-go/internal/repository"
	"go.uber.org/zap"
)

// RevenueAccumulator 강의별 수익 누산기.
// 결제 ID 단위의 처리 이력으로 같은 결제가 두 번 적립되는 일을 막는다.
// 금액 연산은 전부 정수(최소 화폐 단위)로만 한다.
type RevenueAccumulator struct {
	store  repository.Store
	logger *zap.Logger
}

// NewRevenueAccumulator 수익 누산기 생성
func NewRevenueAccumulator(store repository.Store, logger *zap.Logger) *RevenueAccumulator {
	return &RevenueAccumulator{
		store:  store,
		logger: logger,
	}
}

// Credit 결제 금액을 강의 수익에 적립.
// 결제 상태 전이와 같은 트랜잭션 안에서 호출되어야 한다.
// 이미 적립된 결제면 총액을 바꾸지 않고 현재 총액을 반환한다.
func (a *RevenueAccumulator) Credit(ctx context.Context, tx repository.Tx, payment *domain.PaymentRecord) (int64, bool, error) {
	if payment.Status != domain.PaymentStatusVerified {
		return 0, false, apperrors.Newf(apperrors.ErrCodeInvalidRequest,
			"revenue credit requires a verified payment, got status %s", payment.Status)
	}

	total, credited, err := tx.CreditRevenue(ctx, payment.CourseID, payment.Amount, payment.ID)
	if err != nil {
		return 0, false, apperrors.Wrap(apperrors.ErrCodeDatabaseError, "failed to credit revenue", err)
	}

	if credited {
		a.logger.Info("revenue credited",
			zap.String("courseId", payment.CourseID),
			zap.Int64("paymentId", payment.ID),
			zap.Int64("amount", payment.Amount),
			zap.Int64("totalRevenue", total))
	}

	return total, credited, nil
}

// Total 강의 누적 수익 조회 (기록이 없으면 0)
func (a *RevenueAccumulator) Total(ctx context.Context, courseID string) (int64, error) {
	total, err := a.store.GetCourseRevenue(ctx, courseID)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrCodeDatabaseError, "failed to get course revenue", err)
	}
	return total, nil
}
