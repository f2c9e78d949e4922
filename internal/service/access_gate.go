package service

import (
	"context"
	"errors"

	apperrors "github.com/kyungseok/course-settlement-go/common/errors"
	"github.com/kyungseok/course-settlement-go/internal/repository"
	"go.uber.org/zap"
)

// Decision 접근 제어 판정.
// Deny는 정책상 정상 결과이며 에러가 아니다.
type Decision struct {
	Allowed bool
	Reason  string
}

// AccessGate 강의 콘텐츠 접근 제어 게이트.
// 자체 상태는 없고 수강 등록 원장과 강의 참조 데이터만 읽는다.
type AccessGate struct {
	ledger *EnrollmentLedger
	store  repository.Store
	logger *zap.Logger
}

// NewAccessGate 접근 제어 게이트 생성
func NewAccessGate(ledger *EnrollmentLedger, store repository.Store, logger *zap.Logger) *AccessGate {
	return &AccessGate{
		ledger: ledger,
		store:  store,
		logger: logger,
	}
}

// Authorize 사용자의 강의 접근 허용 여부 판정.
// 무료 강의는 등록 없이 허용, 유료 강의는 수강 등록이 있어야 허용한다.
func (g *AccessGate) Authorize(ctx context.Context, userID, courseID string) (Decision, error) {
	if userID == "" || courseID == "" {
		return Decision{Reason: "userId and courseId are required"}, nil
	}

	course, err := g.store.FindCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Decision{Reason: "unknown course"}, nil
		}
		return Decision{}, apperrors.Wrap(apperrors.ErrCodeDatabaseError, "failed to find course", err)
	}

	if course.IsFree() {
		return Decision{Allowed: true, Reason: "free course"}, nil
	}

	enrolled, err := g.ledger.IsEnrolled(ctx, userID, courseID)
	if err != nil {
		return Decision{}, err
	}

	if !enrolled {
		g.logger.Debug("access denied",
			zap.String("userId", userID),
			zap.String("courseId", courseID))
		return Decision{Reason: "not enrolled"}, nil
	}

	return Decision{Allowed: true, Reason: "enrolled"}, nil
}
