package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/kyungseok/course-settlement-go/common/errors"
	"github.com/kyungseok/course-settlement-go/common/events"
	"github.com/kyungseok/course-settlement-go/common/retry"
	"github.com/kyungseok/course-settlement-go/internal/domain"
	"github.com/kyungseok/course-settlement-go/internal/repository"
	"github.com/kyungseok/course-settlement-go/internal/signature"
	"go.uber.org/zap"
)

// SettleCommand 정산 요청 커맨드.
// 게이트웨이 콜백의 내용 그대로이며, 사용자 식별도 요청 컨텍스트가 아닌 명시적 파라미터다.
type SettleCommand struct {
	OrderID   string
	PaymentID string
	Signature string
	UserID    string
	CourseID  string
	Amount    int64
}

// SettlementService 결제 정산 서비스 인터페이스
type SettlementService interface {
	// Settle 게이트웨이 콜백 정산.
	// 같은 PaymentID에 대해 몇 번을 호출해도 결제 기록 하나, 수강 등록 하나,
	// 수익 적립 한 번만 발생한다.
	Settle(ctx context.Context, cmd SettleCommand) (*domain.PaymentRecord, error)
	// GetPayment 게이트웨이 결제 ID로 결제 기록 조회
	GetPayment(ctx context.Context, externalPaymentID string) (*domain.PaymentRecord, error)
	// GetPaymentHistory 사용자 결제 이력 조회 (최신순)
	GetPaymentHistory(ctx context.Context, userID string, limit int) ([]*domain.PaymentRecord, error)
}

type settlementService struct {
	store    repository.Store
	ledger   *EnrollmentLedger
	revenue  *RevenueAccumulator
	secret   string
	retryCfg retry.Config
	logger   *zap.Logger
}

// NewSettlementService 정산 서비스 생성
func NewSettlementService(
	store repository.Store,
	ledger *EnrollmentLedger,
	revenue *RevenueAccumulator,
	secret string,
	retryCfg retry.Config,
	logger *zap.Logger,
) SettlementService {
	return &settlementService{
		store:    store,
		ledger:   ledger,
		revenue:  revenue,
		secret:   secret,
		retryCfg: retryCfg,
		logger:   logger,
	}
}

// Settle 게이트웨이 콜백 정산
func (s *settlementService) Settle(ctx context.Context, cmd SettleCommand) (*domain.PaymentRecord, error) {
	if err := s.validate(ctx, cmd); err != nil {
		return nil, err
	}

	// 종결된 기록이 있으면 그대로 반환 (게이트웨이 재전송은 정상 경로)
	existing, err := s.store.FindPaymentByExternalID(ctx, cmd.PaymentID)
	if err == nil && existing.IsTerminal() {
		s.logger.Info("duplicate settlement, returning existing record",
			zap.String("externalPaymentId", cmd.PaymentID),
			zap.String("status", string(existing.Status)))
		return existing, nil
	}

	record, err := s.ensurePending(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if record.IsTerminal() {
		// 동시 정산의 승자가 이미 종결시킨 기록
		return record, nil
	}

	verified := signature.Verify(cmd.OrderID, cmd.PaymentID, cmd.Signature, s.secret)
	return s.finalize(ctx, record, verified)
}

// GetPayment 게이트웨이 결제 ID로 결제 기록 조회
func (s *settlementService) GetPayment(ctx context.Context, externalPaymentID string) (*domain.PaymentRecord, error) {
	payment, err := s.store.FindPaymentByExternalID(ctx, externalPaymentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Newf(apperrors.ErrCodePaymentNotFound, "payment not found: %s", externalPaymentID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeDatabaseError, "failed to find payment", err)
	}
	return payment, nil
}

// GetPaymentHistory 사용자 결제 이력 조회 (최신순)
func (s *settlementService) GetPaymentHistory(ctx context.Context, userID string, limit int) ([]*domain.PaymentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	payments, err := s.store.ListPaymentsByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeDatabaseError, "failed to list payments", err)
	}
	return payments, nil
}

// validate 기록 생성 전 선행 조건 검증
func (s *settlementService) validate(ctx context.Context, cmd SettleCommand) error {
	if cmd.OrderID == "" || cmd.PaymentID == "" || cmd.Signature == "" {
		return apperrors.New(apperrors.ErrCodeInvalidRequest, "orderId, paymentId and signature are required")
	}
	if cmd.UserID == "" || cmd.CourseID == "" {
		return apperrors.New(apperrors.ErrCodeInvalidRequest, "userId and courseId are required")
	}
	if cmd.Amount <= 0 {
		return apperrors.New(apperrors.ErrCodeInvalidAmount, "amount must be positive")
	}

	if _, err := s.store.FindUser(ctx, cmd.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.Newf(apperrors.ErrCodeUnknownUser, "unknown user: %s", cmd.UserID)
		}
		return apperrors.Wrap(apperrors.ErrCodeDatabaseError, "failed to find user", err)
	}

	course, err := s.store.FindCourse(ctx, cmd.CourseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.Newf(apperrors.ErrCodeUnknownCourse, "unknown course: %s", cmd.CourseID)
		}
		return apperrors.Wrap(apperrors.ErrCodeDatabaseError, "failed to find course", err)
	}

	if cmd.Amount != course.Price {
		return apperrors.Newf(apperrors.ErrCodeInvalidAmount,
			"amount %d does not match course price %d", cmd.Amount, course.Price)
	}

	return nil
}

// ensurePending PENDING 결제 기록을 확보한다.
// external_payment_id 유니크 제약이 유일한 동시성 제어 지점이다.
// 생성 경쟁에서 지면 승자의 기록을 읽어 반환한다.
func (s *settlementService) ensurePending(ctx context.Context, cmd SettleCommand) (*domain.PaymentRecord, error) {
	now := time.Now()
	record := &domain.PaymentRecord{
		ExternalOrderID:   cmd.OrderID,
		ExternalPaymentID: cmd.PaymentID,
		UserID:            cmd.UserID,
		CourseID:          cmd.CourseID,
		Amount:            cmd.Amount,
		Status:            domain.PaymentStatusPending,
		Signature:         cmd.Signature,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.execTx(ctx, func(tx repository.Tx) error {
		return tx.CreatePayment(ctx, record)
	})
	if err == nil {
		return record, nil
	}

	if errors.Is(err, repository.ErrDuplicate) {
		winner, ferr := s.store.FindPaymentByExternalID(ctx, cmd.PaymentID)
		if ferr != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeDatabaseError, "failed to read winning record", ferr)
		}
		return winner, nil
	}

	return nil, apperrors.Wrap(apperrors.ErrCodeDatabaseError, "failed to create payment record", err)
}

// finalize 검증 결과에 따라 기록을 종결한다.
// VERIFIED 전이 + 수강 등록 + 수익 적립 + Outbox 이벤트는 하나의 트랜잭션이다.
func (s *settlementService) finalize(ctx context.Context, record *domain.PaymentRecord, verified bool) (*domain.PaymentRecord, error) {
	if !verified {
		return s.finalizeFailed(ctx, record)
	}
	return s.finalizeVerified(ctx, record)
}

func (s *settlementService) finalizeVerified(ctx context.Context, record *domain.PaymentRecord) (*domain.PaymentRecord, error) {
	correlationID := uuid.New().String()

	var applied bool
	err := s.execTx(ctx, func(tx repository.Tx) error {
		var err error
		applied, err = tx.TransitionPayment(ctx, record.ID, domain.PaymentStatusVerified, "")
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		// 트랜잭션 안에서만 유효한 검증 완료본
		verifiedRecord := *record
		verifiedRecord.Status = domain.PaymentStatusVerified

		enrollment, enrolled, err := s.ledger.Enroll(ctx, tx, &verifiedRecord)
		if err != nil {
			return err
		}

		total, credited, err := s.revenue.Credit(ctx, tx, &verifiedRecord)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := s.insertOutbox(ctx, tx, &verifiedRecord, events.EventPaymentVerified, events.PaymentVerifiedEvent{
			BaseEvent:         s.baseEvent(events.EventPaymentVerified, correlationID, now),
			PaymentID:         verifiedRecord.ID,
			ExternalOrderID:   verifiedRecord.ExternalOrderID,
			ExternalPaymentID: verifiedRecord.ExternalPaymentID,
			UserID:            verifiedRecord.UserID,
			CourseID:          verifiedRecord.CourseID,
			Amount:            verifiedRecord.Amount,
		}, now); err != nil {
			return err
		}

		if enrolled {
			if err := s.insertOutbox(ctx, tx, &verifiedRecord, events.EventCourseEnrolled, events.CourseEnrolledEvent{
				BaseEvent:    s.baseEvent(events.EventCourseEnrolled, correlationID, now),
				EnrollmentID: enrollment.ID,
				UserID:       verifiedRecord.UserID,
				CourseID:     verifiedRecord.CourseID,
				PaymentID:    verifiedRecord.ID,
			}, now); err != nil {
				return err
			}
		}

		if credited {
			if err := s.insertOutbox(ctx, tx, &verifiedRecord, events.EventRevenueCredited, events.RevenueCreditedEvent{
				BaseEvent:    s.baseEvent(events.EventRevenueCredited, correlationID, now),
				CourseID:     verifiedRecord.CourseID,
				PaymentID:    verifiedRecord.ID,
				Amount:       verifiedRecord.Amount,
				TotalRevenue: total,
			}, now); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if !applied {
		// 동시 호출자가 먼저 종결시킴: 승자의 기록을 반환
		return s.GetPayment(ctx, record.ExternalPaymentID)
	}

	record.Status = domain.PaymentStatusVerified
	s.logger.Info("settlement verified",
		zap.Int64("paymentId", record.ID),
		zap.String("externalPaymentId", record.ExternalPaymentID),
		zap.String("userId", record.UserID),
		zap.String("courseId", record.CourseID),
		zap.Int64("amount", record.Amount))

	return record, nil
}

func (s *settlementService) finalizeFailed(ctx context.Context, record *domain.PaymentRecord) (*domain.PaymentRecord, error) {
	const reason = "signature verification failed"
	correlationID := uuid.New().String()

	var applied bool
	err := s.execTx(ctx, func(tx repository.Tx) error {
		var err error
		applied, err = tx.TransitionPayment(ctx, record.ID, domain.PaymentStatusFailed, reason)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		now := time.Now()
		return s.insertOutbox(ctx, tx, record, events.EventPaymentFailed, events.PaymentFailedEvent{
			BaseEvent:         s.baseEvent(events.EventPaymentFailed, correlationID, now),
			PaymentID:         record.ID,
			ExternalPaymentID: record.ExternalPaymentID,
			Reason:            reason,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	if !applied {
		return s.GetPayment(ctx, record.ExternalPaymentID)
	}

	record.Status = domain.PaymentStatusFailed
	record.Reason = reason
	s.logger.Warn("settlement rejected",
		zap.Int64("paymentId", record.ID),
		zap.String("externalPaymentId", record.ExternalPaymentID),
		zap.String("reason", reason))

	return record, apperrors.New(apperrors.ErrCodeSignatureInvalid, "payment signature verification failed")
}

// execTx 제한된 횟수의 재시도와 함께 트랜잭션 실행.
// 비즈니스 에러와 저장소 센티널 에러는 재시도하지 않는다.
func (s *settlementService) execTx(ctx context.Context, fn func(repository.Tx) error) error {
	retryable := func(err error) bool {
		if errors.Is(err, repository.ErrDuplicate) || errors.Is(err, repository.ErrNotFound) {
			return false
		}
		if apperrors.IsBusinessError(err) {
			return false
		}
		return true
	}
	return retry.Do(ctx, s.retryCfg, s.logger, retryable, func() error {
		return s.store.ExecTx(ctx, fn)
	})
}

func (s *settlementService) baseEvent(eventType events.EventType, correlationID string, now time.Time) events.BaseEvent {
	return events.BaseEvent{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		SchemaVersion: 1,
		OccurredAt:    now,
		CorrelationID: correlationID,
	}
}

func (s *settlementService) insertOutbox(
	ctx context.Context,
	tx repository.Tx,
	record *domain.PaymentRecord,
	eventType events.EventType,
	event interface{},
	now time.Time,
) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeSerializationError, "failed to marshal event", err)
	}

	return tx.InsertOutbox(ctx, &repository.OutboxEvent{
		AggregateType: "payment",
		AggregateID:   record.ExternalPaymentID,
		EventType:     string(eventType),
		Payload:       payload,
		Status:        "PENDING",
		CreatedAt:     now,
	})
}
