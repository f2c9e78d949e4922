package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kyungseok/course-settlement-go/internal/domain"
)

var (
	// ErrNotFound 레코드 없음
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate 유니크 제약 위반
	ErrDuplicate = errors.New("repository: duplicate key")
)

// OutboxEvent Outbox 이벤트
type OutboxEvent struct {
	ID            int64
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Status        string
	CreatedAt     time.Time
	SentAt        *time.Time
}

// Tx 단일 트랜잭션 범위의 쓰기 연산.
// ExecTx가 넘겨주는 fn 안에서만 사용하며, fn이 에러 없이 반환되면 전체가 커밋된다.
type Tx interface {
	// CreatePayment PENDING 결제 기록 생성 (external_payment_id 중복이면 ErrDuplicate)
	CreatePayment(ctx context.Context, payment *domain.PaymentRecord) error
	// TransitionPayment PENDING 상태를 전제로 한 상태 전이 (이미 종결이면 false)
	TransitionPayment(ctx context.Context, id int64, to domain.PaymentStatus, reason string) (bool, error)
	// CreateEnrollment 수강 등록 생성 ((user, course) 중복이면 생성하지 않고 false)
	CreateEnrollment(ctx context.Context, enrollment *domain.EnrollmentRecord) (bool, error)
	// FindEnrollment 수강 등록 조회
	FindEnrollment(ctx context.Context, userID, courseID string) (*domain.EnrollmentRecord, error)
	// CreditRevenue 결제 단위 수익 적립.
	// payment_id 처리 이력에 기반해 중복 적립을 막으며, 적립 여부와 적립 후 총액을 반환한다.
	CreditRevenue(ctx context.Context, courseID string, amount int64, paymentID int64) (int64, bool, error)
	// InsertOutbox Outbox 이벤트 삽입
	InsertOutbox(ctx context.Context, event *OutboxEvent) error
}

// Store 정산 상태 저장소.
// 읽기는 스냅샷 기준이며 쓰기는 ExecTx로만 수행한다.
type Store interface {
	// ExecTx fn을 하나의 트랜잭션으로 실행
	ExecTx(ctx context.Context, fn func(Tx) error) error

	FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (*domain.PaymentRecord, error)
	FindPaymentByID(ctx context.Context, id int64) (*domain.PaymentRecord, error)
	// ListPaymentsByUser 사용자 결제 이력 조회 (최신순)
	ListPaymentsByUser(ctx context.Context, userID string, limit int) ([]*domain.PaymentRecord, error)

	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
	GetCourseRevenue(ctx context.Context, courseID string) (int64, error)

	FindCourse(ctx context.Context, id string) (*domain.Course, error)
	FindUser(ctx context.Context, id string) (*domain.User, error)

	FindPendingOutbox(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id int64) error
}
