package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kyungseok/course-settlement-go/internal/domain"
)

// MemoryStore 메모리 기반 정산 저장소.
// 저장소 전체를 하나의 뮤텍스로 보호하며, 트랜잭션은 스냅샷 복원으로 롤백한다.
// 테스트와 로컬 실행용이다.
type MemoryStore struct {
	mu sync.Mutex

	paymentSeq    int64
	enrollmentSeq int64
	outboxSeq     int64

	payments    map[string]*domain.PaymentRecord // external_payment_id 기준
	enrollments map[string]*domain.EnrollmentRecord
	revenues    map[string]*domain.CourseRevenue
	credited    map[int64]struct{} // 적립 완료된 payment_id
	outbox      []*OutboxEvent

	courses map[string]*domain.Course
	users   map[string]*domain.User

	// failTx 다음 n개 트랜잭션을 주입된 에러로 실패시킴 (재시도 테스트용)
	failTx    int
	failTxErr error
}

// NewMemoryStore 메모리 저장소 생성
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments:    make(map[string]*domain.PaymentRecord),
		enrollments: make(map[string]*domain.EnrollmentRecord),
		revenues:    make(map[string]*domain.CourseRevenue),
		credited:    make(map[int64]struct{}),
		courses:     make(map[string]*domain.Course),
		users:       make(map[string]*domain.User),
	}
}

// SeedCourse 강의 참조 데이터 등록
func (s *MemoryStore) SeedCourse(course *domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[course.ID] = course
}

// SeedUser 사용자 참조 데이터 등록
func (s *MemoryStore) SeedUser(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// FailNextTx 다음 n개의 ExecTx 호출을 err로 실패시킴
func (s *MemoryStore) FailNextTx(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTx = n
	s.failTxErr = err
}

// ExecTx fn을 하나의 트랜잭션으로 실행
func (s *MemoryStore) ExecTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failTx > 0 {
		s.failTx--
		return s.failTxErr
	}

	snapshot := s.snapshotLocked()
	if err := fn(&memoryTx{store: s}); err != nil {
		s.restoreLocked(snapshot)
		return err
	}
	return nil
}

// FindPaymentByExternalID 게이트웨이 결제 ID로 결제 기록 조회
func (s *MemoryStore) FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (*domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[externalPaymentID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *payment
	return &clone, nil
}

// FindPaymentByID ID로 결제 기록 조회
func (s *MemoryStore) FindPaymentByID(ctx context.Context, id int64) (*domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, payment := range s.payments {
		if payment.ID == id {
			clone := *payment
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

// ListPaymentsByUser 사용자 결제 이력 조회 (최신순)
func (s *MemoryStore) ListPaymentsByUser(ctx context.Context, userID string, limit int) ([]*domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payments []*domain.PaymentRecord
	for _, payment := range s.payments {
		if payment.UserID == userID {
			clone := *payment
			payments = append(payments, &clone)
		}
	}

	sort.Slice(payments, func(i, j int) bool {
		if payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].ID > payments[j].ID
		}
		return payments[i].CreatedAt.After(payments[j].CreatedAt)
	})

	if limit > 0 && len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}

// IsEnrolled 수강 등록 여부 조회
func (s *MemoryStore) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.enrollments[enrollmentKey(userID, courseID)]
	return ok, nil
}

// GetCourseRevenue 강의 누적 수익 조회 (기록이 없으면 0)
func (s *MemoryStore) GetCourseRevenue(ctx context.Context, courseID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revenue, ok := s.revenues[courseID]
	if !ok {
		return 0, nil
	}
	return revenue.TotalRevenue, nil
}

// FindCourse 강의 조회
func (s *MemoryStore) FindCourse(ctx context.Context, id string) (*domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	course, ok := s.courses[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *course
	return &clone, nil
}

// FindUser 사용자 조회
func (s *MemoryStore) FindUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *user
	return &clone, nil
}

// FindPendingOutbox 전송 대기 중인 이벤트 조회
func (s *MemoryStore) FindPendingOutbox(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []*OutboxEvent
	for _, event := range s.outbox {
		if event.Status == "PENDING" {
			clone := *event
			events = append(events, &clone)
		}
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, nil
}

// MarkOutboxSent 이벤트를 전송 완료로 표시
func (s *MemoryStore) MarkOutboxSent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range s.outbox {
		if event.ID == id {
			now := time.Now()
			event.Status = "SENT"
			event.SentAt = &now
			return nil
		}
	}
	return ErrNotFound
}

// memorySnapshot 트랜잭션 롤백용 스냅샷
type memorySnapshot struct {
	paymentSeq    int64
	enrollmentSeq int64
	outboxSeq     int64
	payments      map[string]*domain.PaymentRecord
	enrollments   map[string]*domain.EnrollmentRecord
	revenues      map[string]*domain.CourseRevenue
	credited      map[int64]struct{}
	outbox        []*OutboxEvent
}

func (s *MemoryStore) snapshotLocked() *memorySnapshot {
	snap := &memorySnapshot{
		paymentSeq:    s.paymentSeq,
		enrollmentSeq: s.enrollmentSeq,
		outboxSeq:     s.outboxSeq,
		payments:      make(map[string]*domain.PaymentRecord, len(s.payments)),
		enrollments:   make(map[string]*domain.EnrollmentRecord, len(s.enrollments)),
		revenues:      make(map[string]*domain.CourseRevenue, len(s.revenues)),
		credited:      make(map[int64]struct{}, len(s.credited)),
		outbox:        make([]*OutboxEvent, len(s.outbox)),
	}
	for k, v := range s.payments {
		clone := *v
		snap.payments[k] = &clone
	}
	for k, v := range s.enrollments {
		clone := *v
		snap.enrollments[k] = &clone
	}
	for k, v := range s.revenues {
		clone := *v
		snap.revenues[k] = &clone
	}
	for k := range s.credited {
		snap.credited[k] = struct{}{}
	}
	for i, v := range s.outbox {
		clone := *v
		snap.outbox[i] = &clone
	}
	return snap
}

func (s *MemoryStore) restoreLocked(snap *memorySnapshot) {
	s.paymentSeq = snap.paymentSeq
	s.enrollmentSeq = snap.enrollmentSeq
	s.outboxSeq = snap.outboxSeq
	s.payments = snap.payments
	s.enrollments = snap.enrollments
	s.revenues = snap.revenues
	s.credited = snap.credited
	s.outbox = snap.outbox
}

// memoryTx 메모리 저장소 트랜잭션 (저장소 뮤텍스를 잡은 상태에서만 사용)
type memoryTx struct {
	store *MemoryStore
}

// CreatePayment PENDING 결제 기록 생성
func (t *memoryTx) CreatePayment(ctx context.Context, payment *domain.PaymentRecord) error {
	s := t.store
	if _, ok := s.payments[payment.ExternalPaymentID]; ok {
		return ErrDuplicate
	}

	s.paymentSeq++
	payment.ID = s.paymentSeq
	clone := *payment
	s.payments[payment.ExternalPaymentID] = &clone
	return nil
}

// TransitionPayment PENDING 상태를 전제로 한 상태 전이
func (t *memoryTx) TransitionPayment(ctx context.Context, id int64, to domain.PaymentStatus, reason string) (bool, error) {
	for _, payment := range t.store.payments {
		if payment.ID == id {
			if payment.Status != domain.PaymentStatusPending {
				return false, nil
			}
			payment.Status = to
			payment.Reason = reason
			payment.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

// CreateEnrollment 수강 등록 생성 (이미 있으면 건너뜀)
func (t *memoryTx) CreateEnrollment(ctx context.Context, enrollment *domain.EnrollmentRecord) (bool, error) {
	s := t.store
	key := enrollmentKey(enrollment.UserID, enrollment.CourseID)
	if _, ok := s.enrollments[key]; ok {
		return false, nil
	}

	s.enrollmentSeq++
	enrollment.ID = s.enrollmentSeq
	clone := *enrollment
	s.enrollments[key] = &clone
	return true, nil
}

// FindEnrollment 수강 등록 조회
func (t *memoryTx) FindEnrollment(ctx context.Context, userID, courseID string) (*domain.EnrollmentRecord, error) {
	enrollment, ok := t.store.enrollments[enrollmentKey(userID, courseID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *enrollment
	return &clone, nil
}

// CreditRevenue 결제 단위 수익 적립
func (t *memoryTx) CreditRevenue(ctx context.Context, courseID string, amount int64, paymentID int64) (int64, bool, error) {
	s := t.store

	if _, ok := s.credited[paymentID]; ok {
		if revenue, ok := s.revenues[courseID]; ok {
			return revenue.TotalRevenue, false, nil
		}
		return 0, false, nil
	}

	s.credited[paymentID] = struct{}{}

	revenue, ok := s.revenues[courseID]
	if !ok {
		revenue = &domain.CourseRevenue{CourseID: courseID}
		s.revenues[courseID] = revenue
	}
	revenue.TotalRevenue += amount
	revenue.LastPaymentID = paymentID
	revenue.UpdatedAt = time.Now()

	return revenue.TotalRevenue, true, nil
}

// InsertOutbox Outbox 이벤트 삽입
func (t *memoryTx) InsertOutbox(ctx context.Context, event *OutboxEvent) error {
	s := t.store
	s.outboxSeq++
	event.ID = s.outboxSeq
	clone := *event
	s.outbox = append(s.outbox, &clone)
	return nil
}

func enrollmentKey(userID, courseID string) string {
	return userID + "/" + courseID
}
