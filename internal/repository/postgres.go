package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kyungseok/course-settlement-go/internal/domain"
	"github.com/lib/pq"
)

// PostgresStore PostgreSQL 기반 정산 저장소
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore PostgreSQL 저장소 생성
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ExecTx fn을 하나의 트랜잭션으로 실행
func (s *PostgresStore) ExecTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindPaymentByExternalID 게이트웨이 결제 ID로 결제 기록 조회
func (s *PostgresStore) FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (*domain.PaymentRecord, error) {
	query := `
		SELECT id, external_order_id, external_payment_id, user_id, course_id, amount, status, signature, reason, created_at, updated_at
		FROM payments
		WHERE external_payment_id = $1
	`
	return scanPayment(s.db.QueryRowContext(ctx, query, externalPaymentID))
}

// FindPaymentByID ID로 결제 기록 조회
func (s *PostgresStore) FindPaymentByID(ctx context.Context, id int64) (*domain.PaymentRecord, error) {
	query := `
		SELECT id, external_order_id, external_payment_id, user_id, course_id, amount, status, signature, reason, created_at, updated_at
		FROM payments
		WHERE id = $1
	`
	return scanPayment(s.db.QueryRowContext(ctx, query, id))
}

// ListPaymentsByUser 사용자 결제 이력 조회 (최신순)
func (s *PostgresStore) ListPaymentsByUser(ctx context.Context, userID string, limit int) ([]*domain.PaymentRecord, error) {
	query := `
		SELECT id, external_order_id, external_payment_id, user_id, course_id, amount, status, signature, reason, created_at, updated_at
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.PaymentRecord
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

// IsEnrolled 수강 등록 여부 조회
func (s *PostgresStore) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2)`

	var enrolled bool
	if err := s.db.QueryRowContext(ctx, query, userID, courseID).Scan(&enrolled); err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return enrolled, nil
}

// GetCourseRevenue 강의 누적 수익 조회 (기록이 없으면 0)
func (s *PostgresStore) GetCourseRevenue(ctx context.Context, courseID string) (int64, error) {
	query := `SELECT total_revenue FROM course_revenue_totals WHERE course_id = $1`

	var total int64
	err := s.db.QueryRowContext(ctx, query, courseID).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get course revenue: %w", err)
	}
	return total, nil
}

// FindCourse 강의 조회
func (s *PostgresStore) FindCourse(ctx context.Context, id string) (*domain.Course, error) {
	query := `SELECT id, title, instructor_id, price, created_at FROM courses WHERE id = $1`

	course := &domain.Course{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&course.ID,
		&course.Title,
		&course.InstructorID,
		&course.Price,
		&course.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course: %w", err)
	}

	return course, nil
}

// FindUser 사용자 조회
func (s *PostgresStore) FindUser(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, name, email, created_at FROM users WHERE id = $1`

	user := &domain.User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

// FindPendingOutbox 전송 대기 중인 이벤트 조회
func (s *PostgresStore) FindPendingOutbox(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, status, created_at
		FROM outbox_events
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		event := &OutboxEvent{}
		err := rows.Scan(
			&event.ID,
			&event.AggregateType,
			&event.AggregateID,
			&event.EventType,
			&event.Payload,
			&event.Status,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// MarkOutboxSent 이벤트를 전송 완료로 표시
func (s *PostgresStore) MarkOutboxSent(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_events
		SET status = 'SENT', sent_at = NOW()
		WHERE id = $1
	`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}
	return nil
}

// postgresTx 트랜잭션 범위 쓰기 연산 구현
type postgresTx struct {
	tx *sql.Tx
}

// CreatePayment PENDING 결제 기록 생성
func (t *postgresTx) CreatePayment(ctx context.Context, payment *domain.PaymentRecord) error {
	query := `
		INSERT INTO payments (external_order_id, external_payment_id, user_id, course_id, amount, status, signature, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := t.tx.QueryRowContext(
		ctx,
		query,
		payment.ExternalOrderID,
		payment.ExternalPaymentID,
		payment.UserID,
		payment.CourseID,
		payment.Amount,
		payment.Status,
		payment.Signature,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Scan(&payment.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// TransitionPayment PENDING 상태를 전제로 한 상태 전이.
// WHERE status = 'PENDING' 조건이 동시 정산의 직렬화 지점이다.
func (t *postgresTx) TransitionPayment(ctx context.Context, id int64, to domain.PaymentStatus, reason string) (bool, error) {
	query := `
		UPDATE payments
		SET status = $1, reason = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'PENDING'
	`

	result, err := t.tx.ExecContext(ctx, query, to, reason, id)
	if err != nil {
		return false, fmt.Errorf("failed to transition payment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CreateEnrollment 수강 등록 생성 (이미 있으면 건너뜀)
func (t *postgresTx) CreateEnrollment(ctx context.Context, enrollment *domain.EnrollmentRecord) (bool, error) {
	query := `
		INSERT INTO enrollments (user_id, course_id, source_payment_id, enrolled_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, course_id) DO NOTHING
		RETURNING id
	`

	err := t.tx.QueryRowContext(
		ctx,
		query,
		enrollment.UserID,
		enrollment.CourseID,
		enrollment.SourcePaymentID,
		enrollment.EnrolledAt,
	).Scan(&enrollment.ID)

	if err == sql.ErrNoRows {
		// 이미 등록된 (user, course) 쌍
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create enrollment: %w", err)
	}

	return true, nil
}

// FindEnrollment 수강 등록 조회
func (t *postgresTx) FindEnrollment(ctx context.Context, userID, courseID string) (*domain.EnrollmentRecord, error) {
	query := `
		SELECT id, user_id, course_id, source_payment_id, enrolled_at
		FROM enrollments
		WHERE user_id = $1 AND course_id = $2
	`

	enrollment := &domain.EnrollmentRecord{}
	err := t.tx.QueryRowContext(ctx, query, userID, courseID).Scan(
		&enrollment.ID,
		&enrollment.UserID,
		&enrollment.CourseID,
		&enrollment.SourcePaymentID,
		&enrollment.EnrolledAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find enrollment: %w", err)
	}

	return enrollment, nil
}

// CreditRevenue 결제 단위 수익 적립.
// revenue_entries의 payment_id PK가 처리 이력 역할을 하며 재적립을 막는다.
func (t *postgresTx) CreditRevenue(ctx context.Context, courseID string, amount int64, paymentID int64) (int64, bool, error) {
	entryQuery := `
		INSERT INTO revenue_entries (payment_id, course_id, amount, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (payment_id) DO NOTHING
	`

	result, err := t.tx.ExecContext(ctx, entryQuery, paymentID, courseID, amount)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert revenue entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// 이미 적립된 결제: 현재 총액만 반환
		var total int64
		err := t.tx.QueryRowContext(ctx, `SELECT total_revenue FROM course_revenue_totals WHERE course_id = $1`, courseID).Scan(&total)
		if err != nil && err != sql.ErrNoRows {
			return 0, false, fmt.Errorf("failed to get course revenue: %w", err)
		}
		return total, false, nil
	}

	totalQuery := `
		INSERT INTO course_revenue_totals (course_id, total_revenue, last_payment_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (course_id) DO UPDATE
		SET total_revenue = course_revenue_totals.total_revenue + EXCLUDED.total_revenue,
		    last_payment_id = EXCLUDED.last_payment_id,
		    updated_at = NOW()
		RETURNING total_revenue
	`

	var total int64
	if err := t.tx.QueryRowContext(ctx, totalQuery, courseID, amount, paymentID).Scan(&total); err != nil {
		return 0, false, fmt.Errorf("failed to credit revenue: %w", err)
	}

	return total, true, nil
}

// InsertOutbox Outbox 이벤트 삽입
func (t *postgresTx) InsertOutbox(ctx context.Context, event *OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := t.tx.QueryRowContext(
		ctx,
		query,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		event.Payload,
		event.Status,
		event.CreatedAt,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return nil
}

// scanner Row/Rows 공용 스캔 인터페이스
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row scanner) (*domain.PaymentRecord, error) {
	payment := &domain.PaymentRecord{}
	var reason sql.NullString

	err := row.Scan(
		&payment.ID,
		&payment.ExternalOrderID,
		&payment.ExternalPaymentID,
		&payment.UserID,
		&payment.CourseID,
		&payment.Amount,
		&payment.Status,
		&payment.Signature,
		&reason,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	if reason.Valid {
		payment.Reason = reason.String
	}

	return payment, nil
}
