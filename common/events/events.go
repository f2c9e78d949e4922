package events

import "time"

// EventType 이벤트 타입 정의
type EventType string

const (
	// Payment Events
	EventPaymentVerified EventType = "payment.verified.v1"
	EventPaymentFailed   EventType = "payment.failed.v1"

	// Enrollment Events
	EventCourseEnrolled EventType = "course.enrolled.v1"

	// Revenue Events
	EventRevenueCredited EventType = "revenue.credited.v1"
)

// BaseEvent 모든 이벤트의 기본 구조
type BaseEvent struct {
	EventID       string    `json:"eventId"`
	EventType     EventType `json:"eventType"`
	SchemaVersion int       `json:"schemaVersion"`
	OccurredAt    time.Time `json:"occurredAt"`
	CorrelationID string    `json:"correlationId"` // 정산 단위 추적 ID
}

// PaymentVerifiedEvent 결제 검증 완료 이벤트
type PaymentVerifiedEvent struct {
	BaseEvent
	PaymentID         int64  `json:"paymentId"`
	ExternalOrderID   string `json:"externalOrderId"`
	ExternalPaymentID string `json:"externalPaymentId"`
	UserID            string `json:"userId"`
	CourseID          string `json:"courseId"`
	Amount            int64  `json:"amount"`
}

// PaymentFailedEvent 결제 검증 실패 이벤트
type PaymentFailedEvent struct {
	BaseEvent
	PaymentID         int64  `json:"paymentId"`
	ExternalPaymentID string `json:"externalPaymentId"`
	Reason            string `json:"reason"`
}

// CourseEnrolledEvent 수강 등록 이벤트
type CourseEnrolledEvent struct {
	BaseEvent
	EnrollmentID int64  `json:"enrollmentId"`
	UserID       string `json:"userId"`
	CourseID     string `json:"courseId"`
	PaymentID    int64  `json:"paymentId"`
}

// RevenueCreditedEvent 수익 적립 이벤트
type RevenueCreditedEvent struct {
	BaseEvent
	CourseID     string `json:"courseId"`
	PaymentID    int64  `json:"paymentId"`
	Amount       int64  `json:"amount"`
	TotalRevenue int64  `json:"totalRevenue"`
}
