package domain

import "time"

// PaymentStatus 결제 상태
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusVerified PaymentStatus = "VERIFIED"
	PaymentStatusFailed   PaymentStatus = "FAILED"
)

// PaymentRecord 결제 정산 기록 도메인 모델.
// ExternalPaymentID는 게이트웨이가 발급한 결제 ID이며 기록당 유일하다.
type PaymentRecord struct {
	ID                int64
	ExternalOrderID   string
	ExternalPaymentID string
	UserID            string
	CourseID          string
	Amount            int64
	Status            PaymentStatus
	Signature         string
	Reason            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsTerminal 종결 상태 여부 확인 (VERIFIED/FAILED는 불변)
func (p *PaymentRecord) IsTerminal() bool {
	return p.Status == PaymentStatusVerified || p.Status == PaymentStatusFailed
}

// CanTransitionTo 상태 전이 가능 여부 확인
func (p *PaymentRecord) CanTransitionTo(newStatus PaymentStatus) bool {
	// PENDING에서만 전이 가능, 종결 상태는 나가는 간선이 없다
	if p.Status != PaymentStatusPending {
		return false
	}
	return newStatus == PaymentStatusVerified || newStatus == PaymentStatusFailed
}

// TransitionTo 상태 전이
func (p *PaymentRecord) TransitionTo(newStatus PaymentStatus) bool {
	if !p.CanTransitionTo(newStatus) {
		return false
	}
	p.Status = newStatus
	p.UpdatedAt = time.Now()
	return true
}
