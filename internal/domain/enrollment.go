package domain

import "time"

// EnrollmentRecord 수강 등록 기록 도메인 모델.
// (UserID, CourseID) 쌍당 하나만 존재하며 검증된 결제에서만 파생된다.
type EnrollmentRecord struct {
	ID              int64
	UserID          string
	CourseID        string
	SourcePaymentID int64
	EnrolledAt      time.Time
}

// CourseRevenue 강의별 누적 수익.
// TotalRevenue는 VERIFIED 결제 금액의 합과 항상 일치해야 한다.
type CourseRevenue struct {
	CourseID      string
	TotalRevenue  int64
	LastPaymentID int64
	UpdatedAt     time.Time
}
