package domain

import "time"

// Course 강의 참조 엔티티.
// 강의 수명주기는 외부 시스템 소유이며 정산 서비스는 가격 검증과 참조만 한다.
type Course struct {
	ID           string
	Title        string
	InstructorID string
	Price        int64 // 최소 화폐 단위
	CreatedAt    time.Time
}

// IsFree 무료 강의 여부 확인
func (c *Course) IsFree() bool {
	return c.Price == 0
}

// User 사용자 참조 엔티티
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}
