package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign orderID와 paymentID에 대한 HMAC-SHA256 서명 생성 (hex 인코딩)
func Sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify 게이트웨이 콜백 서명 검증.
// 입력이 비어 있거나 서명이 hex가 아니면 검증 실패로 처리한다.
func Verify(orderID, paymentID, sig, secret string) bool {
	if orderID == "" || paymentID == "" || sig == "" || secret == "" {
		return false
	}

	provided, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))

	// hmac.Equal은 상수 시간 비교
	return hmac.Equal(provided, mac.Sum(nil))
}
