package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify(t *testing.T) {
	secret := "test-secret"
	sig := Sign("order_1", "pay_1", secret)

	assert.True(t, Verify("order_1", "pay_1", sig, secret))
}

func TestVerify_WrongSecret(t *testing.T) {
	sig := Sign("order_1", "pay_1", "other-secret")

	assert.False(t, Verify("order_1", "pay_1", sig, "test-secret"))
}

func TestVerify_TamperedSignature(t *testing.T) {
	secret := "test-secret"
	sig := Sign("order_1", "pay_1", secret)

	// 서명의 각 바이트를 하나씩 바꿔도 모두 거부되어야 한다
	for i := 0; i < len(sig); i++ {
		tampered := []byte(sig)
		if tampered[i] == 'a' {
			tampered[i] = 'b'
		} else {
			tampered[i] = 'a'
		}
		assert.False(t, Verify("order_1", "pay_1", string(tampered), secret), "byte %d", i)
	}
}

func TestVerify_DifferentPayload(t *testing.T) {
	secret := "test-secret"
	sig := Sign("order_1", "pay_1", secret)

	assert.False(t, Verify("order_2", "pay_1", sig, secret))
	assert.False(t, Verify("order_1", "pay_2", sig, secret))
}

func TestVerify_MalformedInput(t *testing.T) {
	secret := "test-secret"
	sig := Sign("order_1", "pay_1", secret)

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		sig       string
		secret    string
	}{
		{"empty order id", "", "pay_1", sig, secret},
		{"empty payment id", "order_1", "", sig, secret},
		{"empty signature", "order_1", "pay_1", "", secret},
		{"empty secret", "order_1", "pay_1", sig, ""},
		{"non-hex signature", "order_1", "pay_1", "not-hex!!", secret},
		{"truncated signature", "order_1", "pay_1", sig[:16], secret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Verify(tt.orderID, tt.paymentID, tt.sig, tt.secret))
		})
	}
}
