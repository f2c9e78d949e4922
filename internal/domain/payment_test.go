package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentRecord_TransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{"pending to verified", PaymentStatusPending, PaymentStatusVerified, true},
		{"pending to failed", PaymentStatusPending, PaymentStatusFailed, true},
		{"pending to pending", PaymentStatusPending, PaymentStatusPending, false},
		{"verified is terminal", PaymentStatusVerified, PaymentStatusFailed, false},
		{"failed is terminal", PaymentStatusFailed, PaymentStatusVerified, false},
		{"verified stays verified", PaymentStatusVerified, PaymentStatusVerified, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &PaymentRecord{Status: tt.from}
			got := p.TransitionTo(tt.to)

			assert.Equal(t, tt.want, got)
			if tt.want {
				assert.Equal(t, tt.to, p.Status)
			} else {
				assert.Equal(t, tt.from, p.Status)
			}
		})
	}
}

func TestPaymentRecord_IsTerminal(t *testing.T) {
	assert.False(t, (&PaymentRecord{Status: PaymentStatusPending}).IsTerminal())
	assert.True(t, (&PaymentRecord{Status: PaymentStatusVerified}).IsTerminal())
	assert.True(t, (&PaymentRecord{Status: PaymentStatusFailed}).IsTerminal())
}

func TestCourse_IsFree(t *testing.T) {
	assert.True(t, (&Course{Price: 0}).IsFree())
	assert.False(t, (&Course{Price: 5000}).IsFree())
}
