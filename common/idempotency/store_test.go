package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seen, err := store.Seen(ctx, "pay_1")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err := store.Mark(ctx, "pay_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	// 두 번째 표시는 최초가 아니다
	first, err = store.Mark(ctx, "pay_1", time.Hour)
	require.NoError(t, err)
	assert.False(t, first)

	seen, err = store.Seen(ctx, "pay_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, store.Forget(ctx, "pay_1"))

	seen, err = store.Seen(ctx, "pay_1")
	require.NoError(t, err)
	assert.False(t, seen)
}
