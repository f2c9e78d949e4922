package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kyungseok/course-settlement-go/common/logger"
	"github.com/kyungseok/course-settlement-go/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePublisher 발행 호출을 기록하는 테스트용 발행자
type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	failTopic string
}

type publishedMessage struct {
	topic string
	key   string
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic == p.failTopic {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, publishedMessage{topic: topic, key: key})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func insertOutboxEvent(t *testing.T, store *repository.MemoryStore, eventType, aggregateID string) {
	t.Helper()
	err := store.ExecTx(context.Background(), func(tx repository.Tx) error {
		return tx.InsertOutbox(context.Background(), &repository.OutboxEvent{
			AggregateType: "payment",
			AggregateID:   aggregateID,
			EventType:     eventType,
			Payload:       []byte(`{}`),
			Status:        "PENDING",
			CreatedAt:     time.Now(),
		})
	})
	require.NoError(t, err)
}

func TestOutboxWorker_Process(t *testing.T) {
	store := repository.NewMemoryStore()
	publisher := &fakePublisher{}
	w := NewOutboxWorker(store, publisher, logger.NewTestLogger(), time.Second)
	ctx := context.Background()

	insertOutboxEvent(t, store, "payment.verified.v1", "pay_1")
	insertOutboxEvent(t, store, "course.enrolled.v1", "pay_1")

	require.NoError(t, w.Process(ctx))

	require.Len(t, publisher.published, 2)
	assert.Equal(t, "payment.verified.v1", publisher.published[0].topic)
	assert.Equal(t, "pay_1", publisher.published[0].key)

	// 전송 완료 표시 후에는 다시 발행하지 않는다
	require.NoError(t, w.Process(ctx))
	assert.Len(t, publisher.published, 2)
}

func TestOutboxWorker_KeepsFailedEventsPending(t *testing.T) {
	store := repository.NewMemoryStore()
	publisher := &fakePublisher{failTopic: "payment.verified.v1"}
	w := NewOutboxWorker(store, publisher, logger.NewTestLogger(), time.Second)
	ctx := context.Background()

	insertOutboxEvent(t, store, "payment.verified.v1", "pay_1")
	insertOutboxEvent(t, store, "course.enrolled.v1", "pay_1")

	require.NoError(t, w.Process(ctx))

	// 실패한 이벤트는 PENDING으로 남아 다음 주기에 재시도된다
	pending, err := store.FindPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "payment.verified.v1", pending[0].EventType)

	publisher.failTopic = ""
	require.NoError(t, w.Process(ctx))

	pending, err = store.FindPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxWorker_StopsOnContextCancel(t *testing.T) {
	store := repository.NewMemoryStore()
	w := NewOutboxWorker(store, &fakePublisher{}, logger.NewTestLogger(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}
