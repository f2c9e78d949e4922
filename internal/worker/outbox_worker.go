package worker

import (
	"context"
	"time"

	"github.com/kyungseok/course-settlement-go/common/messaging"
	"github.com/kyungseok/course-settlement-go/internal/repository"
	"go.uber.org/zap"
)

// OutboxWorker Outbox 패턴 워커.
// 정산 트랜잭션과 함께 커밋된 이벤트를 주기적으로 Kafka에 발행한다.
type OutboxWorker struct {
	store     repository.Store
	publisher messaging.Publisher
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxWorker Outbox 워커 생성
func NewOutboxWorker(
	store repository.Store,
	publisher messaging.Publisher,
	logger *zap.Logger,
	interval time.Duration,
) *OutboxWorker {
	return &OutboxWorker{
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: 100,
	}
}

// Start 워커 시작
func (w *OutboxWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("outbox worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			if err := w.Process(ctx); err != nil {
				w.logger.Error("failed to process outbox events", zap.Error(err))
			}
		}
	}
}

// Process 전송 대기 이벤트 1회 처리
func (w *OutboxWorker) Process(ctx context.Context) error {
	events, err := w.store.FindPendingOutbox(ctx, w.batchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	w.logger.Info("processing outbox events", zap.Int("count", len(events)))

	for _, event := range events {
		// 결제 ID를 키로 사용해 같은 결제의 이벤트 순서를 보장
		if err := w.publisher.Publish(ctx, event.EventType, event.AggregateID, event.Payload); err != nil {
			w.logger.Error("failed to publish event",
				zap.Int64("eventId", event.ID),
				zap.String("eventType", event.EventType),
				zap.Error(err))
			continue
		}

		if err := w.store.MarkOutboxSent(ctx, event.ID); err != nil {
			w.logger.Error("failed to mark event as sent",
				zap.Int64("eventId", event.ID),
				zap.Error(err))
		}
	}

	return nil
}
