package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MateusMoreirac/Podscrebr/pkg/db"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	"github.com/MateusMoreirac/Podscrebr/pkg/outbox/domain"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	GetUnpublishedEvents(ctx context.Context, tx pgx.Tx, batchSize int) ([]*domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error
	MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) error
}

type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic, key string, message any) error
}

type OutboxProcessor struct {
	pool          db.TxBeginner
	repo          OutboxRepository
	kafkaProducer KafkaProducer
	logger        *zap.Logger
	batchSize     int
	interval      time.Duration
	tracer        trace.Tracer
}

func NewOutboxProcessor(
	pool db.TxBeginner,
	repo OutboxRepository,
	producer KafkaProducer,
	logger *zap.Logger,
) *OutboxProcessor {
	return &OutboxProcessor{
		pool:          pool,
		repo:          repo,
		kafkaProducer: producer,
		logger:        logger,
		batchSize:     50,
		interval:      500 * time.Millisecond,
		tracer:        otel.Tracer("outbox-worker"),
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(ctx, p.logger, "Starting outbox processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, p.logger, "Outbox processor stopping")
			return
		case <-ticker.C:
			if err := p.ProcessBatch(ctx); err != nil {
				mylogger.Error(
					ctx,
					p.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessBatch publishes one batch of pending events. A failed publish is recorded on the
// row and retried on a later tick; the batch itself still commits.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.ProcessBatch")
	defer span.End()

	return db.WithTx(ctx, p.pool, p.logger, func(tx pgx.Tx) error {
		events, err := p.repo.GetUnpublishedEvents(ctx, tx, p.batchSize)
		if err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}

		mylogger.Info(ctx, p.logger, "Processing outbox events", zap.Int("count", len(events)))

		for _, event := range events {
			if err := p.publish(ctx, tx, event); err != nil {
				return err
			}
		}

		return nil
	})
}

func (p *OutboxProcessor) publish(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	var payloadMap map[string]any
	if err := json.Unmarshal(event.Payload, &payloadMap); err != nil {
		mylogger.Error(
			ctx,
			p.logger,
			"outbox worker unmarshal event payload failed",
			zap.Int64("id", event.ID),
			zap.Error(err),
		)

		return p.repo.MarkEventFailed(ctx, tx, event.ID, err.Error())
	}

	payloadMap["event_id"] = event.ID

	if err := p.kafkaProducer.ProduceMessage(ctx, event.Topic, event.AggregateID, payloadMap); err != nil {
		mylogger.Error(
			ctx,
			p.logger,
			"outbox worker produce message failed",
			zap.Int64("id", event.ID),
			zap.Error(err),
		)

		if dbErr := p.repo.MarkEventFailed(ctx, tx, event.ID, err.Error()); dbErr != nil {
			return fmt.Errorf("failed to mark event %d failed: %w", event.ID, dbErr)
		}
		return nil
	}

	if err := p.repo.MarkEventPublished(ctx, tx, event.ID); err != nil {
		return fmt.Errorf("failed to mark event %d published: %w", event.ID, err)
	}

	mylogger.Debug(ctx, p.logger, "outbox worker event published successfully", zap.Int64("id", event.ID))
	return nil
}
