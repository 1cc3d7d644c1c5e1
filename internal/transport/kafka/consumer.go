package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/internal/repository"
	"github.com/MateusMoreirac/Podscrebr/internal/service"
	"github.com/MateusMoreirac/Podscrebr/pkg/db"
	"github.com/MateusMoreirac/Podscrebr/pkg/kafka"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	outboxUtils "github.com/MateusMoreirac/Podscrebr/pkg/outbox/utils"
	"go.uber.org/zap"
)

// DedupFunc runs action at most once per event id and item key. The claim is only kept
// when action succeeds.
type DedupFunc func(ctx context.Context, eventID int64, itemKey string, action func(ctx context.Context) error) error

type Consumer struct {
	service service.ProductService
	dedup   DedupFunc
	logger  *zap.Logger
}

func NewConsumer(service service.ProductService, pool db.TxBeginner, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		dedup: func(ctx context.Context, eventID int64, itemKey string, action func(ctx context.Context) error) error {
			return outboxUtils.ProcessWithDeduplication(ctx, pool, logger, eventID, itemKey, action)
		},
		logger: logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, groupID, topic string) error {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		[]string{topic},
		c.processMessage,
		c.logger,
	)

	return consumerGroup.Run(ctx)
}

type eventWrapper struct {
	Event   string          `json:"event"`
	EventID int64           `json:"event_id"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Info(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
	)

	var wrapper eventWrapper
	if err := json.Unmarshal(msg.Value, &wrapper); err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling wrapper", zap.Error(err))
		return kafka.Permanent(err)
	}

	switch wrapper.Event {
	case domain.EventOrderCancelled:
		var event domain.OrderCancelledEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Warn(ctx, c.logger, "Error unmarshalling event structure", zap.Error(err))
			return kafka.Permanent(err)
		}

		if err := c.returnStock(ctx, wrapper.EventID, &event); err != nil {
			mylogger.Warn(ctx, c.logger, "Error processing return stock", zap.String("order_id", event.OrderID), zap.Error(err))
			return err
		}
	default:
		mylogger.Debug(ctx, c.logger, "Ignored event type", zap.String("event_type", wrapper.Event))
	}

	return nil
}

// returnStock restocks each cancelled product once per event id. Products that were
// restocked by an earlier delivery of the same event are skipped, so a redelivery only
// retries the ones that failed.
func (c *Consumer) returnStock(ctx context.Context, eventID int64, event *domain.OrderCancelledEvent) error {
	items := mergeItems(event.Items)

	if eventID == 0 {
		mylogger.Warn(ctx, c.logger, "Cancellation without event id, processing without deduplication", zap.String("order_id", event.OrderID))
		_, err := c.service.ReturnStock(ctx, items)
		return err
	}

	var errs []error
	for _, item := range items {
		err := c.dedup(ctx, eventID, item.ProductID, func(ctx context.Context) error {
			return c.restockItem(ctx, event.OrderID, item)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// restockItem treats a product that no longer exists as done: there is no stock to return.
func (c *Consumer) restockItem(ctx context.Context, orderID string, item domain.OrderItemEvent) error {
	_, err := c.service.ReturnStock(ctx, []domain.OrderItemEvent{item})
	if errors.Is(err, repository.ErrProductNotFound) {
		mylogger.Warn(
			ctx,
			c.logger,
			"Cancelled product no longer exists, skipping restock",
			zap.String("order_id", orderID),
			zap.String("product_id", item.ProductID),
		)
		return nil
	}
	return err
}

// mergeItems sums quantities per product; sizes of one product share one stock counter.
func mergeItems(items []domain.OrderItemEvent) []domain.OrderItemEvent {
	merged := make([]domain.OrderItemEvent, 0, len(items))
	index := make(map[string]int, len(items))

	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}

		index[item.ProductID] = len(merged)
		merged = append(merged, domain.OrderItemEvent{ProductID: item.ProductID, Name: item.Name, Quantity: item.Quantity})
	}
	return merged
}
