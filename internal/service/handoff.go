package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/pkg/db"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	outboxDomain "github.com/MateusMoreirac/Podscrebr/pkg/outbox/domain"
	"github.com/MateusMoreirac/Podscrebr/pkg/outbox/worker"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const handoffBaseURL = "https://api.whatsapp.com/send"

// OrderHandoff turns a fully reserved cart into an order for external fulfilment.
type OrderHandoff interface {
	Place(ctx context.Context, data domain.CheckoutData, lines []domain.CartLine) (*domain.Order, error)
}

type HandoffConfig struct {
	StoreName string
	Phone     string
	Topic     string
}

type handoff struct {
	cfg        HandoffConfig
	pool       db.TxBeginner
	outboxRepo worker.OutboxRepository
	tracer     trace.Tracer
	logger     *zap.Logger
	now        func() time.Time
}

func NewOrderHandoff(cfg HandoffConfig, pool db.TxBeginner, outboxRepo worker.OutboxRepository, logger *zap.Logger) OrderHandoff {
	return &handoff{
		cfg:        cfg,
		pool:       pool,
		outboxRepo: outboxRepo,
		tracer:     otel.Tracer("contract/handoff"),
		logger:     logger,
		now:        time.Now,
	}
}

func (h *handoff) Place(ctx context.Context, data domain.CheckoutData, lines []domain.CartLine) (*domain.Order, error) {
	ctx, span := h.tracer.Start(ctx, "OrderHandoff.Place")
	defer span.End()

	summary := BuildOrderSummary(h.cfg.StoreName, data, lines)
	order := &domain.Order{
		ID:         uuid.NewString(),
		Customer:   data,
		Lines:      lines,
		Total:      domain.Total(lines),
		Summary:    summary,
		HandoffURL: BuildHandoffURL(h.cfg.Phone, summary),
		PlacedAt:   h.now().UTC(),
	}

	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.Int("lines", len(lines)),
	)

	placed := domain.OrderPlacedEvent{
		OrderID:       order.ID,
		Customer:      data.Name,
		PaymentMethod: data.PaymentMethod,
		Items:         domain.OrderItemsFromLines(lines),
		Total:         order.Total,
		PlacedAt:      order.PlacedAt,
	}

	outboxEvent, err := outboxDomain.NewOutboxEvent(h.cfg.Topic, "Order", order.ID, domain.EventOrderPlaced, placed)
	if err != nil {
		return nil, fmt.Errorf("event payload marshal error: %w", err)
	}

	err = db.WithTx(ctx, h.pool, h.logger, func(tx pgx.Tx) error {
		return h.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent)
	})
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			h.logger,
			"Error saving order placed event",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to save outbox event: %w", err)
	}

	mylogger.Info(ctx, h.logger, "Order placed", zap.String("order_id", order.ID), zap.String("total", order.Total.StringFixed(2)))
	return order, nil
}

var paymentLabels = map[domain.PaymentMethod]string{
	domain.PaymentPix:    "PIX",
	domain.PaymentDebit:  "DEBIT",
	domain.PaymentCredit: "CREDIT",
	domain.PaymentCash:   "CASH",
}

// BuildOrderSummary renders the chat message sent to the store. Amounts are rounded to cents here.
func BuildOrderSummary(storeName string, data domain.CheckoutData, lines []domain.CartLine) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*Novo Pedido - %s* 👑\n\n", storeName)
	fmt.Fprintf(&b, "*Cliente:* %s\n", data.Name)

	fmt.Fprintf(&b, "*Endereço:* %s, %s", data.Address.Street, data.Address.Number)
	if data.Address.Complement != "" {
		fmt.Fprintf(&b, " - %s", data.Address.Complement)
	}
	b.WriteString("\n")

	label, ok := paymentLabels[data.PaymentMethod]
	if !ok {
		label = strings.ToUpper(string(data.PaymentMethod))
	}
	fmt.Fprintf(&b, "*Pagamento:* %s\n\n", label)

	b.WriteString("*Itens do Pedido:*\n")
	for _, line := range lines {
		name := line.Product.Name
		if line.Size != "" {
			name = fmt.Sprintf("%s (%s)", name, line.Size)
		}
		fmt.Fprintf(&b, "- %s x%d - R$ %s\n", name, line.Quantity, line.Subtotal().StringFixed(2))
	}

	fmt.Fprintf(&b, "\n*Total:* R$ %s", domain.Total(lines).StringFixed(2))
	return b.String()
}

// BuildHandoffURL builds the chat deep link. Spaces are encoded as %20 rather than '+'.
func BuildHandoffURL(phone, text string) string {
	encoded := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return fmt.Sprintf("%s?phone=%s&text=%s", handoffBaseURL, url.QueryEscape(phone), encoded)
}
