package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func summaryLines() []domain.CartLine {
	return []domain.CartLine{
		{Product: domain.Product{ID: "p1", Name: "Camisa Preta", Price: decimal.RequireFromString("49.90")}, Quantity: 2, Size: "M"},
		{Product: domain.Product{ID: "p2", Name: "Boné", Price: decimal.RequireFromString("35")}, Quantity: 1},
	}
}

func TestBuildOrderSummary(t *testing.T) {
	data := domain.CheckoutData{
		Name:          "Maria Souza",
		Address:       domain.Address{Street: "Rua das Flores", Number: "123", Complement: "Apto 4"},
		PaymentMethod: domain.PaymentCredit,
	}

	summary := BuildOrderSummary("Podscre", data, summaryLines())

	expected := strings.Join([]string{
		"*Novo Pedido - Podscre* 👑",
		"",
		"*Cliente:* Maria Souza",
		"*Endereço:* Rua das Flores, 123 - Apto 4",
		"*Pagamento:* CREDIT",
		"",
		"*Itens do Pedido:*",
		"- Camisa Preta (M) x2 - R$ 99.80",
		"- Boné x1 - R$ 35.00",
		"",
		"*Total:* R$ 134.80",
	}, "\n")
	require.Equal(t, expected, summary)
}

func TestBuildOrderSummary_NoComplement(t *testing.T) {
	data := domain.CheckoutData{
		Name:          "João",
		Address:       domain.Address{Street: "Av. Central", Number: "9"},
		PaymentMethod: domain.PaymentPix,
	}

	summary := BuildOrderSummary("Podscre", data, summaryLines())

	require.Contains(t, summary, "*Endereço:* Av. Central, 9\n")
	require.Contains(t, summary, "*Pagamento:* PIX\n")
}

func TestBuildHandoffURL(t *testing.T) {
	text := "*Total:* R$ 10.00 & more +1"

	link := BuildHandoffURL("5584999999999", text)

	require.True(t, strings.HasPrefix(link, "https://api.whatsapp.com/send?phone=5584999999999&text="))
	require.NotContains(t, link, "+")
	require.Contains(t, link, "%20")

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, text, parsed.Query().Get("text"))
	require.Equal(t, "5584999999999", parsed.Query().Get("phone"))
}

func TestHandoffPlace_RecordsOrderPlacedEvent(t *testing.T) {
	outbox := &fakeOutbox{}
	beginner := newFakeBeginner()

	h := NewOrderHandoff(HandoffConfig{StoreName: "Podscre", Phone: "55", Topic: "order_events"}, beginner, outbox, zap.NewNop()).(*handoff)
	h.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	order, err := h.Place(context.Background(), customer, summaryLines())
	require.NoError(t, err)

	require.NotEmpty(t, order.ID)
	require.True(t, decimal.RequireFromString("134.80").Equal(order.Total))
	require.Contains(t, order.HandoffURL, "phone=55")
	require.Equal(t, 1, beginner.tx.committed)

	require.Len(t, outbox.events, 1)
	event := outbox.events[0]
	require.Equal(t, "order_events", event.Topic)
	require.Equal(t, order.ID, event.AggregateID)
	require.Equal(t, domain.EventOrderPlaced, event.EventType)

	var envelope struct {
		Event   string                  `json:"event"`
		Payload domain.OrderPlacedEvent `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(event.Payload, &envelope))
	require.Equal(t, domain.EventOrderPlaced, envelope.Event)
	require.Equal(t, order.ID, envelope.Payload.OrderID)
	require.Len(t, envelope.Payload.Items, 2)
	require.Equal(t, int64(2), envelope.Payload.Items[0].Quantity)
}

func TestHandoffPlace_OutboxFailure(t *testing.T) {
	outbox := &fakeOutbox{saveErr: errors.New("db down")}
	beginner := newFakeBeginner()
	h := NewOrderHandoff(HandoffConfig{Topic: "order_events"}, beginner, outbox, zap.NewNop())

	_, err := h.Place(context.Background(), customer, summaryLines())

	require.Error(t, err)
	require.Zero(t, beginner.tx.committed)
	require.Equal(t, 1, beginner.tx.rolledBack)
}
