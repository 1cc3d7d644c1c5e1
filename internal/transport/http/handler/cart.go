package handler

import (
	"context"
	"time"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/internal/service"
	"github.com/MateusMoreirac/Podscrebr/internal/transport/http/middleware"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	"github.com/MateusMoreirac/Podscrebr/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type CartHandler struct {
	service  service.CartService
	validate *validator.Validate
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCartHandler(cartService service.CartService, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		service:  cartService,
		validate: validator.New(),
		timeout:  timeout,
		logger:   logger,
	}
}

type AddItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gte=1"`
	Size      string `json:"size" validate:"max=10"`
}

type UpdateItemInput struct {
	Quantity int64  `json:"quantity"`
	Size     string `json:"size" validate:"max=10"`
}

type cartLineView struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	ImageUrl     string `json:"image_url,omitempty"`
	Size         string `json:"size,omitempty"`
	Quantity     int64  `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	Subtotal     string `json:"subtotal"`
	CanIncrement bool   `json:"can_increment"`
}

type cartView struct {
	Lines     []cartLineView `json:"lines"`
	ItemCount int64          `json:"item_count"`
	Total     string         `json:"total"`
}

func newCartView(cart *domain.Cart) cartView {
	view := cartView{
		Lines:     make([]cartLineView, 0, len(cart.Lines)),
		ItemCount: cart.ItemCount(),
		Total:     cart.Total().StringFixed(2),
	}

	for _, line := range cart.Lines {
		view.Lines = append(view.Lines, cartLineView{
			ProductID:    line.Product.ID,
			Name:         line.Product.Name,
			ImageUrl:     line.Product.ImageUrl,
			Size:         line.Size,
			Quantity:     line.Quantity,
			UnitPrice:    line.Product.Price.StringFixed(2),
			Subtotal:     line.Subtotal().StringFixed(2),
			CanIncrement: line.CanIncrement(),
		})
	}
	return view
}

func (h *CartHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	cart, err := h.service.Get(ctx, middleware.SessionID(c))
	if err != nil {
		mylogger.Warn(ctx, h.logger, "get cart failed", zap.Error(err))
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(newCartView(cart))
}

func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	input := new(AddItemInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": utils.FormatValidationError(err),
		})
	}

	cart, err := h.service.AddItem(ctx, middleware.SessionID(c), input.ProductID, input.Quantity, input.Size)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "add cart item failed", zap.String("product_id", input.ProductID), zap.Error(err))
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(newCartView(cart))
}

// UpdateItem sets a line's quantity; zero or less removes the line.
func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	productID := c.Params("productId")

	input := new(UpdateItemInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": utils.FormatValidationError(err),
		})
	}

	cart, err := h.service.UpdateQuantity(ctx, middleware.SessionID(c), productID, input.Size, input.Quantity)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "update cart item failed", zap.String("product_id", productID), zap.Error(err))
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(newCartView(cart))
}

func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	productID := c.Params("productId")
	size := c.Query("size")

	cart, err := h.service.RemoveItem(ctx, middleware.SessionID(c), productID, size)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "remove cart item failed", zap.String("product_id", productID), zap.Error(err))
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(newCartView(cart))
}

func (h *CartHandler) Clear(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	if err := h.service.Clear(ctx, middleware.SessionID(c)); err != nil {
		mylogger.Warn(ctx, h.logger, "clear cart failed", zap.Error(err))
		return writeError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
