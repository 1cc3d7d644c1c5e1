package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/internal/service"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	"github.com/MateusMoreirac/Podscrebr/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type ProductHandler struct {
	service  service.ProductService
	validate *validator.Validate
	timeout  time.Duration
	logger   *zap.Logger
}

func NewProductHandler(productService service.ProductService, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		service:  productService,
		validate: validator.New(),
		timeout:  timeout,
		logger:   logger,
	}
}

type CreateProductInput struct {
	Name        string           `json:"name" validate:"required,min=3,max=100"`
	Description string           `json:"description" validate:"max=1000"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Stock       int64            `json:"stock" validate:"gte=0"`
	Category    string           `json:"category" validate:"required"`
	ImageUrl    string           `json:"image_url" validate:"omitempty,url"`
	Sizes       []string         `json:"sizes" validate:"dive,required,max=10"`
}

type AdjustStockInput struct {
	Delta int64 `json:"delta" validate:"required"`
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	input := new(CreateProductInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "failed to parse body in create", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		mylogger.Warn(ctx, h.logger, "failed to validate input", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": utils.FormatValidationError(err),
		})
	}

	if input.Price.IsNegative() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fiber.Map{"price": "price must not be negative"},
		})
	}

	product := &domain.Product{
		Name:        input.Name,
		Description: input.Description,
		Price:       *input.Price,
		Stock:       input.Stock,
		Category:    input.Category,
		ImageUrl:    input.ImageUrl,
		Sizes:       input.Sizes,
	}

	id, err := h.service.Create(ctx, product)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "create product failed", zap.Error(err))
		return writeError(c, err)
	}

	mylogger.Info(ctx, h.logger, "create product succeeded", zap.String("created_id", id))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     id,
		"status": "success",
	})
}

func (h *ProductHandler) FindByID(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id := c.Params("id")

	product, err := h.service.FindByID(ctx, id)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "find by id failed", zap.String("id", id), zap.Error(err))
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(product)
}

func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit < 1 || limit > maxListLimit {
		mylogger.Warn(ctx, h.logger, "limit is invalid", zap.String("limit", c.Query("limit")))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit is invalid",
		})
	}

	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		mylogger.Warn(ctx, h.logger, "offset is invalid", zap.String("offset", c.Query("offset")))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "offset is invalid",
		})
	}

	products, total, err := h.service.List(ctx, limit, offset)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "list products failed", zap.Error(err))
		return writeError(c, err)
	}

	if products == nil {
		products = []domain.Product{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"products":    products,
		"total_count": total,
	})
}

func (h *ProductHandler) Update(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id := c.Params("id")

	input := new(domain.UpdateProductInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if input.Price != nil && input.Price.IsNegative() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fiber.Map{"price": "price must not be negative"},
		})
	}

	if input.Stock != nil && *input.Stock < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fiber.Map{"stock": "stock must be greater than or equal to 0"},
		})
	}

	product, err := h.service.Update(ctx, id, input)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "update product failed", zap.String("id", id), zap.Error(err))
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(product)
}

func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id := c.Params("id")

	if err := h.service.Delete(ctx, id); err != nil {
		mylogger.Warn(ctx, h.logger, "delete product failed", zap.String("id", id), zap.Error(err))
		return writeError(c, err)
	}

	mylogger.Info(ctx, h.logger, "product deleted successfully", zap.String("product_id", id))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
	})
}

func (h *ProductHandler) AdjustStock(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id := c.Params("id")

	input := new(AdjustStockInput)
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

	stock, err := h.service.AdjustStock(ctx, id, input.Delta)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"adjust stock failed",
			zap.String("product_id", id),
			zap.Int64("delta", input.Delta),
			zap.Error(err),
		)

		return writeError(c, err)
	}

	mylogger.Info(ctx, h.logger, "stock adjusted", zap.String("product_id", id), zap.Int64("stock", stock))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"product_id": id,
		"stock":      stock,
	})
}

func queryInt(c *fiber.Ctx, key string, fallback int64) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
