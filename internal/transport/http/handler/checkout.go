package handler

import (
	"context"
	"errors"
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

type CheckoutHandler struct {
	service  service.CheckoutService
	validate *validator.Validate
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCheckoutHandler(checkoutService service.CheckoutService, timeout time.Duration, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service:  checkoutService,
		validate: validator.New(),
		timeout:  timeout,
		logger:   logger,
	}
}

func (h *CheckoutHandler) Checkout(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	input := new(domain.CheckoutData)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		mylogger.Warn(ctx, h.logger, "checkout form invalid", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": utils.FormatValidationError(err),
		})
	}

	sessionID := middleware.SessionID(c)

	order, err := h.service.Checkout(ctx, sessionID, *input)
	if err != nil {
		var rejected *service.CheckoutRejectedError
		if errors.As(err, &rejected) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "some items could not be reserved",
				"items": rejected.Lines,
			})
		}

		mylogger.Warn(ctx, h.logger, "checkout failed", zap.String("session_id", sessionID), zap.Error(err))
		return writeError(c, err)
	}

	mylogger.Info(ctx, h.logger, "checkout succeeded", zap.String("order_id", order.ID))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id":    order.ID,
		"total":       order.Total.StringFixed(2),
		"summary":     order.Summary,
		"handoff_url": order.HandoffURL,
	})
}
