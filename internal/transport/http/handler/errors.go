package handler

import (
	"context"
	"errors"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/internal/repository"
	"github.com/MateusMoreirac/Podscrebr/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
)

func mapErrorStatus(err error) int {
	var storeErr *service.StoreError

	switch {
	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, service.ErrCartLineNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientStock),
		errors.Is(err, service.ErrCheckoutRejected),
		errors.Is(err, repository.ErrCheckoutInProgress):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidSize),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidQuantity):
		return fiber.StatusBadRequest
	case errors.As(err, &storeErr),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// errorMessage hides internal details behind 5xx responses.
func errorMessage(status int, err error) string {
	switch status {
	case fiber.StatusServiceUnavailable:
		return "service temporarily unavailable"
	case fiber.StatusGatewayTimeout:
		return "request timed out"
	case fiber.StatusInternalServerError:
		return "internal error"
	default:
		return err.Error()
	}
}

func writeError(c *fiber.Ctx, err error) error {
	status := mapErrorStatus(err)
	return c.Status(status).JSON(fiber.Map{
		"error": errorMessage(status, err),
	})
}
