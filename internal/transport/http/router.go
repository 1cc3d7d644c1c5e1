package http

import (
	"github.com/MateusMoreirac/Podscrebr/internal/transport/http/handler"
	"github.com/MateusMoreirac/Podscrebr/internal/transport/http/middleware"
	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Product  *handler.ProductHandler
	Cart     *handler.CartHandler
	Checkout *handler.CheckoutHandler
	Metrics  fiber.Handler
}

func RegisterRoutes(app *fiber.App, h *Handlers) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if h.Metrics != nil {
		app.Get("/metrics", h.Metrics)
	}

	api := app.Group("/api")

	product := api.Group("/products")
	product.Get("", h.Product.ListProducts)
	product.Post("", h.Product.Create)
	product.Get("/:id", h.Product.FindByID)
	product.Patch("/:id", h.Product.Update)
	product.Delete("/:id", h.Product.DeleteProduct)
	product.Post("/:id/stock", h.Product.AdjustStock)

	session := middleware.NewSessionMiddleware()

	cart := api.Group("/cart", session)
	cart.Get("", h.Cart.Get)
	cart.Delete("", h.Cart.Clear)
	cart.Post("/items", h.Cart.AddItem)
	cart.Patch("/items/:productId", h.Cart.UpdateItem)
	cart.Delete("/items/:productId", h.Cart.RemoveItem)

	api.Post("/checkout", session, h.Checkout.Checkout)
}
