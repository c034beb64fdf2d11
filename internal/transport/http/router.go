package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/mvolkov/web_shop/internal/handlers"
	authmw "github.com/mvolkov/web_shop/internal/middleware/auth"
)

type Deps struct {
	JWTSecret      []byte
	ProductHandler *handlers.ProductHandler
	CartHandler    *handlers.CartHandler
	OrderHandler   *handlers.OrderHandler
	PaymentHandler *handlers.PaymentHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	cart := v1.Group("/cart")
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("/items", d.CartHandler.AddItem)
	cart.PATCH("/items/:id", d.CartHandler.UpdateItem)
	cart.DELETE("/items/:id", d.CartHandler.RemoveItem)

	orders := v1.Group("/orders")
	orders.POST("", d.OrderHandler.CreateOrder)
	orders.GET("", d.OrderHandler.ListMine, authmw.RequireLogin(d.JWTSecret))
	orders.GET("/:id", d.OrderHandler.Lookup)

	payments := v1.Group("/payments")
	payments.POST("", d.PaymentHandler.CreatePayment)
	payments.GET("/:id", d.PaymentHandler.GetPayment)
	payments.POST("/webhook", d.PaymentHandler.Webhook)
	payments.POST("/:id/refunds", d.PaymentHandler.CreateRefund)

	v1.GET("/refunds/:id", d.PaymentHandler.GetRefund)

	admin := v1.Group("/admin", authmw.AdminOnly(d.JWTSecret))
	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	admin.GET("/orders", d.OrderHandler.AdminList)
	admin.PATCH("/orders/:id/status", d.OrderHandler.AdminUpdateStatus)
}
