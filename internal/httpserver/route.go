// Package httpserver exposes the basket and checkout flows over HTTP.
package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/middleware/auth"
)

type Deps struct {
	BasketHandler   *BasketHTTP
	CheckoutHandler *CheckoutHTTP
	AdminHandler    *AdminHTTP
	JWTSecret       []byte
	// CSRF guards the cookie-authenticated API when set.
	CSRF            echo.MiddlewareFunc
	// Ready reports whether dependencies are reachable. Nil means always ready.
	Ready           func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "not ready")
			}
		}
		return c.NoContent(http.StatusOK)
	})

	var mws []echo.MiddlewareFunc
	if d.CSRF != nil {
		mws = append(mws, d.CSRF)
	}
	mws = append(mws, auth.Middleware(d.JWTSecret))
	v1 := e.Group("/api/v1", mws...)

	b := v1.Group("/basket")
	b.GET("", d.BasketHandler.GetBasket)
	b.DELETE("", d.BasketHandler.ClearBasket)
	b.POST("/items", d.BasketHandler.AddItem)
	b.POST("/items/:id/decrement", d.BasketHandler.DecrementItem)
	b.DELETE("/items/:id", d.BasketHandler.RemoveItem)
	b.POST("/remove-ordered", d.BasketHandler.RemoveOrdered)

	co := v1.Group("/checkout")
	co.POST("", d.CheckoutHandler.Begin)
	co.GET("/:id", d.CheckoutHandler.Get)
	co.POST("/:id/billing", d.CheckoutHandler.SubmitBilling)
	co.POST("/:id/events", d.CheckoutHandler.ProcessorEvent)
	co.POST("/:id/retry", d.CheckoutHandler.Retry)
	co.POST("/:id/abandon", d.CheckoutHandler.Abandon)

	admin := v1.Group("/admin", auth.RequireRole("admin"))
	admin.GET("/checkouts", d.AdminHandler.ListCheckouts)
}
