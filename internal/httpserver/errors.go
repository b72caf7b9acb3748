package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/backend"
	"github.com/Skotchmaster/storefront/internal/basket"
	"github.com/Skotchmaster/storefront/internal/checkout"
)

func statusOf(err error) int {
	switch {
	case errors.Is(err, basket.ErrInvalidProduct),
		errors.Is(err, checkout.ErrValidation),
		errors.Is(err, checkout.ErrUnknownStatus):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrNotFound),
		errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, basket.ErrStockLimit),
		errors.Is(err, basket.ErrOutOfStock),
		errors.Is(err, checkout.ErrEmptyBasket),
		errors.Is(err, checkout.ErrIllegalTransition),
		errors.Is(err, checkout.ErrAlreadyFinalized),
		errors.Is(err, checkout.ErrListenerExists):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrUpstream),
		errors.Is(err, backend.ErrRejected):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// httpError hides the cause of 500s from the client.
func httpError(status int, err error) *echo.HTTPError {
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		return echo.NewHTTPError(status, "internal server error")
	}
	return echo.NewHTTPError(status, err.Error())
}
