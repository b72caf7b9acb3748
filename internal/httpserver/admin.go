package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/util"
)

type SessionLister interface {
	ListSessions(ctx context.Context, state models.CheckoutState, limit, offset int) ([]models.CheckoutSession, int64, error)
}

type AdminHTTP struct {
	Sessions SessionLister
}

type sessionPage struct {
	Items []models.CheckoutSession `json:"items"`
	Total int64                    `json:"total"`
	Page  int                      `json:"page"`
	Size  int                      `json:"size"`
}

func (h *AdminHTTP) ListCheckouts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.list.checkouts")

	page := util.Atoi(c.QueryParam("page"), 1)
	offset, limit := util.Calculate(page, util.Atoi(c.QueryParam("size"), util.DefaultPageSize))
	if page < 1 {
		page = 1
	}

	state := models.CheckoutState(c.QueryParam("state"))
	if state != "" && !state.Valid() {
		l.Warn("list_checkouts_error", "status", 400, "state", state)
		return echo.NewHTTPError(http.StatusBadRequest, "unknown state")
	}

	items, total, err := h.Sessions.ListSessions(ctx, state, limit, offset)
	if err != nil {
		l.Error("list_checkouts_error", "status", 500, "error", err)
		return httpError(http.StatusInternalServerError, err)
	}
	if items == nil {
		items = []models.CheckoutSession{}
	}

	return c.JSON(http.StatusOK, sessionPage{Items: items, Total: total, Page: page, Size: limit})
}
