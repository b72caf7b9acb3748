package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/checkout"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/middleware/auth"
	"github.com/Skotchmaster/storefront/internal/models"
)

type CheckoutHTTP struct {
	Orch *checkout.Orchestrator
}

func parseSessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid checkout id")
	}
	return id, nil
}

func (h *CheckoutHTTP) Begin(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "begin.checkout")

	owner, err := auth.UserID(c)
	if err != nil {
		l.Error("begin_checkout_error", "status", 401, "error", err)
		return err
	}

	v, err := h.Orch.Begin(ctx, owner)
	if err != nil {
		status := statusOf(err)
		l.Error("begin_checkout_error", "status", status, "error", err)
		return httpError(status, err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *CheckoutHTTP) Get(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "get.checkout")

	owner, err := auth.UserID(c)
	if err != nil {
		l.Error("get_checkout_error", "status", 401, "error", err)
		return err
	}
	id, err := parseSessionID(c)
	if err != nil {
		l.Warn("get_checkout_error", "status", 400, "id", c.Param("id"))
		return err
	}

	v, err := h.Orch.Get(ctx, owner, id)
	if err != nil {
		status := statusOf(err)
		l.Error("get_checkout_error", "status", status, "error", err)
		return httpError(status, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *CheckoutHTTP) SubmitBilling(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "submit.billing")

	owner, err := auth.UserID(c)
	if err != nil {
		l.Error("submit_billing_error", "status", 401, "error", err)
		return err
	}
	id, err := parseSessionID(c)
	if err != nil {
		l.Warn("submit_billing_error", "status", 400, "id", c.Param("id"))
		return err
	}

	var form models.BillingForm
	if err := c.Bind(&form); err != nil {
		l.Warn("submit_billing_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	popup, err := h.Orch.SubmitBilling(ctx, owner, id, form, auth.APIToken(c))
	if err != nil {
		status := statusOf(err)
		l.Error("submit_billing_error", "status", status, "checkout_id", id, "error", err)
		return httpError(status, err)
	}
	return c.JSON(http.StatusOK, popup)
}

func (h *CheckoutHTTP) ProcessorEvent(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "processor.event")

	owner, err := auth.UserID(c)
	if err != nil {
		l.Error("processor_event_error", "status", 401, "error", err)
		return err
	}
	id, err := parseSessionID(c)
	if err != nil {
		l.Warn("processor_event_error", "status", 400, "id", c.Param("id"))
		return err
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		l.Warn("processor_event_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "status required")
	}

	v, err := h.Orch.HandleProcessorEvent(ctx, owner, id, req.Status, auth.APIToken(c))
	if err != nil {
		status := statusOf(err)
		l.Error("processor_event_error", "status", status, "checkout_id", id, "error", err)
		return httpError(status, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *CheckoutHTTP) Retry(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "retry.checkout")

	owner, err := auth.UserID(c)
	if err != nil {
		l.Error("retry_checkout_error", "status", 401, "error", err)
		return err
	}
	id, err := parseSessionID(c)
	if err != nil {
		l.Warn("retry_checkout_error", "status", 400, "id", c.Param("id"))
		return err
	}

	v, err := h.Orch.Retry(ctx, owner, id)
	if err != nil {
		status := statusOf(err)
		l.Error("retry_checkout_error", "status", status, "checkout_id", id, "error", err)
		return httpError(status, err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *CheckoutHTTP) Abandon(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "abandon.checkout")

	owner, err := auth.UserID(c)
	if err != nil {
		l.Error("abandon_checkout_error", "status", 401, "error", err)
		return err
	}
	id, err := parseSessionID(c)
	if err != nil {
		l.Warn("abandon_checkout_error", "status", 400, "id", c.Param("id"))
		return err
	}

	v, err := h.Orch.Abandon(ctx, owner, id)
	if err != nil {
		status := statusOf(err)
		l.Error("abandon_checkout_error", "status", status, "checkout_id", id, "error", err)
		return httpError(status, err)
	}
	return c.JSON(http.StatusOK, v)
}
