package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/backend"
	"github.com/Skotchmaster/storefront/internal/basket"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/middleware/auth"
)

type ProductSource interface {
	GetProduct(ctx context.Context, token string, id int64) (*backend.Drug, error)
}

type BasketHTTP struct {
	Store     *basket.Store
	Products  ProductSource
	Publisher events.Publisher
}

type basketView struct {
	Items    []basket.CartLine `json:"items"`
	Total    string            `json:"total"`
	Quantity int               `json:"quantity"`
}

func viewOf(b basket.Basket) basketView {
	return basketView{
		Items:    b.Lines(),
		Total:    b.Total().StringFixed(2),
		Quantity: b.Quantity(),
	}
}

func (h *BasketHTTP) GetBasket(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "get.basket")

	owner, err := auth.UserID(c)
	if err != nil {
		l.Error("get_basket_error", "status", 401, "error", err)
		return err
	}

	b, err := h.Store.Get(ctx, owner)
	if err != nil {
		l.Error("get_basket_error", "status", 500, "error", err)
		return httpError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, viewOf(b))
}

func (h *BasketHTTP) AddItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "add.basket.item")

	owner, err := auth.UserID(c)
	if err != nil {
		l.Error("add_item_error", "status", 401, "error", err)
		return err
	}

	var req struct {
		ProductID int64 `json:"product_id"`
	}
	if err := c.Bind(&req); err != nil || req.ProductID <= 0 {
		l.Warn("add_item_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "product_id required")
	}

	drug, err := h.Products.GetProduct(ctx, auth.APIToken(c), req.ProductID)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		l.Error("add_item_error", "status", status, "product_id", req.ProductID, "error", err)
		return httpError(status, err)
	}

	b, err := h.Store.AddOrIncrement(ctx, owner, drug.Product())
	if errors.Is(err, basket.ErrStockLimit) {
		l.Warn("add_item_stock_limit", "status", 409, "product_id", req.ProductID)
		return c.JSON(http.StatusConflict, map[string]any{
			"message": err.Error(),
			"basket":  viewOf(b),
		})
	}
	if err != nil {
		status := statusOf(err)
		l.Error("add_item_error", "status", status, "product_id", req.ProductID, "error", err)
		return httpError(status, err)
	}

	h.publish(c, owner, "item_added", req.ProductID, b)
	return c.JSON(http.StatusOK, viewOf(b))
}

func (h *BasketHTTP) DecrementItem(c echo.Context) error {
	return h.lineOp(c, "decrement.basket.item", "item_decremented", h.Store.Decrement)
}

func (h *BasketHTTP) RemoveItem(c echo.Context) error {
	return h.lineOp(c, "remove.basket.item", "item_removed", h.Store.Remove)
}

func (h *BasketHTTP) lineOp(c echo.Context, name, eventType string, op func(context.Context, string, int64) (basket.Basket, error)) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", name)

	owner, err := auth.UserID(c)
	if err != nil {
		l.Error("basket_op_error", "status", 401, "error", err)
		return err
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		l.Warn("basket_op_error", "status", 400, "id", c.Param("id"))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	b, err := op(ctx, owner, id)
	if err != nil {
		l.Error("basket_op_error", "status", 500, "error", err)
		return httpError(http.StatusInternalServerError, err)
	}

	h.publish(c, owner, eventType, id, b)
	return c.JSON(http.StatusOK, viewOf(b))
}

func (h *BasketHTTP) ClearBasket(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "clear.basket")

	owner, err := auth.UserID(c)
	if err != nil {
		l.Error("clear_basket_error", "status", 401, "error", err)
		return err
	}

	b, err := h.Store.Clear(ctx, owner)
	if err != nil {
		l.Error("clear_basket_error", "status", 500, "error", err)
		return httpError(http.StatusInternalServerError, err)
	}

	h.publish(c, owner, "basket_cleared", 0, b)
	return c.JSON(http.StatusOK, viewOf(b))
}

func (h *BasketHTTP) RemoveOrdered(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "remove.ordered")

	owner, err := auth.UserID(c)
	if err != nil {
		l.Error("remove_ordered_error", "status", 401, "error", err)
		return err
	}

	var req struct {
		ProductIDs []int64 `json:"product_ids"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("remove_ordered_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	b, err := h.Store.RemoveCompleted(ctx, owner, req.ProductIDs)
	if err != nil {
		l.Error("remove_ordered_error", "status", 500, "error", err)
		return httpError(http.StatusInternalServerError, err)
	}

	h.publish(c, owner, "ordered_removed", 0, b)
	return c.JSON(http.StatusOK, viewOf(b))
}

func (h *BasketHTTP) publish(c echo.Context, owner, typ string, productID int64, b basket.Basket) {
	if h.Publisher == nil {
		return
	}
	ctx := c.Request().Context()
	ev := events.BasketEvent{
		Type:      typ,
		UserID:    owner,
		ProductID: productID,
		Quantity:  b.Quantity(),
		Total:     b.Total().StringFixed(2),
		Timestamp: time.Now().UTC(),
	}
	if err := h.Publisher.PublishEvent(ctx, events.TopicBasket, owner, ev); err != nil {
		logging.FromContext(ctx).Warn("kafka_publish_failed", "topic", events.TopicBasket, "error", err)
	}
}
