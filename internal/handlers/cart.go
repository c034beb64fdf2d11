package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mvolkov/web_shop/internal/cart"
	"github.com/mvolkov/web_shop/internal/mykafka"
)

type CartHandler struct {
	Carts     *cart.Service
	Producer  *mykafka.Producer
	JWTSecret []byte
}

func (h *CartHandler) publish(c echo.Context, event map[string]any) {
	publish(c, h.Producer, "cart_events", fmt.Sprint(event["cartID"]), event)
}

func (h *CartHandler) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	crt, err := h.Carts.Resolve(ctx, identityFrom(c, h.JWTSecret))
	if err != nil {
		return serviceError(c, err)
	}
	items, err := h.Carts.Items(ctx, crt)
	if err != nil {
		return serviceError(c, err)
	}
	total, err := h.Carts.Total(ctx, crt)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"cart":  crt,
		"items": items,
		"total": total,
	})
}

func (h *CartHandler) AddItem(c echo.Context) error {
	var req struct {
		ProductID uint `json:"product_id"`
		Quantity  uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid body"})
	}

	ctx := c.Request().Context()
	crt, err := h.Carts.Resolve(ctx, identityFrom(c, h.JWTSecret))
	if err != nil {
		return serviceError(c, err)
	}
	item, err := h.Carts.AddItem(ctx, crt, req.ProductID, req.Quantity)
	if err != nil {
		return serviceError(c, err)
	}

	h.publish(c, map[string]any{
		"type":      "cart_item_added",
		"cartID":    crt.ID,
		"productID": item.ProductID,
		"quantity":  item.Quantity,
	})
	return c.JSON(http.StatusCreated, item)
}

func (h *CartHandler) UpdateItem(c echo.Context) error {
	itemID, err := strconv.Atoi(c.Param("id"))
	if err != nil || itemID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid id"})
	}

	var req struct {
		Quantity *int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil || req.Quantity == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "quantity required"})
	}

	ctx := c.Request().Context()
	crt, err := h.Carts.Resolve(ctx, identityFrom(c, h.JWTSecret))
	if err != nil {
		return serviceError(c, err)
	}
	item, err := h.Carts.SetItemQuantity(ctx, crt, uint(itemID), *req.Quantity)
	if err != nil {
		return serviceError(c, err)
	}

	h.publish(c, map[string]any{
		"type":   "cart_item_updated",
		"cartID": crt.ID,
		"itemID": itemID,
	})
	if item == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	itemID, err := strconv.Atoi(c.Param("id"))
	if err != nil || itemID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid id"})
	}

	ctx := c.Request().Context()
	crt, err := h.Carts.Resolve(ctx, identityFrom(c, h.JWTSecret))
	if err != nil {
		return serviceError(c, err)
	}
	if err := h.Carts.RemoveItem(ctx, crt, uint(itemID)); err != nil {
		return serviceError(c, err)
	}

	h.publish(c, map[string]any{
		"type":   "cart_item_deleted",
		"cartID": crt.ID,
		"itemID": itemID,
	})
	return c.NoContent(http.StatusNoContent)
}
