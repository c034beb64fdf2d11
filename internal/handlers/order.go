package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mvolkov/web_shop/internal/mykafka"
	"github.com/mvolkov/web_shop/internal/order"
	"github.com/mvolkov/web_shop/internal/util"
)

type OrderHandler struct {
	Orders    *order.Service
	Producer  *mykafka.Producer
	JWTSecret []byte
}

func (h *OrderHandler) publish(c echo.Context, event map[string]any) {
	publish(c, h.Producer, "order_events", fmt.Sprint(event["orderID"]), event)
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	var req struct {
		ShippingAddress string       `json:"shipping_address"`
		ContactEmail    string       `json:"contact_email"`
		ContactPhone    string       `json:"contact_phone"`
		ContactName     string       `json:"contact_name"`
		Items           []order.Line `json:"items"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid body"})
	}

	ctx := c.Request().Context()
	o, err := h.Orders.CreateOrder(ctx, order.CreateOrderInput{
		Identity:        identityFrom(c, h.JWTSecret),
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		ContactEmail:    req.ContactEmail,
		ContactPhone:    req.ContactPhone,
		ContactName:     req.ContactName,
	})
	if err != nil {
		return serviceError(c, err)
	}

	h.publish(c, map[string]any{
		"type":    "order_created",
		"orderID": o.ID,
		"total":   o.TotalAmount,
		"status":  o.Status,
	})
	return c.JSON(http.StatusCreated, o)
}

func (h *OrderHandler) ListMine(c echo.Context) error {
	userID, _, err := GetUserID(c, h.JWTSecret)
	if err != nil {
		return err
	}
	orders, err := h.Orders.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

// Lookup serves both authenticated owners and guests presenting the
// order's contact email via ?email=.
func (h *OrderHandler) Lookup(c echo.Context) error {
	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil || orderID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid id"})
	}

	req := order.Requester{GuestEmail: c.QueryParam("email")}
	if userID, role, err := GetUserID(c, h.JWTSecret); err == nil {
		req.UserID = &userID
		req.IsStaff = role == "admin"
	}

	o, err := h.Orders.Lookup(c.Request().Context(), uint(orderID), req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) AdminList(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	orders, err := h.Orders.ListAll(c.Request().Context(), limit, offset)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data":  orders,
		"count": len(orders),
		"page":  page,
	})
}

func (h *OrderHandler) AdminUpdateStatus(c echo.Context) error {
	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil || orderID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid id"})
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "status required"})
	}

	ctx := c.Request().Context()
	o, err := h.Orders.Lookup(ctx, uint(orderID), order.Requester{IsStaff: true})
	if err != nil {
		return serviceError(c, err)
	}
	previous := o.Status
	if err := h.Orders.UpdateStatus(ctx, o, req.Status); err != nil {
		return serviceError(c, err)
	}

	h.publish(c, map[string]any{
		"type":    "order_status_changed",
		"orderID": o.ID,
		"from":    previous,
		"to":      o.Status,
	})
	return c.JSON(http.StatusOK, o)
}
