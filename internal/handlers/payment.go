package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/mvolkov/web_shop/internal/models"
	"github.com/mvolkov/web_shop/internal/mykafka"
	"github.com/mvolkov/web_shop/internal/payment"
)

type PaymentHandler struct {
	Payments  *payment.Service
	Producer  *mykafka.Producer
	JWTSecret []byte
	// StripeConfigured selects the signed webhook path; without it the
	// endpoint accepts the dummy JSON shape.
	StripeConfigured bool
}

func (h *PaymentHandler) publish(c echo.Context, event map[string]any) {
	publish(c, h.Producer, "payment_events", fmt.Sprint(event["paymentID"]), event)
}

func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	var req struct {
		OrderID uint `json:"order_id"`
	}
	if err := c.Bind(&req); err != nil || req.OrderID == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "order_id required"})
	}

	tx, clientSecret, err := h.Payments.CreatePayment(c.Request().Context(), req.OrderID)
	if err != nil {
		return serviceError(c, err)
	}

	h.publish(c, map[string]any{
		"type":      "payment_created",
		"paymentID": tx.ID,
		"orderID":   req.OrderID,
		"provider":  tx.Provider,
	})

	resp := map[string]any{"payment": tx}
	if clientSecret != "" {
		resp["client_secret"] = clientSecret
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *PaymentHandler) GetPayment(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid id"})
	}
	tx, err := h.Payments.GetPayment(c.Request().Context(), uint(id))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, tx)
}

// Webhook receives provider events. With Stripe configured the payload
// must carry a valid signature; otherwise the dummy JSON shape
// {provider, provider_id, event} is accepted for local development.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "unreadable body"})
	}
	ctx := c.Request().Context()

	if h.StripeConfigured {
		sig := c.Request().Header.Get("Stripe-Signature")
		if sig == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"detail": "missing Stripe-Signature header"})
		}
		if err := h.Payments.HandleProviderWebhook(ctx, body, sig); err != nil {
			return serviceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]bool{"received": true})
	}

	var req struct {
		Provider   string `json:"provider"`
		ProviderID string `json:"provider_id"`
		Event      string `json:"event"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid webhook payload"})
	}
	if err := h.Payments.HandleDummyEvent(ctx, req.Provider, req.ProviderID, req.Event); err != nil {
		return serviceError(c, err)
	}

	h.publish(c, map[string]any{
		"type":       "payment_event_processed",
		"paymentID":  req.ProviderID,
		"providerID": req.ProviderID,
		"event":      req.Event,
	})
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (h *PaymentHandler) CreateRefund(c echo.Context) error {
	paymentID, err := strconv.Atoi(c.Param("id"))
	if err != nil || paymentID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid id"})
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid body"})
	}

	refund, err := h.Payments.CreateRefund(c.Request().Context(), uint(paymentID), req.Amount)
	if err != nil {
		return serviceError(c, err)
	}

	h.publish(c, map[string]any{
		"type":      "refund_created",
		"paymentID": paymentID,
		"refundID":  refund.ID,
		"status":    refund.Status,
	})
	if refund.Status == models.RefundStatusFailed {
		return c.JSON(http.StatusBadGateway, refund)
	}
	return c.JSON(http.StatusCreated, refund)
}

func (h *PaymentHandler) GetRefund(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid id"})
	}
	refund, err := h.Payments.GetRefund(c.Request().Context(), uint(id))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, refund)
}
