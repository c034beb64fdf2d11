package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mvolkov/web_shop/internal/cart"
	"github.com/mvolkov/web_shop/internal/mykafka"
	"github.com/mvolkov/web_shop/internal/order"
	"github.com/mvolkov/web_shop/internal/payment"
)

const sessionCookieName = "cart_session"

// GetUserID pulls the authenticated user id and role out of the access
// token cookie. Anonymous shoppers simply have no cookie.
func GetUserID(c echo.Context, jwtSecret []byte) (uint, string, error) {
	cookie, err := c.Cookie("accessToken")
	if err != nil || cookie.Value == "" {
		return 0, "", echo.NewHTTPError(http.StatusUnauthorized, "missing auth cookie")
	}

	token, err := jwt.Parse(cookie.Value, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return 0, "", echo.NewHTTPError(http.StatusBadRequest, "invalid subject claim")
	}
	role, _ := claims["role"].(string)

	return uint(sub), role, nil
}

// identityFrom resolves the shopper identity: the authenticated user when
// an access token is present, otherwise the anonymous session cookie,
// created on first touch.
func identityFrom(c echo.Context, jwtSecret []byte) cart.Identity {
	if userID, _, err := GetUserID(c, jwtSecret); err == nil {
		return cart.Identity{UserID: &userID}
	}

	if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cart.Identity{SessionKey: cookie.Value}
	}

	key := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(30 * 24 * time.Hour),
	})
	return cart.Identity{SessionKey: key}
}

// serviceError translates service sentinel errors into HTTP responses.
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, cart.ErrValidation),
		errors.Is(err, order.ErrValidation),
		errors.Is(err, payment.ErrValidation),
		errors.Is(err, payment.ErrSignature):
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": err.Error()})
	case errors.Is(err, cart.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, payment.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"detail": err.Error()})
	case errors.Is(err, order.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, map[string]string{"detail": err.Error()})
	case errors.Is(err, payment.ErrProvider):
		return c.JSON(http.StatusBadGateway, map[string]string{"detail": err.Error()})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func publish(c echo.Context, producer *mykafka.Producer, topic, key string, event map[string]any) {
	if producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := producer.PublishEvent(ctx, topic, key, event); err != nil {
		c.Logger().Errorf("kafka publish error: %v", err)
	}
}
