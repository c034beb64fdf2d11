package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// AdminOnly gates staff routes on the role claim of the access token.
func AdminOnly(jwtSecret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := parseAccessToken(c, jwtSecret)
			if err != nil {
				return err
			}
			role, _ := claims["role"].(string)
			if role != "admin" {
				return echo.NewHTTPError(http.StatusForbidden, "not enough rights")
			}
			setUserContext(c, claims)
			return next(c)
		}
	}
}
