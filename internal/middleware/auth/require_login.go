package auth

import (
	"github.com/labstack/echo/v4"
)

// RequireLogin rejects requests without a valid access token.
func RequireLogin(jwtSecret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := parseAccessToken(c, jwtSecret)
			if err != nil {
				return err
			}
			setUserContext(c, claims)
			return next(c)
		}
	}
}
