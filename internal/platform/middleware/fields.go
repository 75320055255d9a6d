package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/autoshine/autoshine/internal/platform/auth"
)

// requestFields adds who and where to a log event: request id, shop, caller
// and route.
func requestFields(evt *zerolog.Event, c echo.Context) *zerolog.Event {
	rid, _ := c.Get("request_id").(string)
	shop, _ := c.Get("tenant_id").(string)
	if shop == "" {
		shop, _ = c.Get(auth.TenantClaimKey).(string)
	}
	evt = evt.
		Str("request_id", rid).
		Str("tenant_id", shop).
		Str("method", c.Request().Method).
		Str("route", c.Path())
	if p, ok := auth.PrincipalFromContext(c.Request().Context()); ok {
		evt = evt.Str("user", p.Subject)
	}
	return evt
}
