package http

import (
    "time"

    "github.com/labstack/echo/v4"

    xutil "PricePulse/pkg/util"
)

// ParseDate accepts YYYY-MM-DD, RFC3339 or unix seconds.
func ParseDate(s string) (time.Time, bool) { return xutil.ParseDate(s) }

// HeaderOrQuery returns the request header if set, otherwise the query parameter.
func HeaderOrQuery(c echo.Context, header, query string) string {
    if v := c.Request().Header.Get(header); v != "" {
        return v
    }
    return c.QueryParam(query)
}
