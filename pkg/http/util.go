package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	xutil "SignalDesk/pkg/util"
)

// QueryInt reads an int query param or returns def if empty/invalid.
func QueryInt(c echo.Context, name string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return def
	}
	return v
}

// QueryDate reads a YYYY-MM-DD (or RFC3339/unix) query param, defaulting to
// def when absent. A malformed value is a validation error.
func QueryDate(c echo.Context, name string, def time.Time) (time.Time, *AppError) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	d, ok := xutil.ParseDate(raw)
	if !ok {
		return time.Time{}, ValidationErr(name, name+" must be a date (YYYY-MM-DD)")
	}
	return d, nil
}

// PathID reads a positive integer path param.
func PathID(c echo.Context, name string) (uint64, *AppError) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, ValidationErr(name, name+" must be a positive integer")
	}
	return id, nil
}
