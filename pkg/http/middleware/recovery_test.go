package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	applogger "SignalDesk/pkg/logger"
)

func TestRecoverWritesFallback(t *testing.T) {
	e := echo.New()
	e.Use(Recover(applogger.NewNop(), func(c echo.Context) error {
		return c.String(http.StatusInternalServerError, "recovered")
	}))
	e.GET("/boom", func(echo.Context) error { panic("nil map") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError || rec.Body.String() != "recovered" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}
