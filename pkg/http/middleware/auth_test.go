package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRequireJWT(t *testing.T) {
	j := &JWT{Secret: []byte("test-secret"), Issuer: "signaldesk"}
	e := echo.New()
	e.POST("/x", func(c echo.Context) error {
		claims, ok := ClaimsFrom(c)
		if !ok || claims.Subject != "ops" {
			t.Errorf("claims not propagated: %+v", claims)
		}
		return c.NoContent(http.StatusNoContent)
	}, RequireJWT(j))

	do := func(auth string) int {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		if auth != "" {
			req.Header.Set(echo.HeaderAuthorization, auth)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(""); code != http.StatusUnauthorized {
		t.Fatalf("no token: want 401, got %d", code)
	}
	if code := do("Bearer garbage"); code != http.StatusUnauthorized {
		t.Fatalf("bad token: want 401, got %d", code)
	}
	other := JWT{Secret: []byte("other"), Issuer: "signaldesk"}
	forged, _ := other.Sign("ops", "admin", time.Minute)
	if code := do("Bearer " + forged); code != http.StatusUnauthorized {
		t.Fatalf("wrong key: want 401, got %d", code)
	}
	expired, _ := j.Sign("ops", "admin", -time.Minute)
	if code := do("Bearer " + expired); code != http.StatusUnauthorized {
		t.Fatalf("expired: want 401, got %d", code)
	}
	good, err := j.Sign("ops", "admin", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if code := do("Bearer " + good); code != http.StatusNoContent {
		t.Fatalf("valid token: want 204, got %d", code)
	}
}
