package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type windowRequest struct {
	Name  string `json:"name" validate:"required"`
	Top   int    `json:"top" default:"5" validate:"gte=1,lte=50"`
	Start int    `json:"start"`
	End   int    `json:"end" validate:"gtfield=Start"`
}

type testHandler struct{}

func (testHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/window", func(c echo.Context) error {
		var req windowRequest
		if errs := ReadAndValidateRequest(c, &req); errs != nil {
			return BadRequestResponse(c, errs)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/api/missing/:id", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundError("run "+c.Param("id")+" not found"))
	})
	e.GET("/api/panic", func(c echo.Context) error {
		panic("boom")
	})
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServer_ValidationAndDefaults(t *testing.T) {
	e := NewServer(nil, []Handler{testHandler{}}).Echo()

	rec := do(e, http.MethodPost, "/api/window", `{"name":"a","start":1,"end":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"top":5`)

	rec = do(e, http.MethodPost, "/api/window", `{"start":3,"end":2}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"field":"name"`)
	assert.Contains(t, body, `"code":"ERR_REQUIRED"`)
	assert.Contains(t, body, `"field":"end"`)
	assert.Contains(t, body, "end must be after start")

	rec = do(e, http.MethodPost, "/api/window", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_BIND")
}

func TestServer_ErrorsAndPanics(t *testing.T) {
	e := NewServer(nil, []Handler{testHandler{}}).Echo()

	rec := do(e, http.MethodGet, "/api/missing/r1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "run r1 not found")

	rec = do(e, http.MethodGet, "/api/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RateLimitOnlyAPI(t *testing.T) {
	e := NewServer(nil, []Handler{testHandler{}}, WithLimiter(denyAll{})).Echo()

	rec := do(e, http.MethodGet, "/api/missing/r1", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_RATE_LIMITED")

	rec = do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	e := NewServer(nil, []Handler{testHandler{}}, WithAllowedOrigins([]string{"https://lab.example"})).Echo()

	req := httptest.NewRequest(http.MethodOptions, "/api/window", nil)
	req.Header.Set("Origin", "https://lab.example")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://lab.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
