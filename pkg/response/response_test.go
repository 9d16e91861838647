package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appErrors "github.com/charlesng35/dealcache/pkg/errors"
	"github.com/charlesng35/dealcache/pkg/logger"
)

func testContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/local/saved", nil)
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSuccessEnvelopes(t *testing.T) {
	c, rec := testContext()
	Success(c, http.StatusCreated, gin.H{"id": "42"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"success":true,"data":{"id":"42"}}`, rec.Body.String())

	c, rec = testContext()
	SuccessWithMeta(c, http.StatusOK, []string{"a", "b"}, &Meta{Count: 2, Category: "tech", Offline: true})
	resp := decode(t, rec)
	require.True(t, resp.Success)
	require.Equal(t, &Meta{Count: 2, Category: "tech", Offline: true}, resp.Meta)
}

func TestErrorRendersCodeAndDetails(t *testing.T) {
	c, rec := testContext()
	Error(c, appErrors.NewBadRequest("title is required").WithDetails([]string{"title"}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t,
		`{"success":false,"error":{"code":"BAD_REQUEST","message":"title is required","details":["title"]}}`,
		rec.Body.String())
}

func TestErrorHidesAndLogsInternalCause(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger.Replace(zap.New(core))
	t.Cleanup(func() { logger.Replace(nil) })

	c, rec := testContext()
	c.Set(RequestIDKey, "req-1")
	Error(c, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "boom")

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
}

func TestErrorOffline(t *testing.T) {
	c, rec := testContext()
	Error(c, appErrors.ErrOffline)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, appErrors.ErrOffline.Code, decode(t, rec).Error.Code)
}
