package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/YatraLedger/yatra-ledger-backend/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupErrorRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/test", handler)
	return r
}

func performRequest(r *gin.Engine) (*httptest.ResponseRecorder, ErrorResponse) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	r.ServeHTTP(w, req)

	var body ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestErrorHandler_AppErrorStatusAndShape(t *testing.T) {
	r := setupErrorRouter(func(c *gin.Context) {
		_ = c.Error(errors.ValidationFailed("invalid trip", "name is required"))
	})

	w, body := performRequest(r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errors.ValidationError), body.Type)
	assert.Equal(t, "invalid trip", body.Message)
	assert.Equal(t, "name is required", body.Details)
	assert.Equal(t, "400", body.Code)
}

func TestErrorHandler_PermissionDeniedMapsToConflict(t *testing.T) {
	r := setupErrorRouter(func(c *gin.Context) {
		_ = c.Error(errors.NewPermissionDeniedError("notifications disabled"))
	})

	w, body := performRequest(r)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(errors.PermissionDenied), body.Type)
	assert.Empty(t, body.Details, "internal detail is not leaked for non-client errors")
}

func TestErrorHandler_UnknownErrorIsServerError(t *testing.T) {
	r := setupErrorRouter(func(c *gin.Context) {
		_ = c.Error(assert.AnError)
	})

	w, body := performRequest(r)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(errors.ServerError), body.Type)
	assert.Equal(t, "Internal Server Error", body.Message)
}

func TestErrorHandler_NoErrorPassesThrough(t *testing.T) {
	r := setupErrorRouter(func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w, _ := performRequest(r)
	require.Equal(t, http.StatusOK, w.Code)
}
