package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func refreshContext(t *testing.T, authHeader string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	if authHeader != "" {
		c.Request.Header.Set("Authorization", authHeader)
	}
	return c, w
}

func TestRefreshTokenHandlerRejectsNonBearerHeader(t *testing.T) {
	c, w := refreshContext(t, "Token abc123")

	refreshTokenHandler(nil)(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid authorization header format")
}

func TestRefreshTokenHandlerRejectsMissingHeader(t *testing.T) {
	c, w := refreshContext(t, "")

	refreshTokenHandler(nil)(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshTokenHandlerRejectsBarePrefix(t *testing.T) {
	// "Bearer" without the trailing space is not a valid scheme header.
	c, w := refreshContext(t, "Bearer")

	refreshTokenHandler(nil)(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
