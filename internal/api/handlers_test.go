// internal/api/handlers_test.go
package api

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/reelforge/reelforge/internal/errors"
)

func TestDecodeReference(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("image-bytes"))

	ref, err := decodeReference(&referencePayload{Data: raw, MIMEType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), ref.Data)
	assert.Equal(t, "image/png", ref.MIMEType)

	// data URI prefixes are stripped
	ref, err = decodeReference(&referencePayload{Data: "data:image/jpeg;base64," + raw})
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), ref.Data)
	assert.Equal(t, "image/jpeg", ref.MIMEType)

	ref, err = decodeReference(nil)
	require.NoError(t, err)
	assert.Nil(t, ref)

	_, err = decodeReference(&referencePayload{Data: "not!!base64"})
	assert.Error(t, err)
}

func TestRenderErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handler{}

	cases := []struct {
		err    error
		status int
	}{
		{apperrors.NewValidationError("bad input", nil), http.StatusBadRequest},
		{apperrors.NewPermissionError("denied", nil), http.StatusForbidden},
		{apperrors.NewRateLimitedError("retry in 5s", nil), http.StatusTooManyRequests},
		{apperrors.NewNetworkError("unreachable", nil), http.StatusBadGateway},
		{apperrors.NewProcessingError("boom", nil), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		h.renderError(c, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.Contains(t, w.Body.String(), "\"code\"")
	}
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware())
	router.POST("/api/runs", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/runs", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Api-Credential")
}
