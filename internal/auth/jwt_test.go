package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "campusattend"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("student-1", "student", testIssuer, testKey, time.Hour, 24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := Parse(pair.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "student-1", claims.Subject)
	assert.Equal(t, "student", claims.Role)
}

func TestParseRejects(t *testing.T) {
	pair, err := Issue("student-1", "student", testIssuer, testKey, time.Hour, 24*time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "wrong-key", testIssuer)
	assert.Error(t, err)

	_, err = Parse(pair.AccessToken, testKey, "someone-else")
	assert.Error(t, err)

	expired, err := Issue("student-1", "student", testIssuer, testKey, -time.Minute, time.Hour)
	require.NoError(t, err)
	_, err = Parse(expired.AccessToken, testKey, testIssuer)
	assert.Error(t, err)
}

func authedRequest(t *testing.T, router *gin.Engine, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBearerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", Bearer(testKey, testIssuer), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	pair, err := Issue("s1", "student", testIssuer, testKey, time.Hour, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, authedRequest(t, r, pair.AccessToken).Code)
	assert.Equal(t, http.StatusUnauthorized, authedRequest(t, r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, authedRequest(t, r, "not-a-token").Code)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", Bearer(testKey, testIssuer), RequireRole("lecturer"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	lecturer, err := Issue("u1", "lecturer", testIssuer, testKey, time.Hour, time.Hour)
	require.NoError(t, err)
	student, err := Issue("u2", "student", testIssuer, testKey, time.Hour, time.Hour)
	require.NoError(t, err)
	admin, err := Issue("u3", "admin", testIssuer, testKey, time.Hour, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, authedRequest(t, r, lecturer.AccessToken).Code)
	assert.Equal(t, http.StatusForbidden, authedRequest(t, r, student.AccessToken).Code)
	assert.Equal(t, http.StatusNoContent, authedRequest(t, r, admin.AccessToken).Code, "admin passes every role check")
}
