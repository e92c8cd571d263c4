package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":         c.GetInt(CtxUserID),
			"organization_id": c.GetInt(CtxOrganizationID),
			"is_staff":        c.GetBool(CtxIsStaff),
		})
	}
	r.GET("/x", handler)
	r.POST("/x", handler)
	return r
}

func do(r http.Handler, method, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sign(t *testing.T, claims Claims, ttl time.Duration) string {
	t.Helper()
	tok, _, err := SignAccessToken(testKey, claims, ttl)
	require.NoError(t, err)
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(testKey))

	w := do(r, http.MethodGet, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// expired beyond the leeway
	w = do(r, http.MethodGet, sign(t, Claims{UserID: 1}, -time.Hour))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other, _, err := SignAccessToken([]byte("other"), Claims{UserID: 1}, time.Hour)
	require.NoError(t, err)
	w = do(r, http.MethodGet, other)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, sign(t, Claims{UserID: 7, OrganizationID: 3, IsStaff: true}, time.Hour))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7,"organization_id":3,"is_staff":true}`, w.Body.String())
}

func TestSignAccessTokenRequiresKey(t *testing.T) {
	_, _, err := SignAccessToken(nil, Claims{UserID: 1}, time.Hour)
	require.Error(t, err)
}

func TestRequireStaff(t *testing.T) {
	r := newRouter(AuthMiddleware(testKey), RequireStaff())

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, sign(t, Claims{UserID: 1}, time.Hour)).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, sign(t, Claims{UserID: 1, IsStaff: true}, time.Hour)).Code)

	// without AuthMiddleware there is no principal at all
	assert.Equal(t, http.StatusUnauthorized, do(newRouter(RequireStaff()), http.MethodGet, "").Code)
}

func TestReadOnlyUnlessStaff(t *testing.T) {
	r := newRouter(AuthMiddleware(testKey), ReadOnlyUnlessStaff())
	user := sign(t, Claims{UserID: 1}, time.Hour)
	staff := sign(t, Claims{UserID: 2, IsStaff: true}, time.Hour)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, user).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, user).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, staff).Code)
}

func TestRequestIDAndAccessLog(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := newRouter(RequestID(), AccessLog(logger))

	w := do(r, http.MethodGet, "")
	generated := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "request completed", entry.Message)
	assert.Equal(t, "abc", entry.Data["request-id"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])
	assert.Equal(t, logrus.InfoLevel, entry.Level)
}

func TestRateLimit(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mw, err := RateLimit(NewMemoryStore(), "2-M", logrus.NewEntry(logger))
	require.NoError(t, err)
	r := newRouter(mw)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "").Code)

	_, err = RateLimit(NewMemoryStore(), "lots", logrus.NewEntry(logger))
	require.Error(t, err)
}

func TestMetricsMiddlewarePassesThrough(t *testing.T) {
	r := newRouter(Metrics())
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "").Code)
}
