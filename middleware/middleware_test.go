package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/phillip/membership-portal-go/config"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(&config.Config{JWTSecret: testSecret}))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString("user_id"),
			"role":    c.GetString("role"),
			"email":   c.GetString("email"),
		})
	})
	return r
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{
		UserID: "member-1",
		Role:   "admin",
		Email:  "ada@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newAuthRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"member-1","role":"admin","email":"ada@example.com"}`, rec.Body.String())
}

func TestAuthMiddleware_SubjectFallback(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "member-2"},
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newAuthRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":"member-2"`)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	expired := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{
		UserID:           "member-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("other"), Claims{UserID: "member-1"})
	noUser := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{Role: "member"})
	hs512 := signToken(t, jwt.SigningMethodHS512, []byte(testSecret), Claims{UserID: "member-1"})

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"empty token":    "Bearer ",
		"garbage":        "Bearer not.a.jwt",
		"expired":        "Bearer " + expired,
		"wrong key":      "Bearer " + wrongKey,
		"no user":        "Bearer " + noUser,
		"wrong alg":      "Bearer " + hs512,
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			newAuthRouter().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"unauthenticated"`)
		})
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	log, hook := test.NewNullLogger()

	r := gin.New()
	r.Use(RequestID(), RequestLogger(log))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "/ok?x=1", hook.LastEntry().Data["path"])
	assert.Equal(t, "anonymous", hook.LastEntry().Data["user_id"])

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "req-42", hook.LastEntry().Data["request_id"])
}
