package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenVerifierDisabledWithoutSecret(t *testing.T) {
	assert.Nil(t, NewTokenVerifier("", "issuer"))
}

func TestVerifyRoundTrip(t *testing.T) {
	v := NewTokenVerifier("secret", "grant-risk")

	token, err := v.Issue("analyst-1", time.Minute)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "analyst-1", claims.AnalystID)
}

func TestVerifyRejects(t *testing.T) {
	v := NewTokenVerifier("secret", "grant-risk")

	expired, err := v.Issue("analyst-1", -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewTokenVerifier("other", "grant-risk").Issue("analyst-1", time.Minute)
	require.NoError(t, err)

	otherIssuer, err := NewTokenVerifier("secret", "someone-else").Issue("analyst-1", time.Minute)
	require.NoError(t, err)

	noAnalyst, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AnalystClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "grant-risk",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"no analyst":   noAnalyst,
		"garbage":      "not-a-token",
	} {
		_, err := v.Verify(token)
		assert.Error(t, err, name)
	}
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	v := NewTokenVerifier("secret", "")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AnalystClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "analyst-9",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "analyst-9", claims.AnalystID)
}

func serveWith(mw echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, string) {
	e := echo.New()
	seen := "unset"
	e.POST("/", func(c echo.Context) error {
		seen = analystID(c)
		return c.NoContent(http.StatusNoContent)
	}, mw)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func TestRequireAnalystNilVerifierIsAnonymous(t *testing.T) {
	rec, seen := serveWith(RequireAnalyst(nil), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "", seen)
}

func TestRequireAnalyst(t *testing.T) {
	v := NewTokenVerifier("secret", "")
	token, err := v.Issue("analyst-2", time.Minute)
	require.NoError(t, err)

	rec, seen := serveWith(RequireAnalyst(v), "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "analyst-2", seen)

	for _, header := range []string{"", "Bearer ", "Basic abc", "Bearer nope"} {
		rec, seen := serveWith(RequireAnalyst(v), header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Equal(t, "unset", seen, header)
	}
}
