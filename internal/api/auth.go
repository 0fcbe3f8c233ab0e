package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/banking/grant-risk-service/internal/pkg/logger"
)

const analystIDContextKey = "analyst_id"

// AnalystClaims are the claims carried by analyst bearer tokens
type AnalystClaims struct {
	AnalystID string `json:"analyst_id"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 analyst tokens
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier returns nil when no secret is configured, which disables
// analyst authentication
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	if secret == "" {
		return nil
	}
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for an analyst
func (v *TokenVerifier) Issue(analystID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AnalystClaims{
		AnalystID: analystID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   analystID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}

// Verify parses a token and returns its claims
func (v *TokenVerifier) Verify(tokenString string) (*AnalystClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AnalystClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token has expired")
		}
		return nil, errors.New("invalid token")
	}

	claims, ok := parsed.Claims.(*AnalystClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.AnalystID == "" {
		claims.AnalystID = claims.Subject
	}
	if claims.AnalystID == "" {
		return nil, errors.New("token has no analyst")
	}
	return claims, nil
}

// RequireAnalyst rejects requests without a valid analyst bearer token. A nil
// verifier lets every request through anonymously.
func RequireAnalyst(v *TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if v == nil {
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			c.Set(analystIDContextKey, claims.AnalystID)
			ctx := context.WithValue(c.Request().Context(), logger.AnalystIDKey, claims.AnalystID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func analystID(c echo.Context) string {
	id, _ := c.Get(analystIDContextKey).(string)
	return id
}
