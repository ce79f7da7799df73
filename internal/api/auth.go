package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Authentication messages returned with 401.
const (
	msgMissingToken = "Acesso não autorizado. Token não fornecido ou em formato inválido."
	msgExpiredToken = "Sua sessão expirou. Por favor, faça login novamente."
	msgInvalidToken = "Token inválido. Por favor, faça login novamente."
)

// ErrMissingSecret is returned when the API is started without a JWT secret.
var ErrMissingSecret = errors.New("api.jwt_secret is required")

// subjectKey is the echo context key holding the token subject.
const subjectKey = "subject"

// SignToken issues an HS256 token for subject valid for ttl.
func SignToken(subject string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// JWTAuth validates the Bearer token of every request it guards.
func JWTAuth(secret []byte) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, msgMissingToken)
			}

			claims := &jwt.RegisteredClaims{}

			_, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
				return secret, nil
			})

			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				return echo.NewHTTPError(http.StatusUnauthorized, msgExpiredToken).SetInternal(err)
			case err != nil:
				return echo.NewHTTPError(http.StatusUnauthorized, msgInvalidToken).SetInternal(err)
			}

			c.Set(subjectKey, claims.Subject)

			return next(c)
		}
	}
}

// Subject returns the authenticated token subject, or "Sistema".
func Subject(c echo.Context) string {
	if s, ok := c.Get(subjectKey).(string); ok && s != "" {
		return s
	}

	return "Sistema"
}
