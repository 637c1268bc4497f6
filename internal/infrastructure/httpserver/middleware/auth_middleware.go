package middleware

import (
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-cache/internal/infrastructure/httpserver/helpers"
)

// ControlAuthMiddleware guards the controller control API with HS256 bearer tokens.
type ControlAuthMiddleware struct {
	secret []byte
	logger *logrus.Logger
}

func NewControlAuthMiddleware(secret string, logger *logrus.Logger) *ControlAuthMiddleware {
	return &ControlAuthMiddleware{secret: []byte(secret), logger: logger}
}

// Enabled reports whether a signing secret is configured.
func (m *ControlAuthMiddleware) Enabled() bool {
	return len(m.secret) > 0
}

// RequireControlToken validates the bearer token and stores its subject in the context.
// Without a configured secret the protected routes answer 404.
func (m *ControlAuthMiddleware) RequireControlToken() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !m.Enabled() {
				return echo.ErrNotFound
			}

			tokenString, err := helpers.GetBearerToken(c)
			if err != nil {
				return err
			}

			claims, err := m.validate(tokenString)
			if err != nil {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"ip": c.RealIP(), "path": c.Request().URL.Path, "error": err.Error()}).Warn("control token rejected")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid control token")
			}

			helpers.SetControlSubject(c, claims.Subject)
			return next(c)
		}
	}
}

func (m *ControlAuthMiddleware) validate(tokenString string) (*jwt.RegisteredClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Ensure the token's signing method is HMAC (prevent alg confusion)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
