package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	pkgerrors "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/contextkey"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/response"
)

// userIDContextKey is the gin-context key under which the authenticated
// user id is stored for downstream handlers.
const userIDContextKey = "user_id"

// AuthConfig holds JWT validation settings.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

type accessClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates the bearer token and puts the authenticated
// user id into both the gin and request contexts.
func AuthMiddleware(cfg AuthConfig) gin.HandlerFunc {
	secret := []byte(cfg.Secret)
	return func(c *gin.Context) {
		raw := extractBearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			response.AbortWithErrorCode(c, pkgerrors.Unauthorized, "missing bearer token")
			return
		}
		claims, err := parseAccessToken(secret, cfg.Issuer, raw)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		c.Set(userIDContextKey, claims.Subject)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func parseAccessToken(secret []byte, issuer, raw string) (*accessClaims, error) {
	if len(secret) == 0 {
		return nil, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("auth is not configured")
	}
	parsed, err := jwt.ParseWithClaims(raw, &accessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("token expired")
		}
		return nil, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("invalid token")
	}
	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return nil, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("invalid token")
	}
	if claims.TokenType != "access" {
		return nil, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("invalid token")
	}
	if claims.Subject == "" {
		return nil, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("invalid token")
	}
	return claims, nil
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
