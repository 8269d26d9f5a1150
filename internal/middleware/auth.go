package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/response"
)

const (
	// SubjectKey is the context key for the authenticated token subject
	SubjectKey = "subject"
	// RoleOperator may trigger reconcile runs
	RoleOperator = "operator"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrForbidden    = errors.New("operator role required")
)

// AuthConfig holds the HMAC secret and expected issuer
type AuthConfig struct {
	Secret string
	Issuer string
}

// ParseToken validates an HS256 token and returns its claims
func ParseToken(cfg *AuthConfig, tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RequireOperator accepts only bearer tokens carrying role=operator
func RequireOperator(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			response.Unauthorized(c, ErrMissingToken.Error())
			c.Abort()
			return
		}

		claims, err := ParseToken(cfg, tokenString)
		if err != nil {
			response.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		if role, _ := claims["role"].(string); role != RoleOperator {
			response.Error(c, 403, "FORBIDDEN", ErrForbidden.Error(), "")
			c.Abort()
			return
		}

		subject, _ := claims.GetSubject()
		c.Set(SubjectKey, subject)
		c.Next()
	}
}

// GetSubject returns the authenticated subject, if any
func GetSubject(c *gin.Context) string {
	return c.GetString(SubjectKey)
}
