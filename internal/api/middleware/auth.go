package middleware

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	apierrors "github.com/novasettle/loan-marketplace/internal/api/shared/errors"
	"github.com/novasettle/loan-marketplace/internal/logger"
)

const authSubjectKey = "auth_subject"

// AuthConfig holds authentication configuration for administrative routes
type AuthConfig struct {
	JWTPublicKey string // RSA public key in PEM format
	APIKeys      []string
}

// Enabled reports whether any credential is configured
func (cfg AuthConfig) Enabled() bool {
	if strings.TrimSpace(cfg.JWTPublicKey) != "" {
		return true
	}
	for _, key := range cfg.APIKeys {
		if key != "" {
			return true
		}
	}
	return false
}

// adminAuth checks "ApiKey <key>" and "Bearer <RS256 jwt>" credentials
type adminAuth struct {
	apiKeys   map[string]struct{}
	publicKey *rsa.PublicKey
	keyErr    error
}

func newAdminAuth(cfg AuthConfig) *adminAuth {
	a := &adminAuth{apiKeys: make(map[string]struct{})}
	for _, key := range cfg.APIKeys {
		if key != "" {
			a.apiKeys[key] = struct{}{}
		}
	}

	if strings.TrimSpace(cfg.JWTPublicKey) == "" {
		a.keyErr = errors.New("JWT public key not configured")
	} else if a.publicKey, a.keyErr = jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTPublicKey)); a.keyErr != nil {
		logger.Error(a.keyErr, zap.String("message", "Invalid JWT public key, bearer tokens will be rejected"))
	}
	return a
}

// authenticate returns the token subject for bearer tokens and "" for API keys
func (a *adminAuth) authenticate(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	scheme, credentials, ok := strings.Cut(header, " ")
	if !ok {
		return "", errors.New("invalid Authorization header format")
	}

	switch strings.ToLower(scheme) {
	case "apikey":
		if len(a.apiKeys) == 0 {
			return "", errors.New("no API keys configured")
		}
		if _, ok := a.apiKeys[credentials]; !ok {
			return "", errors.New("invalid API key")
		}
		return "", nil

	case "bearer":
		if a.keyErr != nil {
			return "", a.keyErr
		}
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(credentials, claims, func(*jwt.Token) (interface{}, error) {
			return a.publicKey, nil
		}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
		if err != nil {
			return "", fmt.Errorf("invalid token: %w", err)
		}
		return claims.Subject, nil

	default:
		return "", fmt.Errorf("unsupported authorization type: %s", scheme)
	}
}

// Auth guards administrative routes with an API key or an RSA signed JWT.
// Without configured credentials every request passes.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	if !cfg.Enabled() {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	a := newAdminAuth(cfg)
	return func(c *gin.Context) {
		subject, err := a.authenticate(c.GetHeader("Authorization"))
		if err != nil {
			logger.WarnCtx(c.Request.Context(), "Authentication failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierrors.NewUnauthorizedError("Authentication failed", err.Error()))
			return
		}

		if subject != "" {
			c.Set(authSubjectKey, subject)
		}
		c.Next()
	}
}

// AuthSubject returns the subject of the authenticated caller, empty for API keys
// and unauthenticated routes
func AuthSubject(c *gin.Context) string {
	return c.GetString(authSubjectKey)
}
