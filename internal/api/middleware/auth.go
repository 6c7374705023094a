package middleware

import (
	"context"
	"strings"

	"github.com/coreos/go-oidc"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDKey = "user_id"

// Authenticator verifies the long-lived session tokens issued by the auth
// service. The photo service only needs the subject claim; session issuing
// and refresh live elsewhere.
type Authenticator struct {
	verifier *oidc.IDTokenVerifier
	log      *zap.Logger
}

func NewAuthenticator(ctx context.Context, issuerURL string, log *zap.Logger) (*Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
		log:      log,
	}, nil
}

func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(401, gin.H{"statusCode": 401, "message": "missing authorization header"})
			return
		}

		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		if tokenStr == auth {
			c.AbortWithStatusJSON(401, gin.H{"statusCode": 401, "message": "invalid authorization format"})
			return
		}

		idToken, err := a.verifier.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			a.log.Warn("session token verify failed", zap.Error(err))
			c.AbortWithStatusJSON(401, gin.H{"statusCode": 401, "message": "invalid session token"})
			return
		}

		c.Set(userIDKey, idToken.Subject)
		c.Next()
	}
}

// UserID returns the authenticated user id set by RequireAuth.
func UserID(c *gin.Context) (string, bool) {
	value, exists := c.Get(userIDKey)
	if !exists {
		return "", false
	}
	id, ok := value.(string)
	return id, ok && id != ""
}

// SetUserID injects an identity directly. Used by tests that bypass OIDC.
func SetUserID(c *gin.Context, userID string) {
	c.Set(userIDKey, userID)
}
