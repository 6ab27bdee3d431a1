package auth

import (
	"net/http"
	"shop-chat/domain"
	"shop-chat/errors"
	"strings"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// RequireStaff rejects requests without a valid staff bearer token
// and stores the staff identity in the gin context.
func RequireStaff(verifier *SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  errors.CodeAuthentication,
				"error": "authorization token is missing",
			})
			return
		}
		identity, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{
				"code":  errors.CodeOf(err),
				"error": errors.PublicMessage(err),
			})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by RequireStaff.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}
