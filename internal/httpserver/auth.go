package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/gearshare/gearshare/pkg/rental"
)

const identityContextKey = "auth_user_id"

// identityMiddleware reads the bearer token issued by the external
// auth service and exposes its subject as the acting user id. Token
// issuance lives outside this process; only validation happens here.
func identityMiddleware(signingKey []byte, issuer string) gin.HandlerFunc {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	return func(ctx *gin.Context) {
		token, found := strings.CutPrefix(ctx.GetHeader("Authorization"), "Bearer ")
		if !found || token == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing bearer token"))
			return
		}
		claims := &jwt.RegisteredClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(parsedToken *jwt.Token) (any, error) {
			return signingKey, nil
		}, options...)
		if err != nil || !parsed.Valid || claims.Subject == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session token"))
			return
		}
		ctx.Set(identityContextKey, claims.Subject)
		ctx.Next()
	}
}

func currentUser(ctx *gin.Context) (rental.UserID, bool) {
	raw, exists := ctx.Get(identityContextKey)
	if !exists {
		return rental.UserID{}, false
	}
	subject, _ := raw.(string)
	userID, err := rental.NewUserID(subject)
	if err != nil {
		return rental.UserID{}, false
	}
	return userID, true
}
