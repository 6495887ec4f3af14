package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hesampakdaman/messaging/internal/httpx"
)

// ConsumerHeader names the consumer a request reads or acks on behalf of.
const ConsumerHeader = "X-Consumer"

// LocalConsumer is the c.Locals key holding the token's consumer claim.
const LocalConsumer = "consumer"

type Claims struct {
	Consumer string `json:"consumer"`
	jwt.RegisteredClaims
}

// AuthRequired validates an HS256 bearer token signed with secret. An empty
// secret disables the check. When the token carries a consumer claim, an
// X-Consumer header on the same request must match it.
func AuthRequired(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		var tokenString string
		if authHeader != "" {
			// Extract token from "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return httpx.Unauthorized(c, "invalid_authorization", "Invalid authorization format")
			}
			tokenString = parts[1]
		} else {
			// browsers cannot set headers on a websocket upgrade
			tokenString = c.Query("access_token")
		}

		if tokenString == "" {
			return httpx.Unauthorized(c, "missing_access_token", "Missing access token")
		}

		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			return httpx.Unauthorized(c, "invalid_access_token", "Invalid or expired token")
		}

		claims, ok := token.Claims.(*Claims)
		if !ok {
			return httpx.Unauthorized(c, "invalid_access_token", "Invalid token")
		}

		if claims.Consumer != "" {
			if header := strings.TrimSpace(c.Get(ConsumerHeader)); header != "" && header != claims.Consumer {
				return httpx.Forbidden(c, "consumer_mismatch", "X-Consumer does not match token")
			}
			c.Locals(LocalConsumer, claims.Consumer)
		}

		return c.Next()
	}
}
