package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	principalKey = "principal"

	headerUserID   = "X-User-ID"
	headerUserName = "X-User-Name"
)

// Claims is the bearer token payload. The subject is the user id.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID      string
	DisplayName string
}

// IssueToken signs an HS256 token for userID.
func IssueToken(secret, userID, name string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Identity authenticates requests with a Bearer JWT. With headerIdentity
// enabled, X-User-ID / X-User-Name are accepted instead (development only).
func Identity(secret string, headerIdentity bool) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			principal, err := parseBearer(authHeader, key)
			if err != nil {
				abortUnauthorized(c, "invalid or expired token")
				return
			}
			c.Set(principalKey, principal)
			c.Next()
			return
		}

		if headerIdentity {
			if userID := strings.TrimSpace(c.GetHeader(headerUserID)); userID != "" {
				c.Set(principalKey, Principal{UserID: userID, DisplayName: c.GetHeader(headerUserName)})
				c.Next()
				return
			}
		}
		abortUnauthorized(c, "authorization header is required")
	}
}

func parseBearer(header string, key []byte) (Principal, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Principal{}, errors.New("authorization header must be Bearer {token}")
	}
	if len(key) == 0 {
		return Principal{}, errors.New("jwt secret not configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return Principal{}, errors.New("token has no subject")
	}
	return Principal{UserID: claims.Subject, DisplayName: claims.Name}, nil
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: message})
}

func currentPrincipal(c *gin.Context) Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(Principal); ok {
			return p
		}
	}
	return Principal{}
}
