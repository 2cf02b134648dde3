package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"qrmenu-be/internal/utils"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid access token")

type Claims struct {
	Role         string `json:"role"`
	RestaurantID string `json:"restaurant_id,omitempty"`
	CustomerID   string `json:"customer_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() utils.Identity {
	return utils.Identity{
		UserID:       c.Subject,
		Role:         c.Role,
		RestaurantID: c.RestaurantID,
		CustomerID:   c.CustomerID,
	}
}

// IssueToken signs an HS256 token for id. Login lives outside this service; this
// is used by tooling and tests.
func IssueToken(secret []byte, id utils.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:         id.Role,
		RestaurantID: id.RestaurantID,
		CustomerID:   id.CustomerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func ParseToken(secret []byte, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if !utils.ValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

// ExtractAccessToken looks at the access_token cookie, then the Authorization
// header, then the token query parameter used by browser websocket clients.
func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie("access_token"); err == nil {
		if cookie.Value != "" {
			return cookie.Value
		}
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return r.URL.Query().Get("token")
}
