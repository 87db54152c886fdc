package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sharon232323/bidmate/internal/models"
)

// Claims defines the structure of the JWT claims.
type Claims struct {
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
	Approved bool   `json:"approved"`
	jwt.RegisteredClaims
}

// Principal is the caller the token speaks for.
func (c *Claims) Principal() models.Principal {
	return models.Principal{Email: models.NormalizeEmail(c.Email), IsAdmin: c.IsAdmin, Approved: c.Approved}
}

// GenerateJWT creates a new JWT for a given principal.
func GenerateJWT(p models.Principal, secretKey string, ttl time.Duration) (string, error) {
	expirationTime := time.Now().Add(ttl)
	claims := &Claims{
		Email:    p.Email,
		IsAdmin:  p.IsAdmin,
		Approved: p.Approved,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   p.Email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT verifies a JWT string and returns the claims if valid.
func ValidateJWT(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the alg is what we expect:
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid JWT")
	}
	if models.NormalizeEmail(claims.Email) == "" {
		return nil, fmt.Errorf("invalid JWT: missing email claim")
	}

	return claims, nil
}
