package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the claims in an access token issued by the pharmacy
// backend. The backend puts the user's primary key in user_id, which may be
// a number or a string.
type JWTClaims struct {
	RawUserID any      `json:"user_id,omitempty"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the user_id claim as a string, falling back to the subject
func (c *JWTClaims) UserID() string {
	switch v := c.RawUserID.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return c.Subject
}

// JWTManager validates access tokens shared with the pharmacy backend
type JWTManager struct {
	secretKey []byte
	issuer    string
}

// NewJWTManager creates a new JWT manager. An empty issuer is not checked.
func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		issuer:    issuer,
	}
}

// GenerateAccessToken signs a token for userID. The backend normally issues
// tokens; this is used by tests and local tooling.
func (m *JWTManager) GenerateAccessToken(userID, email string, roles []string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		RawUserID: userID,
		Email:     email,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// ValidateAccessToken validates an access token and returns the claims
func (m *JWTManager) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID() == "" {
		return nil, fmt.Errorf("token has no user")
	}
	return claims, nil
}
