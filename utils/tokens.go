package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/princinho/userdirectory/models"
)

var ErrMalformedToken = errors.New("malformed token")

type Claims struct {
	SessionID string `json:"sid"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs an HS256 token for the given identity. It returns
// the token and its expiry.
func GenerateAccessToken(secret []byte, id models.SessionClaims, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret is empty")
	}
	if id.UserID <= 0 || strings.TrimSpace(id.SessionID) == "" {
		return "", time.Time{}, errors.New("invalid access token payload")
	}

	now = now.UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		SessionID: id.SessionID,
		Email:     id.Email,
		Role:      string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken checks signature, algorithm and expiry and returns the bound identity.
func ValidateToken(tokenStr string, secret []byte, now time.Time) (models.SessionClaims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return models.SessionClaims{}, ErrMalformedToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return models.SessionClaims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if token == nil || !token.Valid {
		return models.SessionClaims{}, ErrMalformedToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return models.SessionClaims{}, ErrMalformedToken
	}
	if strings.TrimSpace(claims.SessionID) == "" {
		return models.SessionClaims{}, ErrMalformedToken
	}
	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return models.SessionClaims{}, ErrMalformedToken
	}

	return models.SessionClaims{
		UserID:    userID,
		SessionID: claims.SessionID,
		Email:     claims.Email,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func NewOpaqueToken(byteLen int) (string, error) {
	if byteLen <= 0 {
		return "", fmt.Errorf("invalid token size")
	}
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func GenerateRefreshToken() (string, error) {
	return NewOpaqueToken(32)
}

func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func VerifyRefreshToken(token string, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashRefreshToken(token)), []byte(hash)) == 1
}
