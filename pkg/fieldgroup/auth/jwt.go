package auth

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	issuer          = "fieldgroup"
	defaultTokenTTL = 24 * time.Hour
	devSecret       = "fieldgroup-dev-secret-change-in-production"
)

// Claims represents the JWT claims
type Claims struct {
	UserID     uint   `json:"user_id"`
	Email      string `json:"email"`
	SystemRole string `json:"system_role"`
	jwt.RegisteredClaims
}

// Settings control token signing. Zero values fall back to JWT_SECRET (or a
// development secret) and a 24h lifetime.
type Settings struct {
	Secret   string
	TokenTTL time.Duration
}

var (
	settingsMu sync.RWMutex
	settings   Settings
)

// Configure replaces the signing settings. Tokens signed under a previous
// secret stop validating.
func Configure(s Settings) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	settings = s
}

func current() (secret []byte, ttl time.Duration) {
	settingsMu.RLock()
	s := settings
	settingsMu.RUnlock()

	switch {
	case s.Secret != "":
		secret = []byte(s.Secret)
	case os.Getenv("JWT_SECRET") != "":
		secret = []byte(os.Getenv("JWT_SECRET"))
	default:
		secret = []byte(devSecret)
	}
	ttl = s.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return secret, ttl
}

// GenerateToken creates a new JWT token for a user
func GenerateToken(userID uint, email string, systemRole string) (string, error) {
	secret, ttl := current()
	now := time.Now()
	claims := &Claims{
		UserID:     userID,
		Email:      email,
		SystemRole: systemRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*Claims, error) {
	secret, _ := current()
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
