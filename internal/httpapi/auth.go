package httpapi

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tiendapos/backend/internal/domain"
)

// AuthManager issues and verifies the admin bearer tokens used by the
// mutating endpoints. Admin access is a single PIN: either a bcrypt hash
// (ADMIN_PIN_HASH) or a plain value compared in constant time (ADMIN_PIN).
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	pin      string
	pinHash  string
}

type posClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, pin string, pinHash string) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 10 * time.Hour
	}

	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		pin:      strings.TrimSpace(pin),
		pinHash:  strings.TrimSpace(pinHash),
	}
}

func (a *AuthManager) LoginAdmin(pin string) (TokenResponse, error) {
	if !a.verifyPIN(pin) {
		return TokenResponse{}, errors.New("invalid pin")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	claims := posClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "tiendapos",
		},
		Role: "admin",
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken: token,
		Role:        "admin",
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	return domain.Actor{Role: claims.Role}, nil
}

func (a *AuthManager) verifyPIN(input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}
	if a.pinHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.pinHash), []byte(input)) == nil
	}
	if a.pin == "" {
		// No PIN configured: admin login disabled.
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.pin), []byte(input)) == 1
}
