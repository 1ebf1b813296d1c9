package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "reelstream"

// Claims is the payload of an API bearer token
type Claims struct {
	Roles     []models.Role `json:"roles"`
	ProfileID string        `json:"pid,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs bearer tokens and hashes passwords
type TokenService struct {
	Secret []byte
	TTL    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService signing with secret
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{Secret: []byte(secret), TTL: ttl, now: time.Now}
}

func (t *TokenService) HashPassword(raw string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (t *TokenService) VerifyPassword(raw, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(raw)) == nil
}

// Issue signs an HS256 token for the user, optionally bound to a profile
func (t *TokenService) Issue(user *models.User, profileID *uuid.UUID) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(t.TTL)
	claims := Claims{
		Roles: user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if profileID != nil {
		claims.ProfileID = profileID.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.Secret)
	return signed, exp, err
}

// Parse validates a token and returns its claims
func (t *TokenService) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return t.Secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
