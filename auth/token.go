package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "shop-chat"

// CustomClaims is the payload of a staff token.
// The registered ID claim holds the session id so a token can be revoked server side.
type CustomClaims struct {
	StaffID string `json:"staff_id"`
	ShopID  string `json:"shop_id"`
	jwt.RegisteredClaims
}

func (c CustomClaims) SessionID() string {
	return c.ID
}

// TokenManager signs and checks HS256 staff tokens.
type TokenManager struct {
	secret   []byte
	duration time.Duration
}

func NewTokenManager(secret string, duration time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), duration: duration}
}

func (m *TokenManager) Duration() time.Duration {
	return m.duration
}

// GenerateToken creates a signed token for a staff session.
func (m *TokenManager) GenerateToken(staffID, shopID, sessionID string, issuedAt time.Time) (string, error) {
	claims := &CustomClaims{
		StaffID: staffID,
		ShopID:  shopID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   staffID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(m.duration)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken checks signature, algorithm, issuer and expiration.
func (m *TokenManager) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.ID == "" || claims.StaffID == "" || claims.ShopID == "" {
		return nil, fmt.Errorf("%w: incomplete claims", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}
