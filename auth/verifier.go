package auth

import (
	"fmt"
	"shop-chat/domain"
	"shop-chat/errors"
	"time"
)

// SessionStore is the part of the session repository the verifier needs.
type SessionStore interface {
	Get(id string) (domain.StaffSession, error)
}

// SessionVerifier turns a staff token into an identity.
// A token is only as good as the session it points to: deleting the session revokes it.
type SessionVerifier struct {
	tokens   *TokenManager
	sessions SessionStore
	now      func() time.Time
}

func NewSessionVerifier(tokens *TokenManager, sessions SessionStore) *SessionVerifier {
	return &SessionVerifier{tokens: tokens, sessions: sessions, now: time.Now}
}

func (v *SessionVerifier) Verify(token string) (domain.Identity, error) {
	claims, err := v.tokens.ValidateToken(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrInvalidCredentials, err)
	}
	session, err := v.sessions.Get(claims.SessionID())
	if err != nil {
		return domain.Identity{}, err
	}
	if session.StaffID != claims.StaffID || session.ShopID != claims.ShopID {
		return domain.Identity{}, errors.ErrInvalidCredentials
	}
	if session.Expired(v.now()) {
		return domain.Identity{}, errors.ErrSessionExpired
	}
	return domain.Identity{ShopID: session.ShopID, UserID: session.StaffID, Role: domain.RoleStaff}, nil
}
