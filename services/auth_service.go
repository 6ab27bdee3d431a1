//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"fmt"
	"shop-chat/auth"
	"shop-chat/domain"
	"shop-chat/errors"
	"shop-chat/infrastructure/storage"
	"strings"
	"time"

	"github.com/google/uuid"
)

type IAuthService interface {
	Login(email, password string) (domain.StaffLogin, error)
	Register(shopID, email, password string) (string, error)
	Logout(token string) error
}

type AuthService struct {
	staffRepository   storage.IStaffRepository
	sessionRepository storage.ISessionRepository
	tokens            *auth.TokenManager
	now               func() time.Time
}

func NewAuthService(staff storage.IStaffRepository, sessions storage.ISessionRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{
		staffRepository:   staff,
		sessionRepository: sessions,
		tokens:            tokens,
		now:               time.Now,
	}
}

// Register creates a staff account for a shop and returns its id.
func (s *AuthService) Register(shopID, email, password string) (string, error) {
	// Business rules first, before any expensive hashing
	err := auth.ValidateRegister(auth.RegisterRequest{ShopID: shopID, Email: email, Password: password})
	switch {
	case errors.Is(err, errors.ErrInvalidPassword):
		return "", err
	case err != nil:
		return "", fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("%w: hashing failed: %v", errors.ErrInternal, err)
	}

	// Will propagate ErrUserAlreadyExists if email is taken
	return s.staffRepository.CreateStaff(shopID, strings.ToLower(email), hashedPassword)
}

// Login checks a password and opens a revocable session.
func (s *AuthService) Login(email, password string) (domain.StaffLogin, error) {
	if err := auth.ValidateLogin(auth.LoginRequest{Email: email, Password: password}); err != nil {
		return domain.StaffLogin{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}

	staff, err := s.staffRepository.GetStaffByEmail(strings.ToLower(email))
	if err != nil {
		// Same answer for unknown emails and bad passwords
		return domain.StaffLogin{}, errors.ErrInvalidCredentials
	}
	match, err := auth.ComparePassword(password, staff.PasswordHash)
	if err != nil || !match {
		return domain.StaffLogin{}, errors.ErrInvalidCredentials
	}

	now := s.now()
	session := domain.StaffSession{
		ID:        uuid.NewString(),
		StaffID:   staff.ID,
		ShopID:    staff.ShopID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokens.Duration()),
	}
	if err := s.sessionRepository.Create(session); err != nil {
		return domain.StaffLogin{}, fmt.Errorf("%w: session: %v", errors.ErrInternal, err)
	}
	token, err := s.tokens.GenerateToken(staff.ID, staff.ShopID, session.ID, now)
	if err != nil {
		return domain.StaffLogin{}, errors.ErrTokenGeneration
	}
	return domain.StaffLogin{Token: token, StaffID: staff.ID, ShopID: staff.ShopID, ExpiresAt: session.ExpiresAt}, nil
}

// Logout revokes the session behind a token.
func (s *AuthService) Logout(token string) error {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidCredentials, err)
	}
	return s.sessionRepository.Delete(claims.SessionID())
}
