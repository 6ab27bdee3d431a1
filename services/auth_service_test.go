package services

import (
	"shop-chat/auth"
	"shop-chat/domain"
	"shop-chat/errors"
	"shop-chat/mocks"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	staffRepo := mocks.NewMockIStaffRepository(ctrl)
	sessionRepo := mocks.NewMockISessionRepository(ctrl)
	svc := NewAuthService(staffRepo, sessionRepo, auth.NewTokenManager("secret", time.Hour))

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)

		// Expect CreateStaff to be called with a hashed password (not the plain one)
		staffRepo.EXPECT().
			CreateStaff("shop-1", "agent@example.com", gomock.Not("ComplexPass123!")).
			Return("staff-uuid", nil).
			Times(1)

		staffID, err := svc.Register("shop-1", "Agent@Example.com", "ComplexPass123!")
		req.NoError(err)
		req.Equal("staff-uuid", staffID)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)

		// Repository should NEVER be called
		staffRepo.EXPECT().CreateStaff(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Register("shop-1", "agent@example.com", "simplepassword")
		req.ErrorIs(err, errors.ErrInvalidPassword)

		_, err = svc.Register("shop-1", "not-an-email", "ComplexPass123!")
		req.ErrorIs(err, errors.ErrValidation)
	})

	t.Run("should fail when staff already exists in repository", func(t *testing.T) {
		req := require.New(t)

		staffRepo.EXPECT().
			CreateStaff("shop-1", "duplicate@example.com", gomock.Any()).
			Return("", errors.ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register("shop-1", "duplicate@example.com", "ComplexPass123!")
		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	staffRepo := mocks.NewMockIStaffRepository(ctrl)
	sessionRepo := mocks.NewMockISessionRepository(ctrl)
	tokens := auth.NewTokenManager("secret", time.Hour)
	svc := NewAuthService(staffRepo, sessionRepo, tokens)

	password := "Secret123456!"
	hashedPassword, err := auth.HashPassword(password)
	require.NoError(t, err)
	stored := domain.Staff{ID: "staff-1", ShopID: "shop-1", Email: "agent@example.com", PasswordHash: hashedPassword}

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)

		var created domain.StaffSession
		staffRepo.EXPECT().GetStaffByEmail("agent@example.com").Return(stored, nil).Times(1)
		sessionRepo.EXPECT().
			Create(gomock.Any()).
			DoAndReturn(func(session domain.StaffSession) error {
				created = session
				return nil
			}).
			Times(1)

		session, err := svc.Login("agent@example.com", password)
		req.NoError(err)
		req.Equal("staff-1", session.StaffID)
		req.Equal("shop-1", session.ShopID)

		// The token points to the stored session
		claims, err := tokens.ValidateToken(session.Token)
		req.NoError(err)
		req.Equal(created.ID, claims.SessionID())
		req.Equal(stored.ID, claims.StaffID)
		req.Equal(created.ExpiresAt, session.ExpiresAt)
	})

	t.Run("should return invalid credentials when password matches nothing", func(t *testing.T) {
		req := require.New(t)
		staffRepo.EXPECT().GetStaffByEmail("agent@example.com").Return(stored, nil).Times(1)

		_, err := svc.Login("agent@example.com", "WrongPassword123!")
		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should return invalid credentials when staff is not found", func(t *testing.T) {
		req := require.New(t)
		staffRepo.EXPECT().GetStaffByEmail("unknown@example.com").Return(domain.Staff{}, errors.ErrStaffNotFound).Times(1)

		_, err := svc.Login("unknown@example.com", "anyPassword")
		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}

func TestAuthService_Logout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	sessionRepo := mocks.NewMockISessionRepository(ctrl)
	tokens := auth.NewTokenManager("secret", time.Hour)
	svc := NewAuthService(mocks.NewMockIStaffRepository(ctrl), sessionRepo, tokens)

	token, err := tokens.GenerateToken("staff-1", "shop-1", "session-1", time.Now())
	req.NoError(err)
	sessionRepo.EXPECT().Delete("session-1").Return(nil).Times(1)

	req.NoError(svc.Logout(token))
	req.ErrorIs(svc.Logout("garbage"), errors.ErrAuthentication)
}
