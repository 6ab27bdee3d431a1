package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"authentication", ErrInvalidCredentials, CodeAuthentication},
		{"wrapped validation", fmt.Errorf("send: %w", ErrContentTooLong), CodeValidation},
		{"not found", ErrShopNotFound, CodeNotFound},
		{"delivery falls back to internal", ErrConnectionClosed, CodeInternal},
		{"unclassified", fmt.Errorf("disk full"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestPublicMessage_HidesInternalDetails(t *testing.T) {
	req := require.New(t)
	req.Equal("internal error", PublicMessage(fmt.Errorf("%w: badger: disk full", ErrInternal)))
	req.Equal(ErrEmptyContent.Error(), PublicMessage(ErrEmptyContent))
}

func TestHTTPStatus(t *testing.T) {
	req := require.New(t)
	req.Equal(http.StatusUnauthorized, HTTPStatus(ErrSessionExpired))
	req.Equal(http.StatusBadRequest, HTTPStatus(ErrUnknownType))
	req.Equal(http.StatusNotFound, HTTPStatus(ErrConversationNotFound))
	req.Equal(http.StatusInternalServerError, HTTPStatus(fmt.Errorf("boom")))
}
