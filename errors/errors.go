package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Taxonomy. Every error leaving the runtime wraps exactly one of these.
var (
	ErrAuthentication = fmt.Errorf("authentication failed")
	ErrValidation     = fmt.Errorf("validation failed")
	ErrNotFound       = fmt.Errorf("not found")
	ErrDelivery       = fmt.Errorf("delivery failed")
	ErrInternal       = fmt.Errorf("internal error")
)

var (
	ErrNotAuthenticated      = fmt.Errorf("%w: connection is not authenticated", ErrAuthentication)
	ErrTooManyAttempts       = fmt.Errorf("%w: too many authentication attempts", ErrAuthentication)
	ErrInvalidCredentials    = fmt.Errorf("%w: invalid credentials", ErrAuthentication)
	ErrShopInactive          = fmt.Errorf("%w: shop is inactive", ErrAuthentication)
	ErrSessionExpired        = fmt.Errorf("%w: session expired", ErrAuthentication)
	ErrForbidden             = fmt.Errorf("%w: resource belongs to another identity", ErrAuthentication)
	ErrAlreadyAuthenticated  = fmt.Errorf("%w: connection already authenticated", ErrValidation)
	ErrUnknownConnection     = fmt.Errorf("%w: unknown connection", ErrValidation)
	ErrUnknownType           = fmt.Errorf("%w: unknown message type", ErrValidation)
	ErrMalformedEnvelope     = fmt.Errorf("%w: malformed envelope", ErrValidation)
	ErrEmptyContent          = fmt.Errorf("%w: empty content", ErrValidation)
	ErrContentTooLong        = fmt.Errorf("%w: content too long", ErrValidation)
	ErrInvalidMessageType    = fmt.Errorf("%w: message type must be text, image or file", ErrValidation)
	ErrInvalidMedia          = fmt.Errorf("%w: media does not match message type", ErrValidation)
	ErrConversationNotActive = fmt.Errorf("%w: conversation is not active", ErrValidation)
	ErrInvalidPassword       = fmt.Errorf("%w: password does not meet complexity rules", ErrValidation)
	ErrUserAlreadyExists     = fmt.Errorf("%w: user already exists", ErrValidation)
	ErrShopNotFound          = fmt.Errorf("%w: shop", ErrNotFound)
	ErrConversationNotFound  = fmt.Errorf("%w: conversation", ErrNotFound)
	ErrMessageNotFound       = fmt.Errorf("%w: message", ErrNotFound)
	ErrSessionNotFound       = fmt.Errorf("%w: session", ErrNotFound)
	ErrStaffNotFound         = fmt.Errorf("%w: staff", ErrNotFound)
	ErrMediaNotFound         = fmt.Errorf("%w: media", ErrNotFound)
	ErrConnectionClosed      = fmt.Errorf("%w: connection closed", ErrDelivery)
	ErrTokenGeneration       = fmt.Errorf("%w: token generation", ErrInternal)
)

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrOnlyCensoredFiles = fmt.Errorf("censored directory contains directories")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrInvalidPayload    = fmt.Errorf("invalid event payload")
	ErrEmptyRules        = fmt.Errorf("no auto-reply rules have been found")
)

// Code is the wire representation of an error category.
type Code string

const (
	CodeAuthentication Code = "AUTHENTICATION_ERROR"
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeNotFound       Code = "NOT_FOUND"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// CodeOf maps any error to its wire code. Unclassified errors are internal.
// Delivery errors never reach a sender, so they also fall back to internal.
func CodeOf(err error) Code {
	switch {
	case stderrors.Is(err, ErrAuthentication):
		return CodeAuthentication
	case stderrors.Is(err, ErrValidation):
		return CodeValidation
	case stderrors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// PublicMessage hides the details of internal errors from clients.
func PublicMessage(err error) string {
	if CodeOf(err) == CodeInternal {
		return ErrInternal.Error()
	}
	return err.Error()
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeAuthentication:
		return http.StatusUnauthorized
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
