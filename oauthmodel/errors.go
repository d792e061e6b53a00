package oauthmodel

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration           = errors.New("client configuration unavailable")
	ErrUnknownClient           = errors.New("unknown client")
	ErrMissingParameter        = errors.New("missing parameter")
	ErrInvalidGrant            = errors.New("invalid grant")
	ErrInvalidClientSecret     = errors.New("invalid client secret")
	ErrRedirectURIMismatch     = errors.New("redirect uri does not match the registered callback")
	ErrClientMismatch          = errors.New("grant was issued to another client")
	ErrAuthorizationPending    = errors.New("authorization code has not been approved")
	ErrUnsupportedGrantType    = errors.New("unsupported grant type")
	ErrUnsupportedResponseType = errors.New("unsupported response type")
	ErrInvalidTransition       = errors.New("invalid grant state transition")
	ErrUnknownAccessor         = errors.New("accessor is not held by this store")
)

// GrantErrorKind distinguishes which credential failed to resolve.
type GrantErrorKind string

const (
	InvalidCode  GrantErrorKind = "invalid_code"
	InvalidToken GrantErrorKind = "invalid_token"
)

// ConfigurationError reports a client configuration source that could not be read or parsed.
type ConfigurationError struct {
	Source string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("client configuration %q: %v", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// UnknownClientError is returned when a client id is not registered.
type UnknownClientError struct {
	ClientID string
}

func (e *UnknownClientError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownClient, e.ClientID)
}

func (e *UnknownClientError) Is(target error) bool { return target == ErrUnknownClient }

// MissingParameterError is returned when a required request parameter is absent.
type MissingParameterError struct {
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingParameter, e.Parameter)
}

func (e *MissingParameterError) Is(target error) bool { return target == ErrMissingParameter }

// GrantError is returned when a code or refresh token does not match any accessor.
type GrantError struct {
	Kind GrantErrorKind
}

func (e *GrantError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidGrant, e.Kind)
}

func (e *GrantError) Is(target error) bool {
	if target == ErrInvalidGrant {
		return true
	}
	var other *GrantError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// NewInvalidCode returns a GrantError for an unknown or consumed authorization code.
func NewInvalidCode() error { return &GrantError{Kind: InvalidCode} }

// NewInvalidToken returns a GrantError for an unknown or rotated refresh token.
func NewInvalidToken() error { return &GrantError{Kind: InvalidToken} }
