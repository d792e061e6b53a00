package oauthmodel

import (
	"strings"
)

// AuthorizationParameters holds parameters for the OAuth2 authorization request.
// These are received as query parameters (GET) or form values (POST) at /oauth2/authorize.
type AuthorizationParameters struct {
	// ClientID identifies the application requesting authorization.
	// Required: Yes
	// Validated against: the client registry
	ClientID string

	// ResponseType specifies what the authorization endpoint should return.
	// Required: Yes
	// Example: "code" (only supported value)
	ResponseType ResponseType

	// RedirectURI is where the authorization response will be sent.
	// Required: No (defaults to the registered callback URL)
	// Security: Must exactly match the registered callback to prevent open redirects
	RedirectURI string

	// State is an opaque value used by the client to maintain state between request and callback.
	// Required: Recommended (CSRF protection)
	// Echoed back unchanged in the redirect, in success and error responses alike
	State string

	// UserID identifies the end-user approving the request.
	// Required: Yes when the request is submitted for approval
	UserID string
}

// ParseAuthorizationParameters extracts the authorization parameters from a message.
func ParseAuthorizationParameters(msg Message) *AuthorizationParameters {
	p := &AuthorizationParameters{
		ClientID:    msg.ClientID(),
		RedirectURI: msg.RedirectURI(),
		State:       msg.State(),
	}
	if v, ok := msg.Parameter(ParamResponseType); ok {
		p.ResponseType = ResponseType(v)
	}
	if v, ok := msg.Parameter(ParamUserID); ok {
		p.UserID = v
	}
	return p
}

// ValidateWithCallback validates the parameters against the client's registered callback URL.
func (p *AuthorizationParameters) ValidateWithCallback(registeredRedirectURI string) error {
	// The redirect URI goes first: later errors may be sent to it
	if !redirectValidForClient(p.RedirectURI, registeredRedirectURI) {
		return ErrRedirectURIMismatch
	}

	if !responseTypeValid(p.ResponseType) {
		return ErrUnsupportedResponseType
	}
	return nil
}

// EffectiveRedirectURI returns the redirect URI the response must be sent to.
func (p *AuthorizationParameters) EffectiveRedirectURI(registeredRedirectURI string) string {
	if strings.TrimSpace(p.RedirectURI) == "" {
		return registeredRedirectURI
	}
	return p.RedirectURI
}

func responseTypeValid(responseType ResponseType) bool {
	if strings.TrimSpace(string(responseType)) == "" {
		return true
	}
	return responseType == CodeResponseType
}

// An omitted redirect_uri falls back to the registration; a client without a
// registered callback cannot receive a redirect at all.
func redirectValidForClient(redirectURI, registered string) bool {
	if registered == "" {
		return false
	}
	if strings.TrimSpace(redirectURI) == "" {
		return true
	}
	return redirectURI == registered
}
