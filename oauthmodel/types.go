package oauthmodel

// ResponseType represents the OAuth 2.0 response type requested at the authorization endpoint.
type ResponseType string

const (
	// CodeResponseType requests an authorization code that is later exchanged at the token endpoint.
	// Example: /oauth2/authorize?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges a one-time authorization code for tokens.
	// Token request includes: code, client_id, client_secret, redirect_uri
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a fresh access/refresh pair.
	// Token request includes: refresh_token, client_id, client_secret
	// The presented refresh token stops resolving once the new pair is issued.
	RefreshTokenGrant GrantType = "refresh_token"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"
