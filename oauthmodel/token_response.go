package oauthmodel

// TokenResponse is the token endpoint success body (RFC 6749 section 5.1).
type TokenResponse struct {
	// AccessToken is an opaque credential. Usage: "Authorization: Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// TokenType is always "bearer".
	TokenType string `json:"token_type"`

	// RefreshToken is an opaque credential for grant_type=refresh_token.
	// It rotates on every use; the previous value stops working.
	RefreshToken string `json:"refresh_token,omitempty"`

	// State echoes the state parameter of the token request when one was sent.
	State string `json:"state,omitempty"`
}

// NewTokenResponse builds a bearer token response.
func NewTokenResponse(accessToken, refreshToken, state string) *TokenResponse {
	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    TokenTypeBearer,
		RefreshToken: refreshToken,
		State:        state,
	}
}
