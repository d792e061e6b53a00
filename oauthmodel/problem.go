package oauthmodel

import (
	"fmt"
	"net/http"
)

// OAuth2 error codes (RFC 6749 section 5.2 and 4.1.2.1)
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeServerError             = "server_error"
	ErrorCodeTemporarilyUnavailable  = "temporarily_unavailable"
)

// Problem names. They are finer grained than the error codes and let a transport or a
// log line tell an unknown code apart from an unknown refresh token.
const (
	ProblemClientIDUnknown    = "client_id_unknown"
	ProblemParameterAbsent    = "parameter_absent"
	ProblemInvalidCode        = "invalid_code"
	ProblemInvalidToken       = "invalid_token"
	ProblemInvalidSecret      = "invalid_client_secret"
	ProblemRedirectMismatch   = "redirect_uri_mismatch"
	ProblemClientMismatch     = "client_mismatch"
	ProblemPermissionDenied   = "permission_denied"
	ProblemInvalidState       = "invalid_state"
	ProblemUnsupportedGrant   = "unsupported_grant_type"
	ProblemUnsupportedReponse = "unsupported_response_type"
	ProblemConfiguration      = "configuration_error"
	ProblemInternal           = "internal_error"
	ProblemMalformedRequest   = "malformed_request"
	ProblemRateLimited        = "rate_limited"
)

// Problem is a protocol-level failure ready to be written to the wire.
type Problem struct {
	Problem     string // Fine grained problem name (ProblemXxx)
	ErrorCode   string // OAuth2 error code sent as "error"
	Description string // Sent as "error_description" when not empty
	State       string // Echo of the inbound state parameter
	Status      int    // HTTP status
	Err         error  // Underlying cause, never written to the wire

	// RedirectURI is the verified client callback the problem may be delivered to.
	// Empty when the problem must be answered directly.
	RedirectURI string
}

func (p *Problem) Error() string {
	if p.Description != "" {
		return fmt.Sprintf("%s (%s): %s", p.ErrorCode, p.Problem, p.Description)
	}
	return fmt.Sprintf("%s (%s)", p.ErrorCode, p.Problem)
}

func (p *Problem) Unwrap() error { return p.Err }

// HTTPStatus returns the status to respond with, defaulting to 400.
func (p *Problem) HTTPStatus() int {
	if p.Status == 0 {
		return http.StatusBadRequest
	}
	return p.Status
}

// NewProblem creates a problem with the status implied by the error code.
func NewProblem(problem, errorCode, description string, cause error) *Problem {
	return &Problem{
		Problem:     problem,
		ErrorCode:   errorCode,
		Description: description,
		Status:      statusForErrorCode(errorCode),
		Err:         cause,
	}
}

func statusForErrorCode(errorCode string) int {
	switch errorCode {
	case ErrorCodeInvalidClient:
		return http.StatusUnauthorized
	case ErrorCodeAccessDenied:
		return http.StatusForbidden
	case ErrorCodeServerError:
		return http.StatusInternalServerError
	case ErrorCodeTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}
