package provider

import (
	"errors"

	"github.com/jrsteele09/oauth2-provider/oauthmodel"
)

// Problem translates err into the protocol taxonomy. msg, when not nil, supplies the
// state echoed back to the client. An err that already is a Problem keeps its
// classification and only gains the state when it had none.
func (p *Provider) Problem(err error, msg oauthmodel.Message) *oauthmodel.Problem {
	if err == nil {
		return nil
	}
	state := ""
	if msg != nil {
		state = msg.State()
	}

	var existing *oauthmodel.Problem
	if errors.As(err, &existing) {
		if existing.State != "" || state == "" {
			return existing
		}
		withState := *existing
		withState.State = state
		return &withState
	}

	problem := translate(err)
	problem.State = state
	if p.metrics != nil {
		p.metrics.RecordProblem(problem.ErrorCode, problem.Problem)
	}
	return problem
}

func translate(err error) *oauthmodel.Problem {
	var (
		unknownClient *oauthmodel.UnknownClientError
		missing       *oauthmodel.MissingParameterError
		grantErr      *oauthmodel.GrantError
	)

	switch {
	case errors.As(err, &unknownClient):
		return oauthmodel.NewProblem(oauthmodel.ProblemClientIDUnknown, oauthmodel.ErrorCodeInvalidClient,
			"client_id is not registered", err)
	case errors.As(err, &missing):
		return oauthmodel.NewProblem(oauthmodel.ProblemParameterAbsent, oauthmodel.ErrorCodeInvalidRequest,
			missing.Parameter+" is required", err)
	case errors.As(err, &grantErr):
		if grantErr.Kind == oauthmodel.InvalidToken {
			return oauthmodel.NewProblem(oauthmodel.ProblemInvalidToken, oauthmodel.ErrorCodeInvalidGrant,
				"refresh token is invalid or has been used", err)
		}
		return oauthmodel.NewProblem(oauthmodel.ProblemInvalidCode, oauthmodel.ErrorCodeInvalidGrant,
			"authorization code is invalid or has been used", err)
	case errors.Is(err, oauthmodel.ErrInvalidClientSecret):
		return oauthmodel.NewProblem(oauthmodel.ProblemInvalidSecret, oauthmodel.ErrorCodeInvalidClient,
			"client authentication failed", err)
	case errors.Is(err, oauthmodel.ErrRedirectURIMismatch):
		return oauthmodel.NewProblem(oauthmodel.ProblemRedirectMismatch, oauthmodel.ErrorCodeInvalidGrant,
			"redirect_uri does not match the registered callback", err)
	case errors.Is(err, oauthmodel.ErrClientMismatch):
		return oauthmodel.NewProblem(oauthmodel.ProblemClientMismatch, oauthmodel.ErrorCodeInvalidGrant,
			"grant was issued to another client", err)
	case errors.Is(err, oauthmodel.ErrAuthorizationPending):
		return oauthmodel.NewProblem(oauthmodel.ProblemPermissionDenied, oauthmodel.ErrorCodeInvalidGrant,
			"authorization code has not been approved", err)
	case errors.Is(err, oauthmodel.ErrInvalidTransition):
		return oauthmodel.NewProblem(oauthmodel.ProblemInvalidState, oauthmodel.ErrorCodeInvalidGrant,
			"grant is not in a state that allows this operation", err)
	case errors.Is(err, oauthmodel.ErrUnsupportedGrantType):
		return oauthmodel.NewProblem(oauthmodel.ProblemUnsupportedGrant, oauthmodel.ErrorCodeUnsupportedGrantType, "", err)
	case errors.Is(err, oauthmodel.ErrUnsupportedResponseType):
		return oauthmodel.NewProblem(oauthmodel.ProblemUnsupportedReponse, oauthmodel.ErrorCodeUnsupportedResponseType, "", err)
	case errors.Is(err, oauthmodel.ErrConfiguration):
		return oauthmodel.NewProblem(oauthmodel.ProblemConfiguration, oauthmodel.ErrorCodeServerError, "", err)
	}
	return oauthmodel.NewProblem(oauthmodel.ProblemInternal, oauthmodel.ErrorCodeServerError, "", err)
}
