package provider

import (
	"errors"
	"net/url"

	"github.com/jrsteele09/oauth2-provider/accessor"
	"github.com/jrsteele09/oauth2-provider/clients"
	"github.com/jrsteele09/oauth2-provider/oauthmodel"
)

// propertyRedirectURI records the redirect_uri sent to the authorization endpoint. The
// token request must then repeat it (RFC 6749 section 4.1.3).
const propertyRedirectURI = "redirect_uri"

// AuthorizationRequest is an authorization request whose client and redirect URI were verified.
type AuthorizationRequest struct {
	Client      *clients.Client
	Params      *oauthmodel.AuthorizationParameters
	RedirectURI string // Effective callback: the requested one or the registered one
}

// Authorization is the outcome of an approved authorization request.
type Authorization struct {
	Accessor    *accessor.Accessor
	Code        string
	State       string
	RedirectURI string
}

// RedirectURL returns the callback URL carrying the code and state.
func (a *Authorization) RedirectURL() (string, error) {
	values := url.Values{}
	values.Set(oauthmodel.ParamCode, a.Code)
	if a.State != "" {
		values.Set(oauthmodel.ParamState, a.State)
	}
	return appendQuery(a.RedirectURI, values)
}

// ProblemRedirectURL returns the callback URL carrying the problem, or false when the
// problem has no verified callback and must be answered directly.
func ProblemRedirectURL(problem *oauthmodel.Problem) (string, bool) {
	if problem == nil || problem.RedirectURI == "" {
		return "", false
	}
	u, err := appendQuery(problem.RedirectURI, oauthmodel.ProblemValues(problem))
	if err != nil {
		return "", false
	}
	return u, true
}

func appendQuery(rawURL string, values url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range values {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ValidateAuthorizationRequest checks the client and its redirect URI. Failures here are
// never redirected. An unsupported response type is reported as a problem that
// carries the verified callback.
func (p *Provider) ValidateAuthorizationRequest(msg oauthmodel.Message) (*AuthorizationRequest, error) {
	if _, ok := msg.Parameter(oauthmodel.ParamClientID); !ok || msg.ClientID() == "" {
		return nil, p.Problem(&oauthmodel.MissingParameterError{Parameter: oauthmodel.ParamClientID}, msg)
	}
	client, err := p.GetClient(msg)
	if err != nil {
		return nil, err
	}

	params := oauthmodel.ParseAuthorizationParameters(msg)
	if err := params.ValidateWithCallback(client.RedirectURI); err != nil {
		problem := p.Problem(err, msg)
		if errors.Is(err, oauthmodel.ErrUnsupportedResponseType) {
			problem.RedirectURI = params.EffectiveRedirectURI(client.RedirectURI)
		}
		return nil, problem
	}

	return &AuthorizationRequest{
		Client:      client,
		Params:      params,
		RedirectURI: params.EffectiveRedirectURI(client.RedirectURI),
	}, nil
}

// Authorize issues a code for the request in msg and records userID's approval of it.
func (p *Provider) Authorize(msg oauthmodel.Message, userID string) (*Authorization, error) {
	req, err := p.ValidateAuthorizationRequest(msg)
	if err != nil {
		return nil, err
	}
	redirectable := func(err error) error {
		problem := p.Problem(err, msg)
		problem.RedirectURI = req.RedirectURI
		return problem
	}

	if userID == "" {
		return nil, redirectable(&oauthmodel.MissingParameterError{Parameter: oauthmodel.ParamUserID})
	}

	a, err := p.GenerateCode(req.Client)
	if err != nil {
		return nil, redirectable(err)
	}
	if req.Params.RedirectURI != "" {
		a.SetProperty(propertyRedirectURI, req.Params.RedirectURI)
	}
	if err := p.MarkAsAuthorized(a, userID); err != nil {
		return nil, redirectable(err)
	}

	p.logger.Debug().
		Str("client_id", req.Client.ID).
		Str("accessor", a.ID()).
		Msg("authorization approved")

	return &Authorization{
		Accessor:    a,
		Code:        a.Code(),
		State:       msg.State(),
		RedirectURI: req.RedirectURI,
	}, nil
}

// Token dispatches a token request on its grant_type.
func (p *Provider) Token(msg oauthmodel.Message) (*oauthmodel.TokenResponse, error) {
	switch msg.GrantType() {
	case "":
		return nil, p.Problem(&oauthmodel.MissingParameterError{Parameter: oauthmodel.ParamGrantType}, msg)
	case oauthmodel.AuthorizationCodeGrant:
		return p.ExchangeCode(msg)
	case oauthmodel.RefreshTokenGrant:
		return p.ExchangeRefreshToken(msg)
	}
	return nil, p.Problem(oauthmodel.ErrUnsupportedGrantType, msg)
}

// ExchangeCode redeems an approved authorization code. The code is consumed atomically:
// of several concurrent exchanges of one code exactly one succeeds.
func (p *Provider) ExchangeCode(msg oauthmodel.Message) (*oauthmodel.TokenResponse, error) {
	client, err := p.AuthenticateClient(msg)
	if err != nil {
		return nil, err
	}
	a, err := p.GetAccessorByCode(msg)
	if err != nil {
		return nil, err
	}
	if a.Client().ID != client.ID {
		return nil, p.Problem(oauthmodel.ErrClientMismatch, msg)
	}
	if !redirectMatches(a, client, msg.RedirectURI()) {
		return nil, p.Problem(oauthmodel.ErrRedirectURIMismatch, msg)
	}
	if !a.Authorized() {
		return nil, p.Problem(oauthmodel.ErrAuthorizationPending, msg)
	}

	if err := p.machine.Exchange(a, msg.Code()); err != nil {
		return nil, p.Problem(err, msg)
	}
	p.recordTokens(oauthmodel.AuthorizationCodeGrant)

	snap := a.Snapshot()
	p.logger.Debug().Str("client_id", client.ID).Str("accessor", a.ID()).Msg("authorization code exchanged")
	return oauthmodel.NewTokenResponse(snap.AccessToken, snap.RefreshToken, msg.State()), nil
}

// ExchangeRefreshToken rotates the token pair of the grant holding the presented refresh token.
func (p *Provider) ExchangeRefreshToken(msg oauthmodel.Message) (*oauthmodel.TokenResponse, error) {
	client, err := p.AuthenticateClient(msg)
	if err != nil {
		return nil, err
	}
	a, err := p.GetAccessorByRefreshToken(msg)
	if err != nil {
		return nil, err
	}
	if a.Client().ID != client.ID {
		return nil, p.Problem(oauthmodel.ErrClientMismatch, msg)
	}

	if err := p.machine.RotateRefreshToken(a, msg.RefreshToken()); err != nil {
		return nil, p.Problem(err, msg)
	}
	p.recordTokens(oauthmodel.RefreshTokenGrant)

	snap := a.Snapshot()
	p.logger.Debug().Str("client_id", client.ID).Str("accessor", a.ID()).Msg("refresh token rotated")
	return oauthmodel.NewTokenResponse(snap.AccessToken, snap.RefreshToken, msg.State()), nil
}

func redirectMatches(a *accessor.Accessor, client *clients.Client, presented string) bool {
	if v, ok := a.Property(propertyRedirectURI); ok {
		requested, _ := v.(string)
		return presented == requested
	}
	return presented == "" || presented == client.RedirectURI
}
