package provider

import (
	"net/http"

	"github.com/jrsteele09/oauth2-provider/accessor"
	"github.com/jrsteele09/oauth2-provider/clients"
	"github.com/jrsteele09/oauth2-provider/grant"
	"github.com/jrsteele09/oauth2-provider/internal/metrics"
	"github.com/jrsteele09/oauth2-provider/oauthmodel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Provider is the operation set used by the transport layer. Every failure it returns
// is an *oauthmodel.Problem carrying an OAuth2 error code and, when the inbound message
// had one, its state parameter.
type Provider struct {
	registry *clients.Registry
	store    *accessor.Store
	machine  *grant.Machine
	writer   oauthmodel.ProblemWriter
	metrics  *metrics.Collector
	realm    string
	logger   zerolog.Logger
}

// ProviderOption defines a function type to modify the Provider instance.
type ProviderOption func(*Provider)

// WithRealm sets the realm announced in WWW-Authenticate challenges.
func WithRealm(realm string) ProviderOption {
	return func(p *Provider) {
		p.realm = realm
	}
}

func WithLogger(logger zerolog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

func WithMetrics(collector *metrics.Collector) ProviderOption {
	return func(p *Provider) {
		p.metrics = collector
	}
}

// WithProblemWriter replaces the default oauthmodel.ResponseWriter.
func WithProblemWriter(writer oauthmodel.ProblemWriter) ProviderOption {
	return func(p *Provider) {
		p.writer = writer
	}
}

// New initializes a Provider over an already loaded registry.
func New(registry *clients.Registry, store *accessor.Store, machine *grant.Machine, options ...ProviderOption) (*Provider, error) {
	if registry == nil {
		return nil, errors.New("[provider.New] registry is required")
	}
	if store == nil {
		return nil, errors.New("[provider.New] store is required")
	}
	if machine == nil {
		return nil, errors.New("[provider.New] machine is required")
	}

	p := &Provider{
		registry: registry,
		store:    store,
		machine:  machine,
		writer:   oauthmodel.ResponseWriter{},
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// GetClient resolves the client named by the message's client_id.
func (p *Provider) GetClient(msg oauthmodel.Message) (*clients.Client, error) {
	client, err := p.registry.Lookup(msg.ClientID())
	if err != nil {
		return nil, p.Problem(err, msg)
	}
	return client, nil
}

// AuthenticateClient resolves the client and checks the presented client secret.
func (p *Provider) AuthenticateClient(msg oauthmodel.Message) (*clients.Client, error) {
	client, err := p.GetClient(msg)
	if err != nil {
		return nil, err
	}
	if !client.VerifySecret(msg.ClientSecret()) {
		return nil, p.Problem(oauthmodel.ErrInvalidClientSecret, msg)
	}
	return client, nil
}

// GenerateCode starts a grant for client.
func (p *Provider) GenerateCode(client *clients.Client) (*accessor.Accessor, error) {
	a, err := p.machine.IssueCode(client)
	if err != nil {
		return nil, p.Problem(err, nil)
	}
	if p.metrics != nil {
		p.metrics.RecordCodeIssued()
	}
	return a, nil
}

// GetAccessorByCode resolves the grant holding the message's code.
func (p *Provider) GetAccessorByCode(msg oauthmodel.Message) (*accessor.Accessor, error) {
	code, ok := msg.Parameter(oauthmodel.ParamCode)
	if !ok || code == "" {
		return nil, p.Problem(&oauthmodel.MissingParameterError{Parameter: oauthmodel.ParamCode}, msg)
	}
	a, err := p.store.FindByCode(code)
	if err != nil {
		return nil, p.Problem(err, msg)
	}
	return a, nil
}

// GetAccessorByRefreshToken resolves the grant holding the message's refresh token.
func (p *Provider) GetAccessorByRefreshToken(msg oauthmodel.Message) (*accessor.Accessor, error) {
	refreshToken, ok := msg.Parameter(oauthmodel.ParamRefreshToken)
	if !ok || refreshToken == "" {
		return nil, p.Problem(&oauthmodel.MissingParameterError{Parameter: oauthmodel.ParamRefreshToken}, msg)
	}
	a, err := p.store.FindByRefreshToken(refreshToken)
	if err != nil {
		return nil, p.Problem(err, msg)
	}
	return a, nil
}

// MarkAsAuthorized records the end-user's approval of a grant.
func (p *Provider) MarkAsAuthorized(a *accessor.Accessor, userID string) error {
	if err := p.machine.MarkAuthorized(a, userID); err != nil {
		return p.Problem(err, nil)
	}
	return nil
}

// GenerateAccessAndRefreshToken issues tokens for a grant and consumes its code.
func (p *Provider) GenerateAccessAndRefreshToken(a *accessor.Accessor) error {
	if err := p.machine.IssueTokens(a); err != nil {
		return p.Problem(err, nil)
	}
	p.recordTokens(oauthmodel.AuthorizationCodeGrant)
	return nil
}

// RefreshTokens replaces the token pair of a grant.
func (p *Provider) RefreshTokens(a *accessor.Accessor) error {
	if err := p.machine.Refresh(a); err != nil {
		return p.Problem(err, nil)
	}
	p.recordTokens(oauthmodel.RefreshTokenGrant)
	return nil
}

// HandleException writes any error, including ones raised outside this package, to
// the wire. sendBodyInJSON selects a JSON body; withAuthHeader adds a
// WWW-Authenticate challenge.
func (p *Provider) HandleException(w http.ResponseWriter, r *http.Request, err error, sendBodyInJSON, withAuthHeader bool) {
	problem := p.Problem(err, nil)
	event := p.logger.Warn()
	if problem.HTTPStatus() >= http.StatusInternalServerError {
		event = p.logger.Error()
	}
	event.Err(problem.Err).
		Str("error", problem.ErrorCode).
		Str("problem", problem.Problem).
		Int("status", problem.HTTPStatus()).
		Msg("oauth2 problem")
	p.writer.WriteProblem(w, r, problem, p.realm, sendBodyInJSON, withAuthHeader)
}

// Realm returns the configured realm ("" when absent).
func (p *Provider) Realm() string {
	return p.realm
}

// Registry returns the client registry the provider resolves clients from.
func (p *Provider) Registry() *clients.Registry {
	return p.registry
}

func (p *Provider) recordTokens(grantType oauthmodel.GrantType) {
	if p.metrics != nil {
		p.metrics.RecordTokensIssued(string(grantType))
	}
}
