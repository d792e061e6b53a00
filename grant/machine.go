package grant

import (
	"github.com/jrsteele09/oauth2-provider/accessor"
	"github.com/jrsteele09/oauth2-provider/clients"
	"github.com/jrsteele09/oauth2-provider/oauthmodel"
	"github.com/jrsteele09/oauth2-provider/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Machine drives accessors through the authorization code lifecycle:
//
//	CodeIssued -> Authorized -> TokenIssued -> TokenIssued (refresh) ...
//
// Every transition goes through accessor.Store.Update, so transitions of one accessor
// are serialized with each other and with lookups.
type Machine struct {
	store     *accessor.Store
	generator token.Generator
	logger    zerolog.Logger
}

type MachineOption func(*Machine)

func WithLogger(logger zerolog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

func NewMachine(store *accessor.Store, generator token.Generator, options ...MachineOption) (*Machine, error) {
	if store == nil {
		return nil, errors.New("[NewMachine] store is required")
	}
	if generator == nil {
		return nil, errors.New("[NewMachine] generator is required")
	}
	m := &Machine{
		store:     store,
		generator: generator,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// IssueCode starts a new grant for client.
func (m *Machine) IssueCode(client *clients.Client) (*accessor.Accessor, error) {
	return m.store.IssueCode(client)
}

// MarkAuthorized records the end-user's approval.
func (m *Machine) MarkAuthorized(a *accessor.Accessor, userID string) error {
	err := m.store.Update(a, func(f *accessor.Fields) error {
		if f.State == accessor.TokenIssued {
			return errors.Wrap(oauthmodel.ErrInvalidTransition, "tokens already issued")
		}
		f.UserID = userID
		f.Authorized = true
		f.State = accessor.Authorized
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.Debug().Str("accessor", a.ID()).Str("user_id", userID).Msg("grant authorized")
	return nil
}

// IssueTokens mints the first access/refresh pair and consumes the code. It is allowed
// once per grant: when the code was already consumed it fails with invalid_code.
func (m *Machine) IssueTokens(a *accessor.Accessor) error {
	return m.mint(a, func(f *accessor.Fields) error {
		if f.State == accessor.TokenIssued || f.Code == "" {
			return oauthmodel.NewInvalidCode()
		}
		return nil
	})
}

// Exchange consumes code and issues tokens in one step. When the accessor no longer
// holds code (it was already exchanged, possibly concurrently) it fails with invalid_code.
func (m *Machine) Exchange(a *accessor.Accessor, code string) error {
	return m.mint(a, func(f *accessor.Fields) error {
		if code == "" || f.Code != code {
			return oauthmodel.NewInvalidCode()
		}
		return nil
	})
}

// Refresh replaces the access/refresh pair of a grant that already holds tokens.
func (m *Machine) Refresh(a *accessor.Accessor) error {
	return m.mint(a, requireTokens)
}

// RotateRefreshToken refreshes only if presented is still the current refresh token,
// so one refresh token can be redeemed at most once.
func (m *Machine) RotateRefreshToken(a *accessor.Accessor, presented string) error {
	return m.mint(a, func(f *accessor.Fields) error {
		if err := requireTokens(f); err != nil {
			return err
		}
		if presented == "" || f.RefreshToken != presented {
			return oauthmodel.NewInvalidToken()
		}
		return nil
	})
}

func requireTokens(f *accessor.Fields) error {
	if f.State != accessor.TokenIssued || f.RefreshToken == "" {
		return oauthmodel.NewInvalidToken()
	}
	return nil
}

// mint generates the new pair outside the store lock, then checks precondition and
// swaps the tokens in under it.
func (m *Machine) mint(a *accessor.Accessor, precondition func(*accessor.Fields) error) error {
	if a == nil {
		return oauthmodel.ErrUnknownAccessor
	}
	client := a.Client()
	accessToken, err := m.generator.NewIdentifier(client.ID)
	if err != nil {
		return errors.Wrap(err, "[Machine] generating access token")
	}
	refreshToken, err := m.generator.NewIdentifier(client.RedirectURI)
	if err != nil {
		return errors.Wrap(err, "[Machine] generating refresh token")
	}

	refreshed := false
	err = m.store.Update(a, func(f *accessor.Fields) error {
		if err := precondition(f); err != nil {
			return err
		}
		refreshed = f.State == accessor.TokenIssued
		f.Code = ""
		f.AccessToken = accessToken
		f.RefreshToken = refreshToken
		f.State = accessor.TokenIssued
		return nil
	})
	if err != nil {
		return err
	}

	if refreshed {
		m.logger.Debug().Str("accessor", a.ID()).Str("client_id", client.ID).Msg("tokens refreshed")
	} else {
		m.logger.Debug().Str("accessor", a.ID()).Str("client_id", client.ID).Msg("tokens issued")
	}
	return nil
}
