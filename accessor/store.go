package accessor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/oauth2-provider/clients"
	"github.com/jrsteele09/oauth2-provider/oauthmodel"
	"github.com/jrsteele09/oauth2-provider/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store owns every Accessor and indexes them by code and by refresh token.
//
// A single mutex guards all indices. Accessor fields are only written while it is
// held, so a lookup never observes an accessor that is half way through a reindex.
// Lock order is always store, then accessor.
type Store struct {
	mu        sync.Mutex
	accessors map[string]*Accessor // accessor ID -> accessor
	byCode    map[string]*Accessor
	byRefresh map[string]*Accessor

	generator token.Generator
	nowFunc   func() time.Time
	logger    zerolog.Logger
}

type StoreOption func(*Store)

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(generator token.Generator, options ...StoreOption) *Store {
	s := &Store{
		accessors: make(map[string]*Accessor),
		byCode:    make(map[string]*Accessor),
		byRefresh: make(map[string]*Accessor),
		generator: generator,
		nowFunc:   time.Now,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// IssueCode creates an accessor bound to client and indexes it under a fresh code.
func (s *Store) IssueCode(client *clients.Client) (*Accessor, error) {
	if client == nil {
		return nil, errors.New("[Store.IssueCode] client is required")
	}
	code, err := s.generator.NewIdentifier(client.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.IssueCode] generating code")
	}

	now := s.nowFunc()
	a := &Accessor{
		id:     uuid.New().String(),
		client: client,
		fields: Fields{
			Code:      code,
			State:     CodeIssued,
			IssuedAt:  now,
			UpdatedAt: now,
		},
	}

	s.mu.Lock()
	s.accessors[a.id] = a
	s.byCode[code] = a
	s.mu.Unlock()

	s.logger.Debug().Str("accessor", a.id).Str("client_id", client.ID).Msg("authorization code issued")
	return a, nil
}

// FindByCode returns the accessor currently holding code.
func (s *Store) FindByCode(code string) (*Accessor, error) {
	if code == "" {
		return nil, &oauthmodel.MissingParameterError{Parameter: oauthmodel.ParamCode}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byCode[code]
	if !ok {
		return nil, oauthmodel.NewInvalidCode()
	}
	return a, nil
}

// FindByRefreshToken returns the accessor currently holding refreshToken.
func (s *Store) FindByRefreshToken(refreshToken string) (*Accessor, error) {
	if refreshToken == "" {
		return nil, &oauthmodel.MissingParameterError{Parameter: oauthmodel.ParamRefreshToken}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byRefresh[refreshToken]
	if !ok {
		return nil, oauthmodel.NewInvalidToken()
	}
	return a, nil
}

// Update atomically reindexes a. The accessor is taken out of every index, mutate is
// applied to a copy of its fields, and the accessor is put back under the resulting
// code and refresh token. The copy only replaces the fields when mutate returns nil,
// so a failed mutation leaves the accessor and the indices exactly as they were.
func (s *Store) Update(a *Accessor, mutate func(*Fields) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a == nil || s.accessors[a.id] != a {
		return oauthmodel.ErrUnknownAccessor
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s.unindex(a)
	next := a.fields
	err := mutate(&next)
	if err == nil {
		next.UpdatedAt = s.nowFunc()
		a.fields = next
	}
	s.index(a)
	return err
}

// Len returns the number of accessors held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accessors)
}

// Purge drops accessors whose code was never exchanged and that were issued before
// cutoff. It returns how many were dropped.
func (s *Store) Purge(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, a := range s.accessors {
		a.mu.Lock()
		stale := a.fields.State != TokenIssued && a.fields.IssuedAt.Before(cutoff)
		if stale {
			s.unindex(a)
			delete(s.accessors, id)
			purged++
		}
		a.mu.Unlock()
	}
	if purged > 0 {
		s.logger.Debug().Int("purged", purged).Time("cutoff", cutoff).Msg("stale authorization codes purged")
	}
	return purged
}

// must be called with s.mu and a.mu held
func (s *Store) unindex(a *Accessor) {
	if c := a.fields.Code; c != "" && s.byCode[c] == a {
		delete(s.byCode, c)
	}
	if rt := a.fields.RefreshToken; rt != "" && s.byRefresh[rt] == a {
		delete(s.byRefresh, rt)
	}
}

// must be called with s.mu and a.mu held
func (s *Store) index(a *Accessor) {
	if c := a.fields.Code; c != "" {
		s.byCode[c] = a
	}
	if rt := a.fields.RefreshToken; rt != "" {
		s.byRefresh[rt] = a
	}
}
