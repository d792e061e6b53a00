package clients

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/oauth2-provider/oauthmodel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	descriptionSuffix = ".description"
	callbackURLSuffix = ".callbackURL"
)

// Registry holds the registered clients. It is loaded once from a Source; lookups
// after that are lock-free reads of an immutable map.
type Registry struct {
	source  Source
	logger  zerolog.Logger
	loadMu  sync.Mutex
	clients atomic.Pointer[map[string]*Client]
}

type RegistryOption func(*Registry)

// WithLogger sets the logger used to report loads.
func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(source Source, options ...RegistryOption) *Registry {
	r := &Registry{
		source: source,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Load parses the source into clients. Once a load succeeds later calls reuse the
// parsed configuration; concurrent first callers wait for a single parse. A failed
// load leaves the registry empty and may be retried.
func (r *Registry) Load() error {
	if r.clients.Load() != nil {
		return nil
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	if r.clients.Load() != nil {
		return nil
	}

	if r.source == nil {
		return &oauthmodel.ConfigurationError{Source: "<nil>", Err: fmt.Errorf("no client configuration source")}
	}
	values, err := r.source.Read()
	if err != nil {
		return &oauthmodel.ConfigurationError{Source: r.source.Name(), Err: err}
	}
	parsed, err := parseClients(values)
	if err != nil {
		return &oauthmodel.ConfigurationError{Source: r.source.Name(), Err: err}
	}

	r.clients.Store(&parsed)
	r.logger.Info().Str("source", r.source.Name()).Int("clients", len(parsed)).Msg("client registry loaded")
	return nil
}

// Lookup returns the client registered under clientID.
func (r *Registry) Lookup(clientID string) (*Client, error) {
	if m := r.clients.Load(); m != nil {
		if c, ok := (*m)[clientID]; ok {
			return c, nil
		}
	}
	return nil, &oauthmodel.UnknownClientError{ClientID: clientID}
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	if m := r.clients.Load(); m != nil {
		return len(*m)
	}
	return 0
}

// IDs returns the registered client ids in sorted order.
func (r *Registry) IDs() []string {
	m := r.clients.Load()
	if m == nil {
		return nil
	}
	ids := make([]string, 0, len(*m))
	for id := range *m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func parseClients(values map[string]string) (map[string]*Client, error) {
	parsed := make(map[string]*Client)
	for key, secret := range values {
		// dotted keys carry metadata for another entry
		if strings.Contains(key, ".") {
			continue
		}
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("empty client id")
		}
		if secret == "" {
			return nil, fmt.Errorf("client %q has an empty secret", key)
		}
		description := values[key+descriptionSuffix]
		parsed[key] = &Client{
			ID:          key,
			Secret:      secret,
			RedirectURI: values[key+callbackURLSuffix],
			Description: description,
			Metadata: map[string]string{
				MetadataName:        key,
				MetadataDescription: description,
			},
		}
	}
	return parsed, nil
}
