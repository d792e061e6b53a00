package oauthmodel

import (
	"net/http"
	"net/url"
)

// Request parameter names
const (
	ParamClientID     = "client_id"
	ParamClientSecret = "client_secret"
	ParamCode         = "code"
	ParamState        = "state"
	ParamRefreshToken = "refresh_token"
	ParamRedirectURI  = "redirect_uri"
	ParamGrantType    = "grant_type"
	ParamResponseType = "response_type"
	ParamUserID       = "user_id"
)

// Message is an inbound protocol message as parsed by the transport layer.
// Accessors return "" for absent parameters; use Parameter to tell absent from empty.
type Message interface {
	ClientID() string
	ClientSecret() string
	Code() string
	State() string
	RefreshToken() string
	RedirectURI() string
	GrantType() GrantType
	Parameter(name string) (string, bool)
}

// ValuesMessage is a Message backed by url.Values.
type ValuesMessage struct {
	values url.Values
}

var _ Message = (*ValuesMessage)(nil)

// NewMessage wraps already parsed parameters.
func NewMessage(values url.Values) *ValuesMessage {
	if values == nil {
		values = url.Values{}
	}
	return &ValuesMessage{values: values}
}

// NewRequestMessage builds a message from the query string and form body of r.
// Client credentials sent with HTTP Basic authentication (client_secret_basic) are
// used when the body does not carry them.
func NewRequestMessage(r *http.Request) (*ValuesMessage, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	values := url.Values{}
	for k, v := range r.Form {
		values[k] = append([]string(nil), v...)
	}
	if id, secret, ok := r.BasicAuth(); ok {
		if !values.Has(ParamClientID) {
			values.Set(ParamClientID, unescapeCredential(id))
		}
		if !values.Has(ParamClientSecret) {
			values.Set(ParamClientSecret, unescapeCredential(secret))
		}
	}
	return NewMessage(values), nil
}

// RFC 6749 section 2.3.1 form-encodes basic credentials before base64.
func unescapeCredential(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

func (m *ValuesMessage) ClientID() string { return m.values.Get(ParamClientID) }
func (m *ValuesMessage) ClientSecret() string { return m.values.Get(ParamClientSecret) }
func (m *ValuesMessage) Code() string { return m.values.Get(ParamCode) }
func (m *ValuesMessage) State() string { return m.values.Get(ParamState) }
func (m *ValuesMessage) RefreshToken() string { return m.values.Get(ParamRefreshToken) }
func (m *ValuesMessage) RedirectURI() string { return m.values.Get(ParamRedirectURI) }
func (m *ValuesMessage) GrantType() GrantType { return GrantType(m.values.Get(ParamGrantType)) }
func (m *ValuesMessage) ResponseType() string { return m.values.Get(ParamResponseType) }
func (m *ValuesMessage) Values() url.Values { return m.values }

// Parameter returns the named parameter and whether it was present at all.
func (m *ValuesMessage) Parameter(name string) (string, bool) {
	if !m.values.Has(name) {
		return "", false
	}
	return m.values.Get(name), true
}
