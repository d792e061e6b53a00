package accessor

import (
	"sync"
	"time"

	"github.com/jrsteele09/oauth2-provider/clients"
)

// State is the lifecycle position of a grant.
type State string

const (
	CodeIssued  State = "code_issued"
	Authorized  State = "authorized"
	TokenIssued State = "token_issued"
)

// Fields are the mutable, identifying fields of an Accessor. They only change through
// Store.Update, which keeps the store indices consistent with them.
type Fields struct {
	Code         string    // Authorization code, cleared once exchanged
	AccessToken  string    // Set by the token step
	RefreshToken string    // Set by the token step, rotated on refresh
	UserID       string    // Set once the end-user approves
	Authorized   bool      // True once the end-user approves
	State        State     // Lifecycle position
	IssuedAt     time.Time // When the code was issued
	UpdatedAt    time.Time // Last successful Update
}

// Accessor is the server-side record of one authorization grant.
// The Store owns every Accessor; Client is a shared, read-only reference.
type Accessor struct {
	id     string
	client *clients.Client

	mu         sync.RWMutex
	fields     Fields
	properties map[string]any
}

func (a *Accessor) ID() string { return a.id }
func (a *Accessor) Client() *clients.Client { return a.client }

// Snapshot returns a consistent copy of the accessor fields.
func (a *Accessor) Snapshot() Fields {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fields
}

func (a *Accessor) Code() string { return a.Snapshot().Code }
func (a *Accessor) AccessToken() string { return a.Snapshot().AccessToken }
func (a *Accessor) RefreshToken() string { return a.Snapshot().RefreshToken }
func (a *Accessor) UserID() string { return a.Snapshot().UserID }
func (a *Accessor) Authorized() bool { return a.Snapshot().Authorized }
func (a *Accessor) State() State { return a.Snapshot().State }

// SetProperty attaches an extension property to the accessor.
func (a *Accessor) SetProperty(name string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.properties == nil {
		a.properties = make(map[string]any)
	}
	a.properties[name] = value
}

// Property returns an extension property and whether it was set.
func (a *Accessor) Property(name string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.properties[name]
	return v, ok
}
