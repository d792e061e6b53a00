package clients

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Metadata keys attached to every registered client
const (
	MetadataName        = "name"
	MetadataDescription = "description"
)

// Client is a registered application. Clients are built by Registry.Load and must be
// treated as read-only afterwards: they are shared by every request without locking.
type Client struct {
	ID          string            `json:"id" yaml:"id"`
	Secret      string            `json:"secret" yaml:"secret"` // Plain text or a bcrypt hash
	RedirectURI string            `json:"redirectURI" yaml:"redirectURI"`
	Description string            `json:"description" yaml:"description"`
	Metadata    map[string]string `json:"metadata" yaml:"metadata"`
}

// MetadataValue returns the metadata stored under key, or "".
func (c *Client) MetadataValue(key string) string {
	return c.Metadata[key]
}

// HasHashedSecret reports whether the configured secret is a bcrypt hash.
func (c *Client) HasHashedSecret() bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(c.Secret, prefix) {
			return true
		}
	}
	return false
}

// VerifySecret checks a presented client secret in constant time.
func (c *Client) VerifySecret(secret string) bool {
	if c.HasHashedSecret() {
		return bcrypt.CompareHashAndPassword([]byte(c.Secret), []byte(secret)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) == 1
}
