package config

import "time"

type OAuthConfig interface {
	GetAuthCodeTimeout() time.Duration
	GetPurgeInterval() time.Duration
	GetTokenEntropyBytes() int
	GetRealm() string
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

// GetAuthCodeTimeout is how long an unexchanged code is kept. Zero keeps codes forever.
func (OAuth) GetAuthCodeTimeout() time.Duration {
	return GetEnvDuration("AUTH_CODE_TIMEOUT", 0)
}

func (OAuth) GetPurgeInterval() time.Duration {
	return GetEnvDuration("PURGE_INTERVAL", time.Minute)
}

func (OAuth) GetTokenEntropyBytes() int {
	return GetEnvInt("TOKEN_ENTROPY_BYTES", 32) // 32 bytes = 256 bits
}

// GetRealm is announced in WWW-Authenticate challenges; empty omits it.
func (OAuth) GetRealm() string {
	return GetEnv("REALM", "")
}
