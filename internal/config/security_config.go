package config

type SecurityConfig interface {
	GetEnableRateLimiting() bool
	GetTokenRateLimit() float64
	GetTokenRateBurst() int
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetEnableRateLimiting reports whether the token endpoint is rate limited.
func (s Security) GetEnableRateLimiting() bool {
	return s.GetTokenRateLimit() > 0
}

// GetTokenRateLimit is the sustained number of token requests per second allowed per
// remote address. Zero disables rate limiting.
func (Security) GetTokenRateLimit() float64 {
	return GetEnvFloat("TOKEN_RATE_LIMIT", 10)
}

func (Security) GetTokenRateBurst() int {
	return GetEnvInt("TOKEN_RATE_BURST", 20)
}
