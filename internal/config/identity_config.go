package config

type IdentityConfig interface {
	GetTokenPath() string
	GetRefreshPath() string
	GetCurrentUserPath() string
	GetRegisterPath() string
	GetRevokePath() string
}

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetTokenPath() string {
	return "/api/token/"
}

func (Identity) GetRefreshPath() string {
	return "/api/token/refresh/"
}

func (Identity) GetCurrentUserPath() string {
	return "/api/users/me/"
}

func (Identity) GetRegisterPath() string {
	return "/api/users/register/"
}

// GetRevokePath returns the refresh token blacklist endpoint. Empty disables revocation on logout.
func (Identity) GetRevokePath() string {
	return GetEnv("REVOKE_PATH", "")
}
