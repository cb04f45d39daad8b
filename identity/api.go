package identity

import (
	"context"

	"github.com/jrsteele09/go-auth-session/users"
)

// TokenPair is what the token endpoints return. Refresh is empty on a refresh
// response unless the backend rotates refresh tokens.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// API is the backing identity service the session manager talks to.
//
// Implementations classify failures with the sentinels in internal/errors:
// ErrInvalidCredentials, ErrRefreshInvalid, ErrValidation, ErrUnauthorized
// (the access token was rejected) and ErrNetwork.
type API interface {
	ExchangeCredentials(ctx context.Context, email, password string) (TokenPair, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (TokenPair, error)
	FetchCurrentUser(ctx context.Context, accessToken string) (*users.Profile, error)
	CreateAccount(ctx context.Context, details users.RegistrationDetails) (*users.Profile, error)
}

// Revoker is implemented by identity APIs that can invalidate a refresh token server side
type Revoker interface {
	RevokeRefreshToken(ctx context.Context, refreshToken string) error
}
