package fakeidentity

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/users"
)

var (
	_ identity.API     = (*FakeIdentityAPI)(nil)
	_ identity.Revoker = (*FakeIdentityAPI)(nil)
)

const (
	MethodExchange = "ExchangeCredentials"
	MethodRefresh  = "RefreshAccessToken"
	MethodFetch    = "FetchCurrentUser"
	MethodCreate   = "CreateAccount"
	MethodRevoke   = "RevokeRefreshToken"
)

type account struct {
	password string
	profile  users.Profile
}

// FakeIdentityAPI is an in-memory identity service. Access tokens are issued
// as T1, T2, ... and refresh tokens as R1, R2, ... in call order.
type FakeIdentityAPI struct {
	accounts map[string]*account // email to account
	access   map[string]string   // access token to email
	refresh  map[string]string   // refresh token to email
	calls    map[string]int
	nextID   int64
	accessN  int
	refreshN int
	lock     sync.Mutex

	// RefreshGate, when set, holds every refresh until it is closed or receives
	RefreshGate chan struct{}
	// RotateRefresh issues a new refresh token on every refresh
	RotateRefresh bool
	// RejectAccess makes every access token, including new ones, unauthorized
	RejectAccess bool
	// FetchErr, when set, fails FetchCurrentUser with this error for valid tokens
	FetchErr error
	// RevokeErr, when set, fails RevokeRefreshToken
	RevokeErr error
	// NetworkErr, when set, fails every call as a transport failure
	NetworkErr error
}

func NewFakeIdentityAPI() *FakeIdentityAPI {
	return &FakeIdentityAPI{
		accounts: make(map[string]*account),
		access:   make(map[string]string),
		refresh:  make(map[string]string),
		calls:    make(map[string]int),
	}
}

// AddUser registers an account directly. The profile's id is assigned when zero.
func (f *FakeIdentityAPI) AddUser(profile users.Profile, password string) users.Profile {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.addUser(profile, password)
}

func (f *FakeIdentityAPI) addUser(profile users.Profile, password string) users.Profile {
	if profile.ID == 0 {
		f.nextID++
		profile.ID = f.nextID
	}
	f.accounts[profile.Email] = &account{password: password, profile: profile}
	return profile
}

// ExpireAccess makes a previously issued access token unauthorized
func (f *FakeIdentityAPI) ExpireAccess(token string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.access, token)
}

// RevokeRefresh makes a previously issued refresh token invalid
func (f *FakeIdentityAPI) RevokeRefresh(token string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.refresh, token)
}

// IsRefreshValid reports whether the refresh token is still accepted
func (f *FakeIdentityAPI) IsRefreshValid(token string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, ok := f.refresh[token]
	return ok
}

// Calls returns how many times method was invoked
func (f *FakeIdentityAPI) Calls(method string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of calls across all methods
func (f *FakeIdentityAPI) TotalCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *FakeIdentityAPI) record(method string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls[method]++
	if f.NetworkErr != nil {
		return fmt.Errorf("%w: %w", errors.ErrNetwork, f.NetworkErr)
	}
	return nil
}

func (f *FakeIdentityAPI) issueAccess(email string) string {
	f.accessN++
	token := fmt.Sprintf("T%d", f.accessN)
	f.access[token] = email
	return token
}

func (f *FakeIdentityAPI) issueRefresh(email string) string {
	f.refreshN++
	token := fmt.Sprintf("R%d", f.refreshN)
	f.refresh[token] = email
	return token
}

func (f *FakeIdentityAPI) ExchangeCredentials(_ context.Context, email, password string) (identity.TokenPair, error) {
	if err := f.record(MethodExchange); err != nil {
		return identity.TokenPair{}, err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	acc, ok := f.accounts[email]
	if !ok || acc.password != password {
		return identity.TokenPair{}, identity.NewAPIError(401, "No active account found with the given credentials", errors.ErrInvalidCredentials)
	}
	return identity.TokenPair{
		Access:  f.issueAccess(email),
		Refresh: f.issueRefresh(email),
	}, nil
}

func (f *FakeIdentityAPI) RefreshAccessToken(ctx context.Context, refreshToken string) (identity.TokenPair, error) {
	if err := f.record(MethodRefresh); err != nil {
		return identity.TokenPair{}, err
	}

	if gate := f.RefreshGate; gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return identity.TokenPair{}, fmt.Errorf("%w: %w", errors.ErrNetwork, ctx.Err())
		}
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	email, ok := f.refresh[refreshToken]
	if !ok {
		return identity.TokenPair{}, fmt.Errorf("[FakeIdentityAPI RefreshAccessToken] token is invalid or expired: %w", errors.ErrRefreshInvalid)
	}
	pair := identity.TokenPair{Access: f.issueAccess(email)}
	if f.RotateRefresh {
		delete(f.refresh, refreshToken)
		pair.Refresh = f.issueRefresh(email)
	}
	return pair, nil
}

func (f *FakeIdentityAPI) FetchCurrentUser(_ context.Context, accessToken string) (*users.Profile, error) {
	if err := f.record(MethodFetch); err != nil {
		return nil, err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	email, ok := f.access[accessToken]
	if !ok || f.RejectAccess {
		return nil, fmt.Errorf("[FakeIdentityAPI FetchCurrentUser] given token not valid: %w", errors.ErrUnauthorized)
	}
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	profile := f.accounts[email].profile
	return &profile, nil
}

func (f *FakeIdentityAPI) CreateAccount(_ context.Context, details users.RegistrationDetails) (*users.Profile, error) {
	if err := f.record(MethodCreate); err != nil {
		return nil, err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if _, exists := f.accounts[details.Email]; exists {
		return nil, fmt.Errorf("[FakeIdentityAPI CreateAccount] user with this email already exists: %w", errors.ErrValidation)
	}
	profile := f.addUser(users.Profile{Email: details.Email, Username: details.Username}, details.Password)
	return &profile, nil
}

func (f *FakeIdentityAPI) RevokeRefreshToken(_ context.Context, refreshToken string) error {
	if err := f.record(MethodRevoke); err != nil {
		return err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if f.RevokeErr != nil {
		return f.RevokeErr
	}
	delete(f.refresh, refreshToken)
	return nil
}

// AccessTokenValid reports whether the fake would accept token on an authenticated call
func (f *FakeIdentityAPI) AccessTokenValid(token string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, ok := f.access[token]
	return ok && !f.RejectAccess
}
