package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/tokenstore"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const currentUserKey = "current"

// EndedHandler is told when the session is torn down because it could not be
// recovered (refresh rejected, or unauthorized again after a refresh). The
// application should route the user to its login entry point.
type EndedHandler func(reason error)

// Manager owns the access/refresh token pair. It is the only writer of the
// token store; everything else reads the pair through it.
type Manager struct {
	api     identity.API
	store   tokenstore.Store
	config  config.SessionConfig
	users   *ttlcache.Cache[string, *users.Profile]
	flight  singleflight.Group
	onEnded EndedHandler

	lock       sync.RWMutex
	token      *oauth2.Token // mirror of the store, nil when anonymous
	generation uint64        // bumped whenever the pair is replaced or cleared
	refreshing bool
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithEndedHandler registers the callback run after an unrecoverable auth failure
func WithEndedHandler(handler EndedHandler) ManagerOption {
	return func(m *Manager) {
		m.onEnded = handler
	}
}

// NewManager creates a session manager and restores any token pair already in store.
// A stored access token without a refresh token is discarded.
func NewManager(
	api identity.API,
	store tokenstore.Store,
	cfg config.SessionConfig,
	options ...ManagerOption,
) (*Manager, error) {
	if api == nil {
		return nil, fmt.Errorf("[NewManager] identity API is required")
	}
	if store == nil {
		return nil, fmt.Errorf("[NewManager] token store is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("[NewManager] session config is required")
	}

	m := &Manager{
		api:    api,
		store:  store,
		config: cfg,
		users: ttlcache.New(
			ttlcache.WithTTL[string, *users.Profile](cfg.GetUserSnapshotTTL()),
			ttlcache.WithDisableTouchOnHit[string, *users.Profile](),
		),
	}
	for _, opt := range options {
		opt(m)
	}

	access, err := readSlot(store, tokenstore.AccessSlot)
	if err != nil {
		return nil, fmt.Errorf("[NewManager] %w", err)
	}
	refresh, err := readSlot(store, tokenstore.RefreshSlot)
	if err != nil {
		return nil, fmt.Errorf("[NewManager] %w", err)
	}

	switch {
	case refresh != "":
		m.token = newToken(access, refresh)
		log.Debug().Msg("restored session from token store")
	case access != "":
		if err := store.Delete(tokenstore.AccessSlot); err != nil {
			log.Warn().Err(err).Msg("failed to drop access token without refresh token")
		}
	}

	return m, nil
}

func readSlot(store tokenstore.Store, slot tokenstore.Slot) (string, error) {
	value, err := store.Get(slot)
	if errors.Is(err, errors.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", slot)
	}
	return value, nil
}

// Login exchanges credentials for a token pair and fetches the current user.
// When the user fetch fails after a successful exchange, the tokens are kept
// and the error is returned.
func (m *Manager) Login(ctx context.Context, creds users.Credentials) (*Session, error) {
	pair, err := m.api.ExchangeCredentials(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, fmt.Errorf("[Manager Login] %w", err)
	}

	token, gen, err := m.establish(pair)
	if err != nil {
		return nil, fmt.Errorf("[Manager Login] %w", err)
	}

	profile, err := m.api.FetchCurrentUser(ctx, token.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("logged in but failed to fetch current user, keeping tokens")
		return nil, fmt.Errorf("[Manager Login] failed to fetch current user: %w", err)
	}
	m.cacheUser(gen, profile)

	log.Debug().Int64("user_id", profile.ID).Msg("logged in")
	return &Session{Token: copyToken(token), User: profile}, nil
}

// Register validates details locally, creates the account and logs in with it
func (m *Manager) Register(ctx context.Context, details users.RegistrationDetails) (*Session, error) {
	details = details.Normalized()
	if err := details.Validate(); err != nil {
		return nil, fmt.Errorf("[Manager Register] %w", err)
	}

	if _, err := m.api.CreateAccount(ctx, details); err != nil {
		return nil, fmt.Errorf("[Manager Register] %w", err)
	}

	s, err := m.Login(ctx, details.Credentials())
	if err != nil {
		return nil, fmt.Errorf("[Manager Register] %w", err)
	}
	return s, nil
}

// Logout clears the token pair and cached user. Local state is always cleared;
// revoking the refresh token server side is best-effort.
func (m *Manager) Logout(ctx context.Context) {
	m.lock.Lock()
	var refreshToken string
	if m.token != nil {
		refreshToken = m.token.RefreshToken
	}
	m.clearLocked()
	m.lock.Unlock()

	log.Debug().Msg("logged out")

	if refreshToken == "" {
		return
	}
	if revoker, ok := m.api.(identity.Revoker); ok {
		if err := revoker.RevokeRefreshToken(ctx, refreshToken); err != nil {
			log.Warn().Err(err).Msg("failed to revoke refresh token")
		}
	}
}

// GetCurrentUser fetches the profile for the held access token, refreshing and
// retrying once on unauthorized. It returns nil, nil when there is no access token.
func (m *Manager) GetCurrentUser(ctx context.Context) (*users.Profile, error) {
	if _, ok := m.AuthorizationHeader(); !ok {
		return nil, nil
	}
	gen := m.currentGeneration()

	var profile *users.Profile
	err := m.Do(ctx, func(ctx context.Context, accessToken string) error {
		p, err := m.api.FetchCurrentUser(ctx, accessToken)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("[Manager GetCurrentUser] %w", err)
	}

	m.cacheUser(gen, profile)
	return profile, nil
}

// CachedUser returns the last fetched profile while it is still fresh, otherwise nil
func (m *Manager) CachedUser() *users.Profile {
	item := m.users.Get(currentUserKey)
	if item == nil {
		return nil
	}
	return item.Value()
}

// State reports the current lifecycle state
func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if m.token == nil || m.token.RefreshToken == "" {
		return Anonymous
	}
	if m.refreshing {
		return Refreshing
	}
	return Authenticated
}

func (m *Manager) IsAuthenticated() bool {
	return m.State() != Anonymous
}

// Token returns a copy of the held token pair, or nil when anonymous
func (m *Manager) Token() *oauth2.Token {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return copyToken(m.token)
}

// AuthorizationHeader decides the Authorization header value for an outgoing
// request. ok is false when no access token is held.
func (m *Manager) AuthorizationHeader() (value string, ok bool) {
	token := m.Token()
	if token == nil || token.AccessToken == "" {
		return "", false
	}
	return token.Type() + " " + token.AccessToken, true
}

// AttachCredentials returns a clone of req carrying the bearer header when an
// access token is held. req itself is not modified.
func (m *Manager) AttachCredentials(req *http.Request) *http.Request {
	return withAccessToken(req, m.accessToken())
}

func withAccessToken(req *http.Request, accessToken string) *http.Request {
	out := req.Clone(req.Context())
	if accessToken != "" {
		(&oauth2.Token{AccessToken: accessToken, TokenType: tokenTypeBearer}).SetAuthHeader(out)
	}
	return out
}

func (m *Manager) accessToken() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return accessTokenOf(m.token)
}

func accessTokenOf(token *oauth2.Token) string {
	if token == nil {
		return ""
	}
	return token.AccessToken
}

func (m *Manager) currentGeneration() uint64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.generation
}

// establish persists a freshly issued pair, replacing any previous one
func (m *Manager) establish(pair identity.TokenPair) (*oauth2.Token, uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.clearLocked()

	if err := m.store.Set(tokenstore.AccessSlot, pair.Access); err != nil {
		m.clearLocked()
		return nil, 0, fmt.Errorf("failed to store access token: %w", err)
	}
	if err := m.store.Set(tokenstore.RefreshSlot, pair.Refresh); err != nil {
		m.clearLocked()
		return nil, 0, fmt.Errorf("failed to store refresh token: %w", err)
	}

	m.token = newToken(pair.Access, pair.Refresh)
	return m.token, m.generation, nil
}

// clearLocked drops the pair and cached user. Caller holds the lock.
func (m *Manager) clearLocked() {
	for _, slot := range []tokenstore.Slot{tokenstore.AccessSlot, tokenstore.RefreshSlot} {
		if err := m.store.Delete(slot); err != nil {
			log.Warn().Err(err).Str("slot", string(slot)).Msg("failed to clear token slot")
		}
	}
	m.token = nil
	m.generation++
	m.users.DeleteAll()
}

// endSession tears the session down after an unrecoverable auth failure,
// unless the pair has already been replaced since gen was observed.
func (m *Manager) endSession(gen uint64, reason error) {
	m.lock.Lock()
	if m.generation != gen || m.token == nil {
		m.lock.Unlock()
		return
	}
	m.clearLocked()
	m.lock.Unlock()

	log.Error().Err(reason).Msg("session ended")
	if m.onEnded != nil {
		m.onEnded(reason)
	}
}

func (m *Manager) cacheUser(gen uint64, profile *users.Profile) {
	if profile == nil {
		return
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.generation != gen || m.token == nil {
		return
	}
	m.users.Set(currentUserKey, profile, ttlcache.DefaultTTL)
}
