package session_test

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/identity"
	fakeidentity "github.com/jrsteele09/go-auth-session/identity/fakeapi"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/tokenstore"
	faketokenstore "github.com/jrsteele09/go-auth-session/tokenstore/repofake"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	testUserEmail    = "u@x.com"
	testUserPassword = "p"
	concurrentCalls  = 20
)

type testSessionConfig struct {
	config.Session
	refreshTimeout time.Duration
}

func (c testSessionConfig) GetRefreshTimeout() time.Duration {
	if c.refreshTimeout > 0 {
		return c.refreshTimeout
	}
	return c.Session.GetRefreshTimeout()
}

// testFixture holds all test dependencies
type testFixture struct {
	api     *fakeidentity.FakeIdentityAPI
	store   *faketokenstore.FakeTokenStore
	manager *session.Manager
	profile users.Profile

	endedLock sync.Mutex
	ended     []error
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	return setupTestFixtureWithConfig(t, testSessionConfig{})
}

func setupTestFixtureWithConfig(t *testing.T, cfg config.SessionConfig) *testFixture {
	t.Helper()

	f := &testFixture{
		api:   fakeidentity.NewFakeIdentityAPI(),
		store: faketokenstore.NewFakeTokenStore(),
	}
	f.profile = f.api.AddUser(users.Profile{ID: 1, Email: testUserEmail, Username: "u"}, testUserPassword)

	m, err := session.NewManager(f.api, f.store, cfg, session.WithEndedHandler(func(reason error) {
		f.endedLock.Lock()
		defer f.endedLock.Unlock()
		f.ended = append(f.ended, reason)
	}))
	require.NoError(t, err)
	f.manager = m
	return f
}

func (f *testFixture) login(t *testing.T) *session.Session {
	t.Helper()
	s, err := f.manager.Login(context.Background(), users.Credentials{Email: testUserEmail, Password: testUserPassword})
	require.NoError(t, err)
	return s
}

func (f *testFixture) endedCount() int {
	f.endedLock.Lock()
	defer f.endedLock.Unlock()
	return len(f.ended)
}

func (f *testFixture) requireSlot(t *testing.T, slot tokenstore.Slot, want string) {
	t.Helper()
	got, err := f.store.Get(slot)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestNewManager_RequiredDependencies(t *testing.T) {
	api := fakeidentity.NewFakeIdentityAPI()
	store := faketokenstore.NewFakeTokenStore()

	_, err := session.NewManager(nil, store, config.Session{})
	require.Error(t, err)
	_, err = session.NewManager(api, nil, config.Session{})
	require.Error(t, err)
	_, err = session.NewManager(api, store, nil)
	require.Error(t, err)
}

func TestNewManager_RestoresStoredPair(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": expiry.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	store := faketokenstore.NewFakeTokenStore()
	require.NoError(t, store.Set(tokenstore.AccessSlot, access))
	require.NoError(t, store.Set(tokenstore.RefreshSlot, "R9"))

	m, err := session.NewManager(fakeidentity.NewFakeIdentityAPI(), store, config.Session{})
	require.NoError(t, err)
	require.True(t, m.IsAuthenticated())
	require.Equal(t, session.Authenticated, m.State())

	token := m.Token()
	require.Equal(t, access, token.AccessToken)
	require.Equal(t, "R9", token.RefreshToken)
	require.True(t, expiry.Equal(token.Expiry))
}

func TestNewManager_AccessWithoutRefreshIsAnonymous(t *testing.T) {
	store := faketokenstore.NewFakeTokenStore()
	require.NoError(t, store.Set(tokenstore.AccessSlot, "T9"))

	m, err := session.NewManager(fakeidentity.NewFakeIdentityAPI(), store, config.Session{})
	require.NoError(t, err)
	require.False(t, m.IsAuthenticated())
	require.Equal(t, session.Anonymous, m.State())
	require.Zero(t, store.Len())
}

func TestManager_Login(t *testing.T) {
	f := setupTestFixture(t)

	s := f.login(t)
	require.Equal(t, "T1", s.AccessToken())
	require.Equal(t, "R1", s.Token.RefreshToken)
	require.Equal(t, "Bearer", s.Token.Type())
	require.Equal(t, int64(1), s.User.ID)
	require.Equal(t, testUserEmail, s.User.Email)

	require.True(t, f.manager.IsAuthenticated())
	f.requireSlot(t, tokenstore.AccessSlot, "T1")
	f.requireSlot(t, tokenstore.RefreshSlot, "R1")
	require.Equal(t, testUserEmail, f.manager.CachedUser().Email)

	profile, err := f.manager.GetCurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, testUserEmail, profile.Email)
	require.Equal(t, 1, f.api.Calls(fakeidentity.MethodExchange))
	require.Zero(t, f.api.Calls(fakeidentity.MethodRefresh))
}

func TestManager_Login_ReplacesPreviousPair(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	s := f.login(t)

	require.Equal(t, "T2", s.AccessToken())
	f.requireSlot(t, tokenstore.AccessSlot, "T2")
	f.requireSlot(t, tokenstore.RefreshSlot, "R2")
}

func TestManager_Login_InvalidCredentials(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.Login(context.Background(), users.Credentials{Email: testUserEmail, Password: "wrong"})
	require.ErrorIs(t, err, errors.ErrInvalidCredentials)
	require.Equal(t, "No active account found with the given credentials", identity.DisplayMessage(err))
	require.False(t, f.manager.IsAuthenticated())
	require.Zero(t, f.store.Len())
}

func TestManager_Login_NetworkError(t *testing.T) {
	f := setupTestFixture(t)
	f.api.NetworkErr = stderrors.New("connection refused")

	_, err := f.manager.Login(context.Background(), users.Credentials{Email: testUserEmail, Password: testUserPassword})
	require.ErrorIs(t, err, errors.ErrNetwork)
	require.False(t, f.manager.IsAuthenticated())
}

func TestManager_Login_UserFetchFailureKeepsTokens(t *testing.T) {
	f := setupTestFixture(t)
	f.api.FetchErr = stderrors.New("profile service down")

	_, err := f.manager.Login(context.Background(), users.Credentials{Email: testUserEmail, Password: testUserPassword})
	require.Error(t, err)

	require.True(t, f.manager.IsAuthenticated())
	require.Equal(t, "T1", f.manager.Token().AccessToken)
	f.requireSlot(t, tokenstore.RefreshSlot, "R1")
	require.Nil(t, f.manager.CachedUser())
}

func TestManager_Register(t *testing.T) {
	t.Run("validation fails before any network call", func(t *testing.T) {
		f := setupTestFixture(t)

		_, err := f.manager.Register(context.Background(), users.RegistrationDetails{
			Username:        "new",
			Email:           "new@x.com",
			Password:        "a",
			ConfirmPassword: "b",
		})
		require.ErrorIs(t, err, errors.ErrValidation)
		require.Equal(t, "Passwords do not match", identity.DisplayMessage(err))
		require.Zero(t, f.api.TotalCalls())
	})

	t.Run("creates the account then logs in", func(t *testing.T) {
		f := setupTestFixture(t)

		s, err := f.manager.Register(context.Background(), users.RegistrationDetails{
			Username:        " new ",
			Email:           "new@x.com ",
			Password:        "pw",
			ConfirmPassword: "pw",
		})
		require.NoError(t, err)
		require.Equal(t, "new@x.com", s.User.Email)
		require.Equal(t, "new", s.User.Username)
		require.True(t, f.manager.IsAuthenticated())
		require.Equal(t, 1, f.api.Calls(fakeidentity.MethodCreate))
		require.Equal(t, 1, f.api.Calls(fakeidentity.MethodExchange))
	})

	t.Run("server side rejection", func(t *testing.T) {
		f := setupTestFixture(t)

		_, err := f.manager.Register(context.Background(), users.RegistrationDetails{
			Username:        "dup",
			Email:           testUserEmail,
			Password:        "pw",
			ConfirmPassword: "pw",
		})
		require.ErrorIs(t, err, errors.ErrValidation)
		require.False(t, f.manager.IsAuthenticated())
		require.Zero(t, f.api.Calls(fakeidentity.MethodExchange))
	})
}

func TestManager_GetCurrentUser_NoToken(t *testing.T) {
	f := setupTestFixture(t)

	profile, err := f.manager.GetCurrentUser(context.Background())
	require.NoError(t, err)
	require.Nil(t, profile)
	require.Zero(t, f.api.TotalCalls())
}

func TestManager_GetCurrentUser_RefreshesAndRetriesOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.api.ExpireAccess("T1")

	profile, err := f.manager.GetCurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, testUserEmail, profile.Email)

	require.Equal(t, "T2", f.manager.Token().AccessToken)
	require.Equal(t, "R1", f.manager.Token().RefreshToken)
	f.requireSlot(t, tokenstore.AccessSlot, "T2")
	require.Equal(t, 1, f.api.Calls(fakeidentity.MethodRefresh))
	require.Equal(t, 3, f.api.Calls(fakeidentity.MethodFetch))
	require.Equal(t, session.Authenticated, f.manager.State())
}

func TestManager_GetCurrentUser_StoresRotatedRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	f.api.RotateRefresh = true
	f.login(t)
	f.api.ExpireAccess("T1")

	_, err := f.manager.GetCurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "R2", f.manager.Token().RefreshToken)
	f.requireSlot(t, tokenstore.RefreshSlot, "R2")
}

func TestManager_GetCurrentUser_SecondUnauthorizedEndsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.api.RejectAccess = true

	profile, err := f.manager.GetCurrentUser(context.Background())
	require.Nil(t, profile)
	require.ErrorIs(t, err, errors.ErrUnauthenticated)
	require.ErrorIs(t, err, errors.ErrUnauthorized)

	require.False(t, f.manager.IsAuthenticated())
	require.Zero(t, f.store.Len())
	require.Nil(t, f.manager.CachedUser())
	require.Equal(t, 1, f.api.Calls(fakeidentity.MethodRefresh))
	// one fetch during login, then the original call and exactly one retry
	require.Equal(t, 3, f.api.Calls(fakeidentity.MethodFetch))
	require.Equal(t, 1, f.endedCount())
}

func TestManager_GetCurrentUser_RefreshInvalidEndsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.api.ExpireAccess("T1")
	f.api.RevokeRefresh("R1")

	_, err := f.manager.GetCurrentUser(context.Background())
	require.ErrorIs(t, err, errors.ErrUnauthenticated)
	require.ErrorIs(t, err, errors.ErrRefreshInvalid)

	require.False(t, f.manager.IsAuthenticated())
	require.Zero(t, f.store.Len())
	require.Equal(t, 1, f.endedCount())
}

func TestManager_GetCurrentUser_RefreshTimeoutKeepsSession(t *testing.T) {
	f := setupTestFixtureWithConfig(t, testSessionConfig{refreshTimeout: 20 * time.Millisecond})
	f.login(t)
	f.api.ExpireAccess("T1")
	f.api.RefreshGate = make(chan struct{})

	_, err := f.manager.GetCurrentUser(context.Background())
	require.ErrorIs(t, err, errors.ErrNetwork)
	require.NotErrorIs(t, err, errors.ErrUnauthenticated)

	require.True(t, f.manager.IsAuthenticated())
	require.Equal(t, "T1", f.manager.Token().AccessToken)
	require.Zero(t, f.endedCount())
}

func TestManager_GetCurrentUser_OtherErrorsKeepSession(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.api.FetchErr = stderrors.New("boom")

	_, err := f.manager.GetCurrentUser(context.Background())
	require.Error(t, err)
	require.True(t, f.manager.IsAuthenticated())
	require.Zero(t, f.api.Calls(fakeidentity.MethodRefresh))
}

func TestManager_Refresh_NoSession(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.Refresh(context.Background())
	require.ErrorIs(t, err, errors.ErrRefreshInvalid)
	require.Zero(t, f.api.Calls(fakeidentity.MethodRefresh))
}

func TestManager_Refresh_CallerCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := setupTestFixture(t)
	f.login(t)
	gate := make(chan struct{})
	f.api.RefreshGate = gate

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Refresh(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return f.manager.State() == session.Refreshing
	}, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// the shared refresh keeps running for other callers
	close(gate)
	token, err := f.manager.Refresh(context.Background())
	require.NoError(t, err)
	require.Contains(t, []string{"T2", "T3"}, token)
	require.Eventually(t, func() bool {
		return f.manager.State() == session.Authenticated
	}, time.Second, time.Millisecond)
}

func TestManager_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := setupTestFixture(t)
	f.login(t)
	f.api.ExpireAccess("T1")
	gate := make(chan struct{})
	f.api.RefreshGate = gate

	var (
		wg       sync.WaitGroup
		rejected atomic.Int32
		tokens   = make([]string, concurrentCalls)
		errs     = make([]error, concurrentCalls)
	)
	for i := 0; i < concurrentCalls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.manager.Do(context.Background(), func(ctx context.Context, accessToken string) error {
				_, err := f.api.FetchCurrentUser(ctx, accessToken)
				if errors.Is(err, errors.ErrUnauthorized) {
					rejected.Add(1)
				}
				tokens[i] = accessToken
				return err
			})
		}(i)
	}

	require.Eventually(t, func() bool {
		return rejected.Load() == concurrentCalls
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return f.manager.State() == session.Refreshing
	}, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, 1, f.api.Calls(fakeidentity.MethodRefresh))
	for i := 0; i < concurrentCalls; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "T2", tokens[i])
	}
	require.Equal(t, "T2", f.manager.Token().AccessToken)
}

func TestManager_ConcurrentUnauthorizedShareRefreshFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := setupTestFixture(t)
	f.login(t)
	f.api.ExpireAccess("T1")
	f.api.RevokeRefresh("R1")
	gate := make(chan struct{})
	f.api.RefreshGate = gate

	var (
		wg       sync.WaitGroup
		rejected atomic.Int32
		errs     = make([]error, concurrentCalls)
	)
	for i := 0; i < concurrentCalls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.manager.Do(context.Background(), func(ctx context.Context, accessToken string) error {
				_, err := f.api.FetchCurrentUser(ctx, accessToken)
				rejected.Add(1)
				return err
			})
		}(i)
	}

	require.Eventually(t, func() bool {
		return rejected.Load() == concurrentCalls
	}, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, 1, f.api.Calls(fakeidentity.MethodRefresh))
	for _, err := range errs {
		require.ErrorIs(t, err, errors.ErrUnauthenticated)
	}
	require.False(t, f.manager.IsAuthenticated())
	require.Equal(t, 1, f.endedCount())
	// no caller retried
	require.Equal(t, 1+concurrentCalls, f.api.Calls(fakeidentity.MethodFetch))
}

func TestManager_RefreshDoesNotOverwriteNewerLogin(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := setupTestFixture(t)
	f.login(t)
	f.api.ExpireAccess("T1")
	gate := make(chan struct{})
	f.api.RefreshGate = gate

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.GetCurrentUser(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.api.Calls(fakeidentity.MethodRefresh) == 1
	}, time.Second, time.Millisecond)

	s := f.login(t)
	require.Equal(t, "T2", s.AccessToken())
	close(gate)

	require.ErrorIs(t, <-done, errors.ErrUnauthenticated)
	require.True(t, f.manager.IsAuthenticated())
	require.Equal(t, "T2", f.manager.Token().AccessToken)
	require.Equal(t, "R2", f.manager.Token().RefreshToken)
	f.requireSlot(t, tokenstore.AccessSlot, "T2")
	require.Zero(t, f.endedCount())
}

func TestManager_Logout(t *testing.T) {
	t.Run("revokes the refresh token", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)

		f.manager.Logout(context.Background())
		require.False(t, f.manager.IsAuthenticated())
		require.Zero(t, f.store.Len())
		require.Nil(t, f.manager.CachedUser())
		require.False(t, f.api.IsRefreshValid("R1"))
		require.Zero(t, f.endedCount())
	})

	t.Run("clears local state when revocation fails", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.api.RevokeErr = stderrors.New("revocation endpoint down")

		f.manager.Logout(context.Background())
		require.False(t, f.manager.IsAuthenticated())
		require.Zero(t, f.store.Len())
		require.Equal(t, 1, f.api.Calls(fakeidentity.MethodRevoke))
	})

	t.Run("anonymous logout makes no network call", func(t *testing.T) {
		f := setupTestFixture(t)

		f.manager.Logout(context.Background())
		require.Zero(t, f.api.TotalCalls())
	})
}

func TestManager_AuthorizationHeader(t *testing.T) {
	f := setupTestFixture(t)

	_, ok := f.manager.AuthorizationHeader()
	require.False(t, ok)

	f.login(t)
	value, ok := f.manager.AuthorizationHeader()
	require.True(t, ok)
	require.Equal(t, "Bearer T1", value)
}

func TestManager_AttachCredentials(t *testing.T) {
	f := setupTestFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/notes/", nil)

	require.Empty(t, f.manager.AttachCredentials(req).Header.Get("Authorization"))

	f.login(t)
	out := f.manager.AttachCredentials(req)
	require.Equal(t, "Bearer T1", out.Header.Get("Authorization"))
	require.Empty(t, req.Header.Get("Authorization"))
}

func TestState_String(t *testing.T) {
	require.Equal(t, "anonymous", session.Anonymous.String())
	require.Equal(t, "authenticated", session.Authenticated.String())
	require.Equal(t, "refreshing", session.Refreshing.String())
}
