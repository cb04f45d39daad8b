package session

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-session/internal/errors"
)

// AuthorizedCall performs one authenticated request with accessToken, which is
// empty when no session is held. It reports a rejected token by returning an
// error wrapping errors.ErrUnauthorized.
type AuthorizedCall func(ctx context.Context, accessToken string) error

// Do runs call with the held access token. If the token is rejected, Do
// refreshes (sharing any refresh already in flight) and retries exactly once.
// A second rejection ends the session; the error wraps both
// errors.ErrUnauthenticated and the call's own error. Calls made without a
// token are never retried.
func (m *Manager) Do(ctx context.Context, call AuthorizedCall) error {
	m.lock.RLock()
	accessToken := accessTokenOf(m.token)
	gen := m.generation
	m.lock.RUnlock()

	err := call(ctx, accessToken)
	if accessToken == "" || !errors.Is(err, errors.ErrUnauthorized) {
		return err
	}

	refreshed, refreshErr := m.refreshAfter(ctx, accessToken)
	if refreshErr != nil {
		if errors.Is(refreshErr, errors.ErrRefreshInvalid) || errors.Is(refreshErr, errors.ErrUnauthenticated) {
			return fmt.Errorf("[Manager Do] %w: %w: %w", errors.ErrUnauthenticated, refreshErr, err)
		}
		return fmt.Errorf("[Manager Do] refresh failed: %w: %w", refreshErr, err)
	}

	err = call(ctx, refreshed)
	if errors.Is(err, errors.ErrUnauthorized) {
		m.endSession(gen, err)
		return fmt.Errorf("[Manager Do] %w: rejected after refresh: %w", errors.ErrUnauthenticated, err)
	}
	return err
}
