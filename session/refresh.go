package session

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/tokenstore"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// Refresh mints a new access token from the held refresh token. At most one
// refresh is in flight; callers arriving while it runs share its outcome.
// A rejected refresh token ends the session.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	return m.await(ctx, m.startRefresh(ctx))
}

// refreshAfter returns an access token newer than stale, starting or joining
// the shared refresh only if the held token is still stale. The check and the
// join happen under the lock, and a refresh stores its token before leaving
// the flight, so a caller either sees the new token or joins the flight.
//
// A flight that has stored its token still holds the key until it publishes
// its result. A caller rejected with that new token can join it there and get
// stale back; the key is released by then, so it joins once more.
func (m *Manager) refreshAfter(ctx context.Context, stale string) (string, error) {
	token, err := m.joinRefresh(ctx, stale)
	if err == nil && token == stale {
		log.Debug().Msg("joined a refresh that issued the rejected token, refreshing again")
		token, err = m.joinRefresh(ctx, stale)
	}
	return token, err
}

func (m *Manager) joinRefresh(ctx context.Context, stale string) (string, error) {
	m.lock.Lock()
	current := accessTokenOf(m.token)
	if current != stale {
		m.lock.Unlock()
		if current == "" {
			return "", fmt.Errorf("[Manager refreshAfter] session ended: %w", errors.ErrUnauthenticated)
		}
		return current, nil
	}
	ch := m.startRefresh(ctx)
	m.lock.Unlock()

	return m.await(ctx, ch)
}

// startRefresh runs the shared refresh detached from the caller's
// cancellation so one caller giving up does not fail the others.
func (m *Manager) startRefresh(ctx context.Context) <-chan singleflight.Result {
	detached := context.WithoutCancel(ctx)
	return m.flight.DoChan(refreshKey, func() (any, error) {
		return m.doRefresh(detached)
	})
}

func (m *Manager) await(ctx context.Context, ch <-chan singleflight.Result) (string, error) {
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("[Manager Refresh] %w", ctx.Err())
	}
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	m.lock.Lock()
	if m.token == nil || m.token.RefreshToken == "" {
		m.lock.Unlock()
		return "", fmt.Errorf("[Manager Refresh] no refresh token held: %w", errors.ErrRefreshInvalid)
	}
	refreshToken := m.token.RefreshToken
	gen := m.generation
	m.refreshing = true
	m.lock.Unlock()

	defer m.setRefreshing(false)

	ctx, cancel := context.WithTimeout(ctx, m.config.GetRefreshTimeout())
	defer cancel()

	pair, err := m.api.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, errors.ErrRefreshInvalid) {
			m.endSession(gen, err)
		} else {
			log.Warn().Err(err).Msg("token refresh failed, session kept")
		}
		return "", fmt.Errorf("[Manager Refresh] %w", err)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if m.generation != gen || m.token == nil {
		return "", fmt.Errorf("[Manager Refresh] session replaced during refresh: %w", errors.ErrUnauthenticated)
	}

	if pair.Refresh != "" {
		refreshToken = pair.Refresh
	}
	if err := m.store.Set(tokenstore.AccessSlot, pair.Access); err != nil {
		log.Warn().Err(err).Msg("failed to persist refreshed access token")
	}
	if pair.Refresh != "" {
		if err := m.store.Set(tokenstore.RefreshSlot, pair.Refresh); err != nil {
			log.Warn().Err(err).Msg("failed to persist rotated refresh token")
		}
	}
	m.token = newToken(pair.Access, refreshToken)

	log.Debug().Bool("rotated", pair.Refresh != "").Msg("access token refreshed")
	return pair.Access, nil
}

func (m *Manager) setRefreshing(refreshing bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.refreshing = refreshing
}
