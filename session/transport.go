package session

import (
	"context"
	"io"
	"net/http"

	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/rs/zerolog/log"
)

// Transport is an http.RoundTripper that attaches the session's bearer token
// and applies the Do retry policy to 401 responses. When the policy cannot
// recover, the caller receives the last 401 response unchanged.
//
// Requests with a body that cannot be replayed (no GetBody) are sent once. A
// 401 for one still refreshes the session so the next request succeeds.
type Transport struct {
	// Base issues the requests. http.DefaultTransport when nil.
	Base    http.RoundTripper
	Manager *Manager
}

var _ http.RoundTripper = (*Transport)(nil)

// NewHTTPClient returns an http.Client whose requests go through the session's Transport
func NewHTTPClient(m *Manager, base http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: &Transport{Base: base, Manager: m},
		Timeout:   m.config.GetRequestTimeout(),
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !replayable(req) {
		return t.sendOnce(req)
	}

	var (
		resp    *http.Response
		attempt int
	)
	err := t.Manager.Do(req.Context(), func(ctx context.Context, accessToken string) error {
		attempt++
		if resp != nil {
			discard(resp)
			resp = nil
		}

		out := withAccessToken(req, accessToken)
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return err
			}
			out.Body = body
		}

		r, err := t.base().RoundTrip(out)
		if err != nil {
			return err
		}
		resp = r
		if r.StatusCode == http.StatusUnauthorized {
			return errors.ErrUnauthorized
		}
		return nil
	})

	if resp != nil && resp.StatusCode == http.StatusUnauthorized {
		return resp, nil
	}
	if err != nil {
		if resp != nil {
			discard(resp)
		}
		return nil, err
	}
	return resp, nil
}

func (t *Transport) sendOnce(req *http.Request) (*http.Response, error) {
	accessToken := t.Manager.accessToken()
	resp, err := t.base().RoundTrip(withAccessToken(req, accessToken))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || accessToken == "" {
		return resp, err
	}

	if _, refreshErr := t.Manager.refreshAfter(req.Context(), accessToken); refreshErr != nil {
		log.Debug().Err(refreshErr).Msg("refresh after unauthorized non-replayable request failed")
	}
	return resp, nil
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
