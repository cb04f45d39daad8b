package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json"
	requestIDHeader = "X-Request-ID"

	// maxErrorBody caps how much of an error response is read for its message
	maxErrorBody = 64 << 10
)

// Client talks to the platform's SimpleJWT style identity endpoints over HTTP
type Client struct {
	baseURL    string
	paths      config.IdentityConfig
	httpClient *http.Client
}

var (
	_ API     = (*Client)(nil)
	_ Revoker = (*Client)(nil)
)

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient sets the http.Client used for identity calls. It must not
// carry the session retry transport, or a rejected refresh would recurse.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates an identity client for the backend at baseURL
func NewClient(baseURL string, paths config.IdentityConfig, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("[NewClient] baseURL is required")
	}
	if paths == nil {
		return nil, fmt.Errorf("[NewClient] identity config is required")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		paths:      paths,
		httpClient: http.DefaultClient,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// ExchangeCredentials trades email and password for an access/refresh pair
func (c *Client) ExchangeCredentials(ctx context.Context, email, password string) (TokenPair, error) {
	var pair TokenPair
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   c.paths.GetTokenPath(),
		body:   users.Credentials{Email: email, Password: password},
		out:    &pair,
		classify: func(status int) error {
			if status == http.StatusBadRequest || status == http.StatusUnauthorized {
				return errors.ErrInvalidCredentials
			}
			return errors.ErrNetwork
		},
		defaultMessage: defaultLoginMessage,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("[Client ExchangeCredentials] %w", err)
	}
	if pair.Access == "" {
		return TokenPair{}, fmt.Errorf("[Client ExchangeCredentials] no access token in response: %w", errors.ErrInvalidCredentials)
	}
	return pair, nil
}

// RefreshAccessToken mints a new access token from refreshToken
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	var pair TokenPair
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   c.paths.GetRefreshPath(),
		body:   map[string]string{"refresh": refreshToken},
		out:    &pair,
		classify: func(status int) error {
			if status == http.StatusBadRequest || status == http.StatusUnauthorized {
				return errors.ErrRefreshInvalid
			}
			return errors.ErrNetwork
		},
		defaultMessage: defaultRefreshMessage,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("[Client RefreshAccessToken] %w", err)
	}
	if pair.Access == "" {
		return TokenPair{}, fmt.Errorf("[Client RefreshAccessToken] no access token in response: %w", errors.ErrRefreshInvalid)
	}
	return pair, nil
}

// FetchCurrentUser returns the profile the access token belongs to
func (c *Client) FetchCurrentUser(ctx context.Context, accessToken string) (*users.Profile, error) {
	var profile users.Profile
	err := c.do(ctx, request{
		method:      http.MethodGet,
		path:        c.paths.GetCurrentUserPath(),
		accessToken: accessToken,
		out:         &profile,
		classify:    classifyStatus,
	})
	if err != nil {
		return nil, fmt.Errorf("[Client FetchCurrentUser] %w", err)
	}
	return &profile, nil
}

// CreateAccount registers a new user. It does not log the user in.
func (c *Client) CreateAccount(ctx context.Context, details users.RegistrationDetails) (*users.Profile, error) {
	var profile users.Profile
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   c.paths.GetRegisterPath(),
		body:   details,
		out:    &profile,
		classify: func(status int) error {
			if status == http.StatusBadRequest {
				return errors.ErrValidation
			}
			return errors.ErrNetwork
		},
		defaultMessage:  defaultRegisterMessage,
		preferredFields: []string{"confirm_password"},
	})
	if err != nil {
		return nil, fmt.Errorf("[Client CreateAccount] %w", err)
	}
	return &profile, nil
}

// RevokeRefreshToken blacklists refreshToken. It is a no-op when no revoke path is configured.
func (c *Client) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	path := c.paths.GetRevokePath()
	if path == "" {
		return nil
	}
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     path,
		body:     map[string]string{"refresh": refreshToken},
		classify: classifyStatus,
	})
	if err != nil {
		return fmt.Errorf("[Client RevokeRefreshToken] %w", err)
	}
	return nil
}

type request struct {
	method          string
	path            string
	accessToken     string
	body            any
	out             any
	classify        func(status int) error
	defaultMessage  string
	preferredFields []string
}

func (c *Client) do(ctx context.Context, r request) error {
	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", contentTypeJSON)
	if r.body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if r.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Str("request_id", requestID).Str("path", r.path).Err(err).Msg("identity request failed")
		return fmt.Errorf("%w: %w", errors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	log.Debug().Str("request_id", requestID).Str("method", r.method).Str("path", r.path).Int("status", resp.StatusCode).Msg("identity request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		classify := r.classify
		if classify == nil {
			classify = classifyStatus
		}
		message := extractMessage(data, r.preferredFields...)
		if message == "" {
			message = r.defaultMessage
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			kind:       classify(resp.StatusCode),
		}
	}

	if r.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil && err != io.EOF {
		return fmt.Errorf("%w: failed to decode response: %w", errors.ErrNetwork, err)
	}
	return nil
}
