package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/users"
	"golang.org/x/oauth2"
)

const tokenTypeBearer = "Bearer"

// Session is the result of a successful login or registration
type Session struct {
	Token *oauth2.Token
	User  *users.Profile
}

// AccessToken returns the bearer credential, or "" for a nil session
func (s *Session) AccessToken() string {
	if s == nil || s.Token == nil {
		return ""
	}
	return s.Token.AccessToken
}

func newToken(access, refresh string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		Expiry:       accessExpiry(access),
	}
}

// accessExpiry reads the exp claim of a JWT access token without verifying it.
// The value is informational; it never triggers a refresh. Opaque tokens yield zero.
func accessExpiry(access string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func copyToken(t *oauth2.Token) *oauth2.Token {
	if t == nil {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}
