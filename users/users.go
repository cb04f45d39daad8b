package users

import (
	"strings"
	"time"
)

// Profile is the identity snapshot returned by the current-user endpoint.
// It is cached by the session manager and is not authoritative.
type Profile struct {
	ID          int64     `json:"id"`                     // Backend user id
	Email       string    `json:"email,omitempty"`        // User's email address, also the login name
	Username    string    `json:"username,omitempty"`     // Display name
	FirstName   string    `json:"first_name,omitempty"`   // First name of the user
	LastName    string    `json:"last_name,omitempty"`    // Last name of the user
	Bio         string    `json:"bio,omitempty"`          // Free text profile bio
	PhoneNumber string    `json:"phone_number,omitempty"` // Optional phone number
	Avatar      string    `json:"avatar,omitempty"`       // Avatar image URL
	DateJoined  time.Time `json:"date_joined,omitempty"`  // Date and time when the user registered
}

// DisplayName returns the best human readable name for the profile
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	if full := strings.TrimSpace(p.FirstName + " " + p.LastName); full != "" {
		return full
	}
	if p.Username != "" {
		return p.Username
	}
	return p.Email
}

// Credentials are exchanged for a token pair. Email is the login name.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegistrationDetails is the payload for creating an account
type RegistrationDetails struct {
	Username        string `json:"username"         validate:"required"`
	Email           string `json:"email"            validate:"required,email"`
	Password        string `json:"password"         validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"eqfield=Password"`
}

// Credentials returns the login credentials for a freshly registered account
func (d RegistrationDetails) Credentials() Credentials {
	return Credentials{Email: d.Email, Password: d.Password}
}

// Normalized returns a copy with surrounding whitespace removed from the name fields
func (d RegistrationDetails) Normalized() RegistrationDetails {
	d.Username = strings.TrimSpace(d.Username)
	d.Email = strings.TrimSpace(d.Email)
	return d
}
