package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/users"
)

const (
	defaultLoginMessage    = "Login failed. Please check your credentials."
	defaultRegisterMessage = "Registration failed. Please try again."
	defaultRefreshMessage  = "Session expired. Please log in again."
)

// APIError is a non-2xx response from the identity API. Error returns a
// message fit for display; errors.Is matches the classification sentinel.
type APIError struct {
	StatusCode int
	Message    string
	kind       error
}

// NewAPIError builds an APIError that errors.Is matches against kind
func NewAPIError(statusCode int, message string, kind error) *APIError {
	return &APIError{StatusCode: statusCode, Message: message, kind: kind}
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// classifyStatus is the default mapping used for authenticated calls
func classifyStatus(status int) error {
	if status == http.StatusUnauthorized {
		return errors.ErrUnauthorized
	}
	return errors.ErrNetwork
}

// structured message fields, checked before any field-level message
var messageFields = []string{"detail", "message", "error"}

type jsonField struct {
	key   string
	value json.RawMessage
}

// extractMessage pulls a display message out of an error body. Structured
// fields win, then the preferred fields, then the first field-level message
// in document order.
func extractMessage(body []byte, preferred ...string) string {
	fields, err := orderedFields(body)
	if err != nil {
		return ""
	}

	for _, key := range append(append([]string{}, messageFields...), preferred...) {
		for _, f := range fields {
			if f.key != key {
				continue
			}
			if msg := firstMessage(f.value); msg != "" {
				return msg
			}
		}
	}

	for _, f := range fields {
		if msg := firstMessage(f.value); msg != "" {
			return msg
		}
	}
	return ""
}

// orderedFields decodes a JSON object keeping key order, which maps lose
func orderedFields(data []byte) ([]jsonField, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("not a JSON object")
	}

	var fields []jsonField
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		fields = append(fields, jsonField{key: key, value: raw})
	}
	return fields, nil
}

func firstMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if msg := firstMessage(item); msg != "" {
				return msg
			}
		}
		return ""
	}

	fields, err := orderedFields(raw)
	if err != nil {
		return ""
	}
	for _, f := range fields {
		if msg := firstMessage(f.value); msg != "" {
			return msg
		}
	}
	return ""
}

// DisplayMessage returns the text a user interface should show for err:
// the server's message for API errors, the field message for validation
// failures, and the error text otherwise.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	var validationErr *users.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}
	return err.Error()
}
