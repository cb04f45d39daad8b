package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractMessage(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		preferred []string
		want      string
	}{
		{name: "detail", body: `{"code":"x","detail":"Token is invalid"}`, want: "Token is invalid"},
		{name: "message before fields", body: `{"email":["bad"],"message":"Nope"}`, want: "Nope"},
		{name: "error field", body: `{"error":"Old password is incorrect"}`, want: "Old password is incorrect"},
		{name: "preferred field", body: `{"email":["taken"],"confirm_password":["mismatch"]}`, preferred: []string{"confirm_password"}, want: "mismatch"},
		{name: "first field in document order", body: `{"username":["required"],"email":["taken"]}`, want: "required"},
		{name: "non field errors", body: `{"non_field_errors":["Passwords do not match"]}`, want: "Passwords do not match"},
		{name: "nested object", body: `{"profile":{"avatar":["too big"]}}`, want: "too big"},
		{name: "empty list skipped", body: `{"a":[],"b":["second"]}`, want: "second"},
		{name: "not json", body: `<html></html>`, want: ""},
		{name: "array body", body: `["x"]`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, extractMessage([]byte(tt.body), tt.preferred...))
		})
	}
}
