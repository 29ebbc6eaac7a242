package gdrive

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCredentials is returned when the service account credentials
// can't be decoded.
var ErrInvalidCredentials = errors.New("invalid service account credentials")

// DecodeCredentials decodes base64-encoded service account JSON, as
// exported from the Google Cloud console and stored as a secret.
// Surrounding whitespace is ignored. The decoded JSON is returned as-is.
func DecodeCredentials(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: credentials are empty", ErrInvalidCredentials)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: error decoding base64: %s", ErrInvalidCredentials, err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(decoded, &fields); err != nil {
		return nil, fmt.Errorf("%w: %s is not valid JSON: %s", ErrInvalidCredentials, truncate(decoded), err)
	}
	if t, _ := fields["type"].(string); t != "" && t != "service_account" {
		return nil, fmt.Errorf("%w: expected type %q, got %q", ErrInvalidCredentials, "service_account", t)
	}
	return decoded, nil
}

// truncate keeps error messages from echoing whole secrets.
func truncate(b []byte) string {
	const max = 8
	if len(b) <= max {
		return fmt.Sprintf("%q", b)
	}
	return fmt.Sprintf("%q...", b[:max])
}
