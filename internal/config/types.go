// internal/config/types.go
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
// Bare integers are read as seconds (validation_timeout: 300).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		var secs int64
		if _, scanErr := fmt.Sscanf(s, "%d", &secs); scanErr != nil || fmt.Sprint(secs) != s {
			return err
		}
		parsed = time.Duration(secs) * time.Second
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret holds an API key or token. It prints and marshals redacted; call
// Value to read it.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the raw secret.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether the secret is non-empty.
func (s Secret) IsSet() bool {
	return s != ""
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
