package config

import "encoding/json"

// Secret wraps strings that must never appear in logs or serialized
// output. Use Value() to read the real value.
type Secret string

// String implements fmt.Stringer, always redacted.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a value is present.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON always emits the redacted form.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

// MarshalText always emits the redacted form.
func (s Secret) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(""), nil
	}
	return []byte("[REDACTED]"), nil
}

// MarshalYAML always emits the redacted form.
func (s Secret) MarshalYAML() (interface{}, error) {
	if s == "" {
		return "", nil
	}
	return "[REDACTED]", nil
}

// UnmarshalText accepts raw secret values from YAML and env vars.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
