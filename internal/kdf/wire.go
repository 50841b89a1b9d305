package kdf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ValidationError reports a malformed or out-of-range KDF parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid kdf config: " + e.Reason
	}
	return fmt.Sprintf("invalid kdf config (%s): %s", e.Field, e.Reason)
}

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Wire is the server representation of a KDF configuration. Fields are kept
// raw so that missing and non-numeric values can be told apart from zero.
type Wire struct {
	KdfType     json.RawMessage `json:"kdfType,omitempty"`
	Iterations  json.RawMessage `json:"iterations,omitempty"`
	Memory      json.RawMessage `json:"memory,omitempty"`
	Parallelism json.RawMessage `json:"parallelism,omitempty"`
}

// Parse converts the wire form into a validated Config. Missing or non-numeric
// fields are hard failures; no defaults are substituted.
func Parse(w Wire) (Config, error) {
	raw, err := intField("kdfType", w.KdfType)
	if err != nil {
		return nil, err
	}
	iterations, err := intField("iterations", w.Iterations)
	if err != nil {
		return nil, err
	}

	switch Type(raw) {
	case PBKDF2SHA256:
		return NewPBKDF2Config(iterations)
	case Argon2id:
		memory, err := intField("memory", w.Memory)
		if err != nil {
			return nil, err
		}
		parallelism, err := intField("parallelism", w.Parallelism)
		if err != nil {
			return nil, err
		}
		return NewArgon2Config(iterations, memory, parallelism)
	default:
		return nil, validationf("kdfType", "unrecognized kdf type %d", raw)
	}
}

// ParseJSON decodes data as a Wire value and parses it.
func ParseJSON(data []byte) (Config, error) {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &ValidationError{Reason: "malformed json"}
	}
	return Parse(w)
}

// ToWire renders a Config in its wire form.
func ToWire(c Config) Wire {
	p := c.DerivationParameters()
	w := Wire{
		KdfType:    number(int(p.Algorithm)),
		Iterations: number(p.Iterations),
	}
	if p.Algorithm == Argon2id {
		w.Memory = number(p.MemoryMiB)
		w.Parallelism = number(p.Parallelism)
	}
	return w
}

// MarshalConfig encodes a Config as wire JSON.
func MarshalConfig(c Config) ([]byte, error) {
	return json.Marshal(ToWire(c))
}

func intField(name string, raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, validationf(name, "%s is required", name)
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, validationf(name, "%s must be an integer", name)
	}
	return v, nil
}

func number(v int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(v))
}
