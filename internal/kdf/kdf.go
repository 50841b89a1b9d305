// Package kdf models the two supported password key-derivation functions and
// their validated parameters.
package kdf

import (
	"fmt"
)

// Type identifies a KDF algorithm on the wire.
type Type int

const (
	PBKDF2SHA256 Type = 0
	Argon2id     Type = 1
)

func (t Type) String() string {
	switch t {
	case PBKDF2SHA256:
		return "PBKDF2-SHA256"
	case Argon2id:
		return "Argon2id"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Range is an inclusive bound on a tunable parameter with a recommended default.
type Range struct {
	Min     int
	Max     int
	Default int
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

var (
	PBKDF2Iterations  = Range{Min: 5_000, Max: 2_000_000, Default: 600_000}
	Argon2Iterations  = Range{Min: 2, Max: 10, Default: 3}
	Argon2MemoryMiB   = Range{Min: 16, Max: 1024, Default: 64}
	Argon2Parallelism = Range{Min: 1, Max: 16, Default: 4}
)

// Config is an immutable KDF configuration. It is implemented only by
// PBKDF2Config and Argon2Config.
type Config interface {
	Type() Type
	Validate() error
	DerivationParameters() Parameters
	isConfig()
}

// Parameters is the flat projection of a Config handed to the primitives.
// MemoryMiB and Parallelism are zero for PBKDF2.
type Parameters struct {
	Algorithm   Type
	Iterations  int
	MemoryMiB   int
	Parallelism int
}

// PBKDF2Config configures PBKDF2-HMAC-SHA256.
type PBKDF2Config struct {
	iterations int
}

// NewPBKDF2Config validates and returns a PBKDF2 configuration.
func NewPBKDF2Config(iterations int) (PBKDF2Config, error) {
	c := PBKDF2Config{iterations: iterations}
	if err := c.Validate(); err != nil {
		return PBKDF2Config{}, err
	}
	return c, nil
}

// DefaultPBKDF2Config returns the recommended PBKDF2 configuration.
func DefaultPBKDF2Config() PBKDF2Config {
	return PBKDF2Config{iterations: PBKDF2Iterations.Default}
}

func (c PBKDF2Config) Type() Type      { return PBKDF2SHA256 }
func (c PBKDF2Config) Iterations() int { return c.iterations }
func (PBKDF2Config) isConfig()         {}

// Validate enforces the iteration bounds. Values below the minimum are
// rejected rather than clamped.
func (c PBKDF2Config) Validate() error {
	if !PBKDF2Iterations.Contains(c.iterations) {
		return validationf("iterations", "PBKDF2 iterations must be between %d and %d", PBKDF2Iterations.Min, PBKDF2Iterations.Max)
	}
	return nil
}

func (c PBKDF2Config) DerivationParameters() Parameters {
	return Parameters{Algorithm: PBKDF2SHA256, Iterations: c.iterations}
}

// Argon2Config configures Argon2id. All three parameters are mandatory.
type Argon2Config struct {
	iterations  int
	memoryMiB   int
	parallelism int
}

// NewArgon2Config validates and returns an Argon2id configuration.
func NewArgon2Config(iterations, memoryMiB, parallelism int) (Argon2Config, error) {
	c := Argon2Config{iterations: iterations, memoryMiB: memoryMiB, parallelism: parallelism}
	if err := c.Validate(); err != nil {
		return Argon2Config{}, err
	}
	return c, nil
}

// DefaultArgon2Config returns the recommended Argon2id configuration.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		iterations:  Argon2Iterations.Default,
		memoryMiB:   Argon2MemoryMiB.Default,
		parallelism: Argon2Parallelism.Default,
	}
}

func (c Argon2Config) Type() Type       { return Argon2id }
func (c Argon2Config) Iterations() int  { return c.iterations }
func (c Argon2Config) MemoryMiB() int   { return c.memoryMiB }
func (c Argon2Config) Parallelism() int { return c.parallelism }
func (Argon2Config) isConfig()          {}

func (c Argon2Config) Validate() error {
	if !Argon2Iterations.Contains(c.iterations) {
		return validationf("iterations", "Argon2 iterations must be between %d and %d", Argon2Iterations.Min, Argon2Iterations.Max)
	}
	if !Argon2MemoryMiB.Contains(c.memoryMiB) {
		return validationf("memory", "Argon2 memory must be between %dMiB and %dMiB", Argon2MemoryMiB.Min, Argon2MemoryMiB.Max)
	}
	if !Argon2Parallelism.Contains(c.parallelism) {
		return validationf("parallelism", "Argon2 parallelism must be between %d and %d", Argon2Parallelism.Min, Argon2Parallelism.Max)
	}
	return nil
}

func (c Argon2Config) DerivationParameters() Parameters {
	return Parameters{
		Algorithm:   Argon2id,
		Iterations:  c.iterations,
		MemoryMiB:   c.memoryMiB,
		Parallelism: c.parallelism,
	}
}

// Equal reports whether two configurations describe the same derivation.
func Equal(a, b Config) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.DerivationParameters() == b.DerivationParameters()
}
