// Package keys implements the key hierarchy: password-derived master and PIN
// keys, the user key that protects the vault, and the EncString envelope used
// to wrap one key with another.
package keys

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Hussein-Mazeh/vaultlock/krypto"
)

// ErrInvalidKey is returned when raw key material has an unsupported length.
var ErrInvalidKey = errors.New("invalid key length")

// SymmetricKey is either a bare 32-byte AES key or a 64-byte AES key followed
// by an HMAC-SHA256 key.
type SymmetricKey struct {
	raw    []byte
	encKey []byte
	macKey []byte
}

// NewSymmetricKey copies b into a SymmetricKey.
func NewSymmetricKey(b []byte) (SymmetricKey, error) {
	switch len(b) {
	case 32:
		raw := bytes.Clone(b)
		return SymmetricKey{raw: raw, encKey: raw}, nil
	case 64:
		raw := bytes.Clone(b)
		return SymmetricKey{raw: raw, encKey: raw[:32], macKey: raw[32:]}, nil
	default:
		return SymmetricKey{}, fmt.Errorf("%w: %d", ErrInvalidKey, len(b))
	}
}

// GenerateSymmetricKey returns a fresh 64-byte enc+mac key.
func GenerateSymmetricKey() (SymmetricKey, error) {
	b, err := krypto.RandomBytes(64)
	if err != nil {
		return SymmetricKey{}, err
	}
	defer krypto.Zeroize(b)
	return NewSymmetricKey(b)
}

// Bytes returns a copy of the raw key material.
func (k SymmetricKey) Bytes() []byte { return bytes.Clone(k.raw) }

// IsZero reports whether the key holds no material.
func (k SymmetricKey) IsZero() bool { return len(k.raw) == 0 }

// HasMAC reports whether the key carries an authentication half.
func (k SymmetricKey) HasMAC() bool { return len(k.macKey) > 0 }

// Equal compares two keys in constant time.
func (k SymmetricKey) Equal(other SymmetricKey) bool {
	return krypto.CompareConstantTime(k.raw, other.raw)
}

// Wipe zeroes the key material.
func (k SymmetricKey) Wipe() {
	krypto.Zeroize(k.raw)
}

func (k SymmetricKey) encryptionType() EncryptionType {
	if k.HasMAC() {
		return AesCbc256HmacSha256B64
	}
	return AesCbc256B64
}

// stretch expands a 32-byte key into a 64-byte enc+mac key with HKDF-Expand.
// Keys that already carry a MAC half are returned unchanged.
func stretch(k SymmetricKey) (SymmetricKey, error) {
	if k.HasMAC() {
		return k, nil
	}
	enc, err := krypto.HKDFExpandSHA256(k.raw, []byte("enc"), 32)
	if err != nil {
		return SymmetricKey{}, fmt.Errorf("stretch enc: %w", err)
	}
	mac, err := krypto.HKDFExpandSHA256(k.raw, []byte("mac"), 32)
	if err != nil {
		return SymmetricKey{}, fmt.Errorf("stretch mac: %w", err)
	}
	joined := append(enc, mac...)
	defer krypto.Zeroize(joined)
	return NewSymmetricKey(joined)
}

// UserKey is the root symmetric key of an account's vault.
type UserKey struct{ SymmetricKey }

// MasterKey is derived from the master password and never persisted.
type MasterKey struct{ SymmetricKey }

// PinKey is derived from the user's PIN.
type PinKey struct{ SymmetricKey }

// BiometricKey is released from platform secure storage after a biometric prompt.
type BiometricKey struct{ SymmetricKey }

// DeviceKey is the per-device key established by device trust.
type DeviceKey struct{ SymmetricKey }

// WrappingKey is any key allowed to wrap a UserKey.
type WrappingKey interface {
	wrappingKey() (SymmetricKey, error)
}

func (k MasterKey) wrappingKey() (SymmetricKey, error)    { return stretch(k.SymmetricKey) }
func (k PinKey) wrappingKey() (SymmetricKey, error)       { return stretch(k.SymmetricKey) }
func (k BiometricKey) wrappingKey() (SymmetricKey, error) { return k.SymmetricKey, nil }
func (k DeviceKey) wrappingKey() (SymmetricKey, error)    { return k.SymmetricKey, nil }

// NewUserKey generates a fresh UserKey.
func NewUserKey() (UserKey, error) {
	k, err := GenerateSymmetricKey()
	if err != nil {
		return UserKey{}, err
	}
	return UserKey{k}, nil
}

// UserKeyFromBytes reconstructs a UserKey from raw material.
func UserKeyFromBytes(b []byte) (UserKey, error) {
	k, err := NewSymmetricKey(b)
	if err != nil {
		return UserKey{}, err
	}
	return UserKey{k}, nil
}
