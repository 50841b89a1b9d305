package keys

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/Hussein-Mazeh/vaultlock/internal/kdf"
	"github.com/Hussein-Mazeh/vaultlock/krypto"
)

// HashPurpose selects the domain of a master-key hash.
type HashPurpose int

const (
	// ServerAuthorization hashes are sent to the server to prove knowledge of
	// the password.
	ServerAuthorization HashPurpose = iota + 1
	// LocalAuthorization hashes stay on the device for offline re-verification.
	LocalAuthorization
)

func (p HashPurpose) iterations() int {
	switch p {
	case ServerAuthorization:
		return 1
	case LocalAuthorization:
		return 2
	default:
		panic(fmt.Sprintf("keys: unknown hash purpose %d", int(p)))
	}
}

// NormalizeSalt trims and lower-cases an email-style salt.
func NormalizeSalt(salt string) string {
	return strings.ToLower(strings.TrimSpace(salt))
}

// DeriveKey runs the configured KDF over secret and the normalized salt.
func DeriveKey(secret, salt string, cfg kdf.Config) (SymmetricKey, error) {
	if cfg == nil {
		return SymmetricKey{}, &kdf.ValidationError{Reason: "kdf config is required"}
	}
	if err := cfg.Validate(); err != nil {
		return SymmetricKey{}, err
	}
	salt = NormalizeSalt(salt)
	if salt == "" {
		return SymmetricKey{}, errors.New("salt is required")
	}

	secretBytes := []byte(secret)
	defer krypto.Zeroize(secretBytes)

	p := cfg.DerivationParameters()
	var (
		raw []byte
		err error
	)
	switch p.Algorithm {
	case kdf.PBKDF2SHA256:
		raw, err = krypto.PBKDF2SHA256(secretBytes, []byte(salt), p.Iterations, krypto.KeyLen)
	case kdf.Argon2id:
		raw, err = krypto.DeriveKeyArgon2id(secretBytes, krypto.SHA256([]byte(salt)), krypto.Argon2Params{
			Iterations:  uint32(p.Iterations),
			MemoryMiB:   uint32(p.MemoryMiB),
			Parallelism: uint8(p.Parallelism),
			KeyLen:      krypto.KeyLen,
		})
	default:
		panic(fmt.Sprintf("keys: unhandled kdf type %v", p.Algorithm))
	}
	if err != nil {
		return SymmetricKey{}, fmt.Errorf("derive key: %w", err)
	}
	defer krypto.Zeroize(raw)
	return NewSymmetricKey(raw)
}

// DeriveMasterKey derives the master key for password, salt and cfg.
func DeriveMasterKey(password, salt string, cfg kdf.Config) (MasterKey, error) {
	k, err := DeriveKey(password, salt, cfg)
	if err != nil {
		return MasterKey{}, err
	}
	return MasterKey{k}, nil
}

// DerivePinKey derives the key protecting the PIN-wrapped user key.
func DerivePinKey(pin, salt string, cfg kdf.Config) (PinKey, error) {
	k, err := DeriveKey(pin, salt, cfg)
	if err != nil {
		return PinKey{}, err
	}
	return PinKey{k}, nil
}

// HashMasterKey returns base64(PBKDF2-SHA256(masterKey, password, n)) where n
// differs per purpose, so a server hash can never pass as a local hash.
func HashMasterKey(masterKey MasterKey, password string, purpose HashPurpose) (string, error) {
	if masterKey.IsZero() {
		return "", errors.New("master key is required")
	}
	h, err := krypto.PBKDF2SHA256(masterKey.encKey, []byte(password), purpose.iterations(), 32)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(h), nil
}

// WrapUserKey encrypts userKey under wrappingKey.
func WrapUserKey(userKey UserKey, wrappingKey WrappingKey) (EncString, error) {
	if userKey.IsZero() {
		return EncString{}, errors.New("user key is required")
	}
	k, err := wrappingKey.wrappingKey()
	if err != nil {
		return EncString{}, err
	}
	return Encrypt(userKey.raw, k)
}

// UnwrapUserKey decrypts a wrapped user key. All failures are ErrUnwrap.
func UnwrapUserKey(wrapped EncString, wrappingKey WrappingKey) (UserKey, error) {
	k, err := wrappingKey.wrappingKey()
	if err != nil {
		return UserKey{}, ErrUnwrap
	}
	raw, err := Decrypt(wrapped, k)
	if err != nil {
		return UserKey{}, ErrUnwrap
	}
	defer krypto.Zeroize(raw)
	uk, err := UserKeyFromBytes(raw)
	if err != nil {
		return UserKey{}, ErrUnwrap
	}
	return uk, nil
}
