package krypto

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// KeyLen is the length of every password-derived key.
const KeyLen = 32

// Argon2Params captures tunable parameters for Argon2id.
type Argon2Params struct {
	Iterations  uint32
	MemoryMiB   uint32
	Parallelism uint8
	KeyLen      uint32
}

// PBKDF2SHA256 derives keyLen bytes from password and salt using PBKDF2-HMAC-SHA256.
func PBKDF2SHA256(password, salt []byte, iterations, keyLen int) ([]byte, error) {
	if iterations <= 0 {
		return nil, errors.New("iterations must be positive")
	}
	if keyLen <= 0 {
		return nil, errors.New("key length must be positive")
	}
	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New), nil
}

// DeriveKeyArgon2id derives a key using Argon2id with the provided parameters.
// The memory parameter is given in MiB and converted to KiB for the primitive.
func DeriveKeyArgon2id(password []byte, salt []byte, p Argon2Params) ([]byte, error) {
	if len(salt) == 0 {
		return nil, errors.New("salt is required")
	}
	if p.KeyLen == 0 {
		return nil, errors.New("key length must be positive")
	}
	if p.MemoryMiB == 0 {
		return nil, errors.New("memory parameter must be positive")
	}
	if p.Iterations == 0 {
		return nil, errors.New("iterations parameter must be positive")
	}
	if p.Parallelism == 0 {
		return nil, errors.New("parallelism parameter must be positive")
	}

	memoryKiB := p.MemoryMiB * 1024
	key := argon2.IDKey(password, salt, p.Iterations, memoryKiB, p.Parallelism, p.KeyLen)
	if uint32(len(key)) != p.KeyLen {
		return nil, fmt.Errorf("derived key has unexpected length %d", len(key))
	}
	return key, nil
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
