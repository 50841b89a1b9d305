package krypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFExpandSHA256 runs only the expand step, treating prk as an already
// uniformly random pseudorandom key.
func HKDFExpandSHA256(prk, info []byte, outLen int) ([]byte, error) {
	if outLen <= 0 || outLen > 255*sha256.Size {
		return nil, errors.New("invalid hkdf length")
	}
	if len(prk) < sha256.Size {
		return nil, errors.New("prk is shorter than the hash output")
	}

	out := make([]byte, outLen)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return out, nil
}
