package krypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"hash"
)

// RSAKeyBits is the modulus size used for generated key pairs.
const RSAKeyBits = 2048

// OAEPHash selects the hash used by RSA-OAEP.
type OAEPHash int

const (
	OAEPSHA1 OAEPHash = iota
	OAEPSHA256
)

func (h OAEPHash) new() (hash.Hash, error) {
	switch h {
	case OAEPSHA1:
		return sha1.New(), nil
	case OAEPSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unknown oaep hash %d", h)
	}
}

// GenerateRSAKeyPair returns a new key pair as PKIX public and PKCS#8 private DER.
func GenerateRSAKeyPair() (publicDER, privateDER []byte, err error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate rsa key: %w", err)
	}
	publicDER, err = x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	privateDER, err = x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	return publicDER, privateDER, nil
}

// RSAEncrypt encrypts data with RSA-OAEP under a PKIX DER public key.
func RSAEncrypt(publicDER, data []byte, h OAEPHash) ([]byte, error) {
	key, err := x509.ParsePKIXPublicKey(publicDER)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not rsa")
	}
	hh, err := h.new()
	if err != nil {
		return nil, err
	}
	return rsa.EncryptOAEP(hh, rand.Reader, pub, data, nil)
}

// RSADecrypt decrypts RSA-OAEP ciphertext with a PKCS#8 DER private key.
func RSADecrypt(privateDER, ciphertext []byte, h OAEPHash) ([]byte, error) {
	key, err := x509.ParsePKCS8PrivateKey(privateDER)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	hh, err := h.new()
	if err != nil {
		return nil, err
	}
	return rsa.DecryptOAEP(hh, nil, priv, ciphertext, nil)
}
