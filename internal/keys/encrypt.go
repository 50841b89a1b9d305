package keys

import (
	"errors"

	"github.com/Hussein-Mazeh/vaultlock/krypto"
)

// ErrUnwrap is the single failure for every decryption problem: wrong key,
// tampered ciphertext, bad MAC, bad padding or malformed envelope.
var ErrUnwrap = errors.New("unable to decrypt")

// Encrypt seals plaintext under key. Keys with a MAC half produce type 2
// envelopes, bare keys produce type 0.
func Encrypt(plaintext []byte, key SymmetricKey) (EncString, error) {
	if key.IsZero() {
		return EncString{}, ErrInvalidKey
	}
	iv, ct, err := krypto.EncryptAESCBC(key.encKey, plaintext)
	if err != nil {
		return EncString{}, err
	}
	enc := EncString{Type: key.encryptionType(), IV: iv, Data: ct}
	if key.HasMAC() {
		enc.MAC = krypto.HMACSHA256(key.macKey, iv, ct)
	}
	return enc, nil
}

// Decrypt opens an AES envelope. The MAC is verified before any decryption
// and every failure path returns ErrUnwrap.
func Decrypt(enc EncString, key SymmetricKey) ([]byte, error) {
	if key.IsZero() || enc.Type != key.encryptionType() {
		return nil, ErrUnwrap
	}
	if key.HasMAC() {
		want := krypto.HMACSHA256(key.macKey, enc.IV, enc.Data)
		if !krypto.CompareConstantTime(want, enc.MAC) {
			return nil, ErrUnwrap
		}
	}
	pt, err := krypto.DecryptAESCBC(key.encKey, enc.IV, enc.Data)
	if err != nil {
		return nil, ErrUnwrap
	}
	return pt, nil
}

// EncryptString seals a UTF-8 string.
func EncryptString(s string, key SymmetricKey) (EncString, error) {
	return Encrypt([]byte(s), key)
}

// DecryptString opens an envelope holding a UTF-8 string.
func DecryptString(enc EncString, key SymmetricKey) (string, error) {
	pt, err := Decrypt(enc, key)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// RSAEncrypt seals data under a PKIX DER public key as a type 4 envelope.
func RSAEncrypt(data, publicDER []byte) (EncString, error) {
	ct, err := krypto.RSAEncrypt(publicDER, data, krypto.OAEPSHA1)
	if err != nil {
		return EncString{}, err
	}
	return EncString{Type: Rsa2048OaepSha1B64, Data: ct}, nil
}

// RSADecrypt opens a type 3 or 4 envelope with a PKCS#8 DER private key.
func RSADecrypt(enc EncString, privateDER []byte) ([]byte, error) {
	var h krypto.OAEPHash
	switch enc.Type {
	case Rsa2048OaepSha1B64, Rsa2048OaepSha1HmacSha256B64:
		h = krypto.OAEPSHA1
	case Rsa2048OaepSha256B64, Rsa2048OaepSha256HmacSha256B64:
		h = krypto.OAEPSHA256
	default:
		return nil, ErrUnwrap
	}
	pt, err := krypto.RSADecrypt(privateDER, enc.Data, h)
	if err != nil {
		return nil, ErrUnwrap
	}
	return pt, nil
}
