package krypto_test

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/Hussein-Mazeh/vaultlock/krypto"
)

func TestPBKDF2SHA256KnownVectors(t *testing.T) {
	cases := []struct {
		iterations int
		want       string
	}{
		{1, "120fb6cffcf8b32c43e7225256c4f837a86548c92ccc35480805987cb70be17b"},
		{2, "ae4d0c95af6b46d32d0adff928f06dd02a303f8ef3c251dfd6e2d85a95474c43"},
	}
	for _, tc := range cases {
		got, err := krypto.PBKDF2SHA256([]byte("password"), []byte("salt"), tc.iterations, 32)
		if err != nil {
			t.Fatalf("PBKDF2SHA256 returned error: %v", err)
		}
		if hex.EncodeToString(got) != tc.want {
			t.Fatalf("iterations=%d: got %x, want %s", tc.iterations, got, tc.want)
		}
	}
}

func TestPBKDF2RejectsZeroIterations(t *testing.T) {
	if _, err := krypto.PBKDF2SHA256([]byte("pw"), []byte("salt"), 0, 32); err == nil {
		t.Fatal("expected error for zero iterations")
	}
}

func TestArgon2idIsDeterministic(t *testing.T) {
	params := krypto.Argon2Params{Iterations: 2, MemoryMiB: 16, Parallelism: 1, KeyLen: 32}
	salt := krypto.SHA256([]byte("user@example.com"))

	a, err := krypto.DeriveKeyArgon2id([]byte("correct"), salt, params)
	if err != nil {
		t.Fatalf("DeriveKeyArgon2id returned error: %v", err)
	}
	b, err := krypto.DeriveKeyArgon2id([]byte("correct"), salt, params)
	if err != nil {
		t.Fatalf("DeriveKeyArgon2id returned error: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical output for identical inputs")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(a))
	}

	params.Parallelism = 0
	if _, err := krypto.DeriveKeyArgon2id([]byte("correct"), salt, params); err == nil {
		t.Fatal("expected error for zero parallelism")
	}
}

func TestHKDFExpandSeparatesInfo(t *testing.T) {
	prk := bytes.Repeat([]byte{7}, 32)
	enc, err := krypto.HKDFExpandSHA256(prk, []byte("enc"), 32)
	if err != nil {
		t.Fatalf("expand enc: %v", err)
	}
	mac, err := krypto.HKDFExpandSHA256(prk, []byte("mac"), 32)
	if err != nil {
		t.Fatalf("expand mac: %v", err)
	}
	if bytes.Equal(enc, mac) {
		t.Fatal("expected distinct outputs for distinct info")
	}
	if _, err := krypto.HKDFExpandSHA256(prk[:16], []byte("enc"), 32); err == nil {
		t.Fatal("expected error for short prk")
	}
}

func TestAESCBCRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	for _, size := range []int{0, 1, 15, 16, 17, 64} {
		plaintext := bytes.Repeat([]byte{0xAB}, size)
		iv, ct, err := krypto.EncryptAESCBC(key, plaintext)
		if err != nil {
			t.Fatalf("encrypt %d bytes: %v", size, err)
		}
		got, err := krypto.DecryptAESCBC(key, iv, ct)
		if err != nil {
			t.Fatalf("decrypt %d bytes: %v", size, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round trip mismatch for %d bytes", size)
		}
	}
}

func TestCompareConstantTime(t *testing.T) {
	if !krypto.CompareConstantTime([]byte("abc"), []byte("abc")) {
		t.Fatal("expected equal slices to compare equal")
	}
	if krypto.CompareConstantTime([]byte("abc"), []byte("abd")) {
		t.Fatal("expected different slices to compare unequal")
	}
	if krypto.CompareConstantTime([]byte("abc"), []byte("abcd")) {
		t.Fatal("expected different lengths to compare unequal")
	}
}

func TestRSARoundTrip(t *testing.T) {
	pub, priv, err := krypto.GenerateRSAKeyPair()
	if err != nil {
		t.Fatalf("GenerateRSAKeyPair returned error: %v", err)
	}
	secret := bytes.Repeat([]byte{9}, 64)
	for _, h := range []krypto.OAEPHash{krypto.OAEPSHA1, krypto.OAEPSHA256} {
		ct, err := krypto.RSAEncrypt(pub, secret, h)
		if err != nil {
			t.Fatalf("RSAEncrypt: %v", err)
		}
		pt, err := krypto.RSADecrypt(priv, ct, h)
		if err != nil {
			t.Fatalf("RSADecrypt: %v", err)
		}
		if !bytes.Equal(pt, secret) {
			t.Fatal("rsa round trip mismatch")
		}
	}
}
