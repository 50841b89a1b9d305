package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Hussein-Mazeh/vaultlock/internal/kdf"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithAccessToken("tok"), WithRetry(nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestPrelogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("prelogin must not be authenticated")
		}
		w.Write([]byte(`{"kdfType":1,"iterations":3,"memory":64,"parallelism":4}`))
	})
	w, err := Prelogin(context.Background(), c, "user@example.com")
	if err != nil {
		t.Fatalf("Prelogin: %v", err)
	}
	cfg, err := kdf.Parse(w)
	if err != nil {
		t.Fatalf("kdf.Parse: %v", err)
	}
	if !kdf.Equal(cfg, kdf.DefaultArgon2Config()) {
		t.Fatalf("unexpected config %+v", cfg.DerivationParameters())
	}
}

func TestGetUserDecryptionOptions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/decryption-options" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"hasMasterPassword": true,
			"masterPasswordUnlock": {
				"salt": "user@example.com",
				"kdf": {"kdfType": 0, "iterations": 600000},
				"masterKeyEncryptedUserKey": "2.AAAA|AAAA|AAAA"
			},
			"keyConnectorOption": {"keyConnectorUrl": "https://kc.example.com"}
		}`))
	})
	resp, err := GetUserDecryptionOptions(context.Background(), c)
	if err != nil {
		t.Fatalf("GetUserDecryptionOptions: %v", err)
	}
	if !resp.HasMasterPassword || resp.MasterPasswordUnlock == nil {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.TrustedDeviceOption != nil || resp.WebAuthnPrfOption != nil {
		t.Fatal("absent options must decode as nil")
	}
	if resp.KeyConnectorOption.KeyConnectorURL != "https://kc.example.com" {
		t.Fatalf("key connector url = %q", resp.KeyConnectorOption.KeyConnectorURL)
	}
}

func TestVerifyPasswordPolicy(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req SecretVerificationRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.MasterPasswordHash == "with-policy" {
			w.Write([]byte(`{"minComplexity":3,"enforceOnLogin":true}`))
			return
		}
		w.Write([]byte(`null`))
	})

	policy, err := VerifyPassword(context.Background(), c, "with-policy")
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if policy == nil || policy.MinComplexity != 3 || !policy.EnforceOnLogin {
		t.Fatalf("unexpected policy %+v", policy)
	}

	policy, err = VerifyPassword(context.Background(), c, "no-policy")
	if err != nil || policy != nil {
		t.Fatalf("expected nil policy, got %+v, %v", policy, err)
	}
}

func TestUpdateTrustedDeviceKeys(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/devices/dev-1/keys" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id":"1","identifier":"dev-1","isTrusted":true}`))
	})
	resp, err := UpdateTrustedDeviceKeys(context.Background(), c, "dev-1", TrustedDeviceKeysRequest{})
	if err != nil {
		t.Fatalf("UpdateTrustedDeviceKeys: %v", err)
	}
	if !resp.IsTrusted {
		t.Fatal("expected trusted device")
	}
	if _, err := UpdateTrustedDeviceKeys(context.Background(), c, "", TrustedDeviceKeysRequest{}); err == nil {
		t.Fatal("expected error for empty identifier")
	}
}
