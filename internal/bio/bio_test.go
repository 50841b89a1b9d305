package bio_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/vaultlock/internal/bio"
	"github.com/Hussein-Mazeh/vaultlock/internal/bio/platform"
	"github.com/Hussein-Mazeh/vaultlock/internal/keys"
	"github.com/Hussein-Mazeh/vaultlock/internal/state"
)

type fakePlatform struct {
	mu      sync.Mutex
	keys    map[uuid.UUID][]byte
	authErr error
	prompts int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{keys: map[uuid.UUID][]byte{}}
}

func (f *fakePlatform) SupportsBiometric(context.Context) (bool, error) { return true, nil }
func (f *fakePlatform) SupportsSecureStorage() bool                     { return true }
func (f *fakePlatform) IsReady(context.Context) (bool, error)           { return true, nil }

func (f *fakePlatform) Authenticate(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts++
	return f.authErr
}

func (f *fakePlatform) GetKey(user uuid.UUID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[user]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return append([]byte(nil), k...), nil
}

func (f *fakePlatform) SetKey(user uuid.UUID, key []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[user] = append([]byte(nil), key...)
	return nil
}

func (f *fakePlatform) DeleteKey(user uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, user)
	return nil
}

func (f *fakePlatform) HasKey(user uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.keys[user]
	return ok, nil
}

func setup(t *testing.T) (*bio.Service, *fakePlatform, uuid.UUID, keys.UserKey) {
	t.Helper()
	fp := newFakePlatform()
	svc := bio.NewService(fp, state.NewProvider(nil), zerolog.Nop())
	uk, err := keys.NewUserKey()
	if err != nil {
		t.Fatalf("NewUserKey: %v", err)
	}
	return svc, fp, uuid.New(), uk
}

func TestEnableUnlockDisable(t *testing.T) {
	svc, fp, user, uk := setup(t)
	ctx := context.Background()

	if _, err := svc.Unlock(ctx, user); !errors.Is(err, bio.ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled, got %v", err)
	}
	if err := svc.Enable(ctx, user, uk); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if ok, _ := svc.BiometricUnlockEnabled(user); !ok {
		t.Fatal("expected biometric unlock enabled")
	}
	if ok, _ := svc.HasEncryptedUserKey(ctx, user); !ok {
		t.Fatal("expected stored biometric key slot")
	}

	got, err := svc.Unlock(ctx, user)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !got.Equal(uk.SymmetricKey) {
		t.Fatal("unlock returned the wrong user key")
	}
	if fp.prompts != 2 {
		t.Fatalf("prompts = %d, want 2", fp.prompts)
	}

	if err := svc.Disable(user); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if ok, _ := svc.HasEncryptedUserKey(ctx, user); ok {
		t.Fatal("disable left the key slot behind")
	}
	if _, err := svc.Unlock(ctx, user); !errors.Is(err, bio.ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled after disable, got %v", err)
	}
}

func TestCancelledPromptIsFailure(t *testing.T) {
	svc, fp, user, uk := setup(t)
	ctx := context.Background()
	if err := svc.Enable(ctx, user, uk); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	fp.authErr = platform.ErrCancelled
	if _, err := svc.Unlock(ctx, user); !errors.Is(err, bio.ErrFailed) {
		t.Fatalf("expected ErrFailed, got %v", err)
	}
	if c, _ := svc.PromptCancelled(user); !c {
		t.Fatal("cancellation not recorded")
	}
	if err := svc.ResetPromptCancelled(user); err != nil {
		t.Fatalf("ResetPromptCancelled: %v", err)
	}
	if c, _ := svc.PromptCancelled(user); c {
		t.Fatal("prompt-cancelled flag not reset")
	}
}

func TestTamperedKeyFails(t *testing.T) {
	svc, fp, user, uk := setup(t)
	ctx := context.Background()
	if err := svc.Enable(ctx, user, uk); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	other, _ := keys.GenerateSymmetricKey()
	fp.SetKey(user, other.Bytes())

	if _, err := svc.Unlock(ctx, user); !errors.Is(err, bio.ErrFailed) {
		t.Fatalf("expected ErrFailed, got %v", err)
	}
}

func TestEnableRequiresAuthentication(t *testing.T) {
	svc, fp, user, uk := setup(t)
	fp.authErr = errors.New("no finger")
	if err := svc.Enable(context.Background(), user, uk); err == nil {
		t.Fatal("expected enable to fail without authentication")
	}
	if ok, _ := svc.BiometricUnlockEnabled(user); ok {
		t.Fatal("failed enable must not flip the setting")
	}
}
