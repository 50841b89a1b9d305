package main

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/vaultlock/internal/decryption"
	"github.com/Hussein-Mazeh/vaultlock/internal/keys"
	"github.com/Hussein-Mazeh/vaultlock/internal/pin"
	"github.com/Hussein-Mazeh/vaultlock/internal/state"
	"github.com/Hussein-Mazeh/vaultlock/internal/unlock"
)

type pinOptions struct{ offered bool }

func (o pinOptions) ComputeAvailableUnlockOptions(context.Context, uuid.UUID) (decryption.UnlockOptions, error) {
	return decryption.UnlockOptions{PIN: decryption.MethodOption{Enabled: o.offered}}, nil
}

type pinVerifier struct{ uk keys.UserKey }

func (v pinVerifier) DecryptUserKeyWithPin(_ context.Context, _ uuid.UUID, p string) (keys.UserKey, error) {
	if p != "1234" {
		return keys.UserKey{}, pin.ErrInvalidPin
	}
	return keys.UserKeyFromBytes(v.uk.Bytes())
}

func (pinVerifier) ReestablishEphemeral(uuid.UUID, keys.UserKey) error { return nil }

func newPinMachine(t *testing.T, offered bool) *unlock.Machine {
	t.Helper()
	uk, err := keys.NewUserKey()
	if err != nil {
		t.Fatalf("NewUserKey: %v", err)
	}
	return unlock.New(unlock.NewSession(uuid.New(), "user@example.com"), unlock.Deps{
		State:   state.NewProvider(nil),
		Options: pinOptions{offered: offered},
		Pin:     pinVerifier{uk: uk},
	}, zerolog.Nop())
}

// pins hands out the given PINs in order and counts the prompts.
type pins struct {
	seq   []string
	asked int
}

func (p *pins) next() (unlock.Credential, error) {
	c := unlock.PIN{Pin: p.seq[p.asked%len(p.seq)]}
	p.asked++
	return c, nil
}

func TestSubmitUntilDoneReachesPinLockout(t *testing.T) {
	m := newPinMachine(t, true)
	p := &pins{seq: []string{"0000"}}
	reported := 0

	err := submitUntilDone(context.Background(), m, p.next, func(error) { reported++ })
	if !unlock.IsFailure(err, unlock.TooManyAttempts) {
		t.Fatalf("expected lockout, got %v", err)
	}
	if p.asked != unlock.MaxPinAttempts {
		t.Fatalf("prompted %d times, want %d", p.asked, unlock.MaxPinAttempts)
	}
	if reported != unlock.MaxPinAttempts-1 {
		t.Fatalf("reported %d failures, want %d", reported, unlock.MaxPinAttempts-1)
	}
	if m.State() != unlock.LoggedOut {
		t.Fatalf("state = %s, want logged out", m.State())
	}
}

func TestSubmitUntilDoneStopsOnSuccess(t *testing.T) {
	m := newPinMachine(t, true)
	p := &pins{seq: []string{"0000", "9999", "1234"}}

	if err := submitUntilDone(context.Background(), m, p.next, func(error) {}); err != nil {
		t.Fatalf("submitUntilDone: %v", err)
	}
	if p.asked != 3 || m.State() != unlock.Unlocked {
		t.Fatalf("asked=%d state=%s", p.asked, m.State())
	}
}

func TestSubmitUntilDoneReturnsOtherFailures(t *testing.T) {
	m := newPinMachine(t, false)
	p := &pins{seq: []string{"1234"}}

	err := submitUntilDone(context.Background(), m, p.next, func(error) {
		t.Fatal("an unavailable method must not be retried")
	})
	if !unlock.IsFailure(err, unlock.MethodUnavailable) {
		t.Fatalf("expected method unavailable, got %v", err)
	}
	if p.asked != 1 {
		t.Fatalf("prompted %d times, want 1", p.asked)
	}
}
