package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Hussein-Mazeh/vaultlock/internal/bio"
	"github.com/Hussein-Mazeh/vaultlock/internal/decryption"
)

func runBio(args []string) error {
	if len(args) == 0 {
		return userError{msg: "missing bio subcommand"}
	}

	switch args[0] {
	case "status":
		return runBioStatus(args[1:])
	case "enable", "disable":
		return userError{msg: "bio " + args[0] + " needs an unlocked vault; use it inside pm session"}
	default:
		return userError{msg: "unknown bio subcommand"}
	}
}

func runBioStatus(args []string) error {
	fs, common := newFlagSet("bio status")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	svc, err := openService(common)
	if err != nil {
		return err
	}
	defer svc.Close()
	m, err := activeSession(svc)
	if err != nil {
		return err
	}
	return printBioStatus(context.Background(), svc.Bio, m.Session().User)
}

// printBioStatus reports each biometric precondition and the resulting
// availability.
func printBioStatus(ctx context.Context, b *bio.Service, user uuid.UUID) error {
	var f decryption.BiometricFacts
	var err error
	if f.OSSupported, err = b.SupportsBiometric(ctx); err != nil {
		return fmt.Errorf("query biometric support: %w", err)
	}
	f.SecureStorage = b.SupportsSecureStorage()
	if f.UnlockEnabled, err = b.BiometricUnlockEnabled(user); err != nil {
		return err
	}
	if f.KeyStored, err = b.HasEncryptedUserKey(ctx, user); err != nil {
		return err
	}
	if f.Ready, err = b.IsBiometricReady(ctx, user); err != nil {
		return err
	}

	fmt.Printf("os support:      %t\n", f.OSSupported)
	fmt.Printf("secure storage:  %t\n", f.SecureStorage)
	fmt.Printf("enabled:         %t\n", f.UnlockEnabled)
	fmt.Printf("key stored:      %t\n", f.KeyStored)
	fmt.Printf("ready:           %t\n", f.Ready)
	opt := decryption.Biometrics(f)
	if opt.Enabled {
		fmt.Println("Biometric unlock: available")
	} else {
		fmt.Printf("Biometric unlock: unavailable (%s)\n", opt.DisableReason)
	}
	return nil
}
