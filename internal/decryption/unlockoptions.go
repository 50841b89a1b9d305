package decryption

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DisableReason explains why biometric unlock is unavailable.
type DisableReason int

const (
	// NoDisableReason means biometric unlock is enabled.
	NoDisableReason DisableReason = iota
	NotSupportedOnOperatingSystem
	EncryptedKeysUnavailable
	SystemBiometricsUnavailable
)

func (r DisableReason) String() string {
	switch r {
	case NoDisableReason:
		return "none"
	case NotSupportedOnOperatingSystem:
		return "biometrics are not supported on this operating system"
	case EncryptedKeysUnavailable:
		return "biometric unlock is not set up for this account"
	case SystemBiometricsUnavailable:
		return "system biometrics are unavailable"
	default:
		panic(fmt.Sprintf("decryption: unknown disable reason %d", int(r)))
	}
}

// MethodOption reports whether one unlock method is usable.
type MethodOption struct {
	Enabled bool
}

// BiometricsOption adds the reason biometrics are disabled.
type BiometricsOption struct {
	Enabled       bool
	DisableReason DisableReason
}

// UnlockOptions is a snapshot of the usable unlock methods. It is computed
// on demand and never stored.
type UnlockOptions struct {
	MasterPassword MethodOption
	PIN            MethodOption
	Biometrics     BiometricsOption
}

// BiometricFacts are the independent inputs to the biometrics decision.
type BiometricFacts struct {
	OSSupported   bool
	UnlockEnabled bool
	KeyStored     bool
	SecureStorage bool
	Ready         bool
}

// Biometrics applies the fixed priority: OS unsupported, then keys
// unavailable, then system biometrics unavailable.
func Biometrics(f BiometricFacts) BiometricsOption {
	lockSet := f.UnlockEnabled && (f.KeyStored || !f.SecureStorage)
	switch {
	case !f.OSSupported:
		return BiometricsOption{DisableReason: NotSupportedOnOperatingSystem}
	case !lockSet:
		return BiometricsOption{DisableReason: EncryptedKeysUnavailable}
	case !f.Ready:
		return BiometricsOption{DisableReason: SystemBiometricsUnavailable}
	default:
		return BiometricsOption{Enabled: true}
	}
}

// OptionsSource provides stored decryption options.
type OptionsSource interface {
	Get(user uuid.UUID) (Options, error)
}

// PinAvailability reports whether the PIN can currently decrypt the user key.
type PinAvailability interface {
	IsPinDecryptionAvailable(ctx context.Context, user uuid.UUID) (bool, error)
}

// BiometricsStatus exposes the platform and account facts biometrics depend on.
type BiometricsStatus interface {
	SupportsBiometric(ctx context.Context) (bool, error)
	SupportsSecureStorage() bool
	BiometricUnlockEnabled(user uuid.UUID) (bool, error)
	HasEncryptedUserKey(ctx context.Context, user uuid.UUID) (bool, error)
	IsBiometricReady(ctx context.Context, user uuid.UUID) (bool, error)
}

// UnlockOptionsService computes UnlockOptions from its collaborators.
type UnlockOptionsService struct {
	options    OptionsSource
	pin        PinAvailability
	biometrics BiometricsStatus
	log        zerolog.Logger
}

// NewUnlockOptionsService wires the collaborators.
func NewUnlockOptionsService(o OptionsSource, p PinAvailability, b BiometricsStatus, log zerolog.Logger) *UnlockOptionsService {
	return &UnlockOptionsService{options: o, pin: p, biometrics: b, log: log}
}

// check runs one capability probe. A failing probe only disables its own
// method; it is logged and reported as false.
func (s *UnlockOptionsService) check(name string, f func() (bool, error)) bool {
	ok, err := f()
	if err != nil {
		s.log.Warn().Err(err).Str("check", name).Msg("unlock option check failed")
		return false
	}
	return ok
}

// ComputeAvailableUnlockOptions runs every check concurrently and joins them.
// The checks are independent, so their order never affects the result. Only
// a failure to read the stored decryption options is returned as an error.
func (s *UnlockOptionsService) ComputeAvailableUnlockOptions(ctx context.Context, user uuid.UUID) (UnlockOptions, error) {
	var (
		hasMasterPassword bool
		pinAvailable      bool
		facts             BiometricFacts
	)
	facts.SecureStorage = s.biometrics.SupportsSecureStorage()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o, err := s.options.Get(user)
		if errors.Is(err, ErrNoOptions) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decryption options: %w", err)
		}
		hasMasterPassword = o.HasMasterPassword
		return nil
	})
	g.Go(func() error {
		pinAvailable = s.check("pin", func() (bool, error) {
			return s.pin.IsPinDecryptionAvailable(ctx, user)
		})
		return nil
	})
	g.Go(func() error {
		facts.OSSupported = s.check("biometric support", func() (bool, error) {
			return s.biometrics.SupportsBiometric(ctx)
		})
		return nil
	})
	g.Go(func() error {
		facts.UnlockEnabled = s.check("biometric setting", func() (bool, error) {
			return s.biometrics.BiometricUnlockEnabled(user)
		})
		return nil
	})
	g.Go(func() error {
		if !facts.SecureStorage {
			return nil
		}
		facts.KeyStored = s.check("biometric key slot", func() (bool, error) {
			return s.biometrics.HasEncryptedUserKey(ctx, user)
		})
		return nil
	})
	g.Go(func() error {
		facts.Ready = s.check("biometric readiness", func() (bool, error) {
			return s.biometrics.IsBiometricReady(ctx, user)
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return UnlockOptions{}, err
	}

	return UnlockOptions{
		MasterPassword: MethodOption{Enabled: hasMasterPassword},
		PIN:            MethodOption{Enabled: pinAvailable},
		Biometrics:     Biometrics(facts),
	}, nil
}
