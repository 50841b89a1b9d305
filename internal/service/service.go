package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/vaultlock/auth"
	"github.com/Hussein-Mazeh/vaultlock/internal/account"
	"github.com/Hussein-Mazeh/vaultlock/internal/api"
	"github.com/Hussein-Mazeh/vaultlock/internal/bio"
	"github.com/Hussein-Mazeh/vaultlock/internal/bio/platform"
	"github.com/Hussein-Mazeh/vaultlock/internal/config"
	"github.com/Hussein-Mazeh/vaultlock/internal/db"
	"github.com/Hussein-Mazeh/vaultlock/internal/decryption"
	"github.com/Hussein-Mazeh/vaultlock/internal/devicetrust"
	"github.com/Hussein-Mazeh/vaultlock/internal/kdf"
	"github.com/Hussein-Mazeh/vaultlock/internal/masterpassword"
	"github.com/Hussein-Mazeh/vaultlock/internal/pin"
	"github.com/Hussein-Mazeh/vaultlock/internal/state"
	"github.com/Hussein-Mazeh/vaultlock/internal/unlock"
)

// ErrVaultLocked is returned by operations that need the user key.
var ErrVaultLocked = errors.New("vault locked")

// Option customizes New.
type Option func(*options)

type options struct {
	client   api.Client
	platform bio.Platform
	log      zerolog.Logger
}

// WithAPIClient replaces the HTTP client built from the configuration.
func WithAPIClient(c api.Client) Option {
	return func(o *options) { o.client = c }
}

// WithPlatform replaces the native biometric bridge.
func WithPlatform(p bio.Platform) Option {
	return func(o *options) { o.platform = p }
}

// WithLogger sets the logger passed to every component.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// Service wires the unlock components for CLI use.
type Service struct {
	db     *db.DB
	client api.Client
	log    zerolog.Logger

	State          *state.Provider
	Accounts       *account.Service
	Decryption     *decryption.Service
	UnlockOptions  *decryption.UnlockOptionsService
	Policy         *auth.PolicyService
	MasterPassword *masterpassword.Service
	Pin            *pin.Service
	Bio            *bio.Service
	Devices        *devicetrust.Service
}

// New opens the state database under cfg.VaultDir and builds every service.
func New(cfg config.Config, opts ...Option) (*Service, error) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	d, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open state database (%s): %w", cfg.DBPath(), err)
	}

	client := o.client
	if client == nil {
		retry := api.WithRetry(nil)
		if cfg.HTTPRetries > 0 {
			rc := api.DefaultRetryPolicy()
			rc.MaxRetries = cfg.HTTPRetries
			retry = api.WithRetry(rc)
		}
		hc, err := api.New(cfg.ServerURL, api.WithAccessToken(cfg.AccessToken), retry, api.WithLogger(o.log))
		if err != nil {
			_ = db.Close(d)
			return nil, err
		}
		client = hc
	}
	plat := o.platform
	if plat == nil {
		plat = platform.New("")
	}

	p := state.NewProvider(state.NewDiskStore(d), state.WithLogger(o.log))
	s := &Service{db: d, client: client, log: o.log, State: p}
	s.Accounts = account.NewService(p, o.log)
	s.Decryption = decryption.NewService(client, p, o.log)
	s.Policy = auth.NewPolicyService(p)
	s.MasterPassword = masterpassword.NewService(p, client, s.Decryption, o.log)
	s.Pin = pin.NewService(p, s.Accounts, o.log)
	s.Bio = bio.NewService(plat, p, o.log)
	s.Devices = devicetrust.NewService(p, client, o.log)
	s.UnlockOptions = decryption.NewUnlockOptionsService(s.Decryption, s.Pin, s.Bio, o.log)
	return s, nil
}

// Close releases the state database.
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	err := db.Close(s.db)
	s.db = nil
	return err
}

// Login registers email locally: it fetches the KDF settings and decryption
// options and makes the account active. The vault stays locked; unlock it
// with the master password through Session.
func (s *Service) Login(ctx context.Context, email string, trustDevice bool) (account.Account, error) {
	email = account.NormalizeEmail(email)
	if email == "" {
		return account.Account{}, errors.New("email is required")
	}
	wire, err := api.Prelogin(ctx, s.client, email)
	if err != nil {
		return account.Account{}, fmt.Errorf("prelogin: %w", err)
	}
	cfg, err := kdf.Parse(wire)
	if err != nil {
		return account.Account{}, err
	}

	acct, err := s.Accounts.Add(uuid.Nil, email, "")
	if err != nil {
		return account.Account{}, err
	}
	if err := s.Accounts.SetKdfConfig(acct.ID, cfg); err != nil {
		return account.Account{}, err
	}
	if _, err := s.Decryption.Refresh(ctx, acct.ID); err != nil {
		return account.Account{}, err
	}
	if err := s.Devices.SetShouldTrustDevice(acct.ID, trustDevice); err != nil {
		return account.Account{}, err
	}
	if err := s.Accounts.SetActive(acct.ID); err != nil {
		return account.Account{}, err
	}
	s.log.Info().Str("user", acct.ID.String()).Stringer("kdf", cfg.Type()).Msg("account logged in")
	return acct, nil
}

// Session returns a locked unlock machine for acct.
func (s *Service) Session(acct account.Account) *unlock.Machine {
	return unlock.New(unlock.NewSession(acct.ID, acct.Email), unlock.Deps{
		State:          s.State,
		Options:        s.UnlockOptions,
		MasterPassword: s.MasterPassword,
		Pin:            s.Pin,
		Biometrics:     s.Bio,
		Devices:        s.Devices,
		Policy:         s.Policy,
		OnLogout:       s.forget,
	}, s.log)
}

// ActiveSession returns a locked unlock machine for the active account.
func (s *Service) ActiveSession() (*unlock.Machine, error) {
	acct, err := s.Accounts.Active()
	if err != nil {
		return nil, err
	}
	return s.Session(acct), nil
}

func requireUnlocked(m *unlock.Machine) error {
	if !m.State().HasKey() {
		return ErrVaultLocked
	}
	return nil
}

// SetPin protects the user key with pin. Ephemeral PINs do not survive a
// restart.
func (s *Service) SetPin(m *unlock.Machine, pinCode string, ephemeral bool) error {
	if err := requireUnlocked(m); err != nil {
		return err
	}
	uk, err := m.UserKey()
	if err != nil {
		return err
	}
	defer uk.Wipe()
	return s.Pin.SetPin(m.Session().User, pinCode, ephemeral, uk)
}

// EnableBiometrics stores the user key behind the platform biometric prompt.
func (s *Service) EnableBiometrics(ctx context.Context, m *unlock.Machine) error {
	if err := requireUnlocked(m); err != nil {
		return err
	}
	uk, err := m.UserKey()
	if err != nil {
		return err
	}
	defer uk.Wipe()
	return s.Bio.Enable(ctx, m.Session().User, uk)
}

// ChangeMasterPassword changes the password of an unlocked session and
// resolves a pending forced change.
func (s *Service) ChangeMasterPassword(ctx context.Context, m *unlock.Machine, req masterpassword.ChangeRequest) error {
	if err := requireUnlocked(m); err != nil {
		return err
	}
	if req.Validate.Email == "" {
		req.Validate.Email = m.Session().Email
	}
	if err := s.MasterPassword.ChangePassword(ctx, m.Session().User, req); err != nil {
		return err
	}
	if m.State() == unlock.PasswordChangeRequired {
		return m.PasswordChanged()
	}
	return nil
}

// Logout ends the session, removes biometric material and forgets the
// account. A PIN lockout takes the same path through the machine.
func (s *Service) Logout(m *unlock.Machine) error {
	return m.Logout()
}

// forget removes everything a logout leaves behind outside the state store.
func (s *Service) forget(user uuid.UUID) error {
	var errs []error
	if enabled, err := s.Bio.BiometricUnlockEnabled(user); err == nil && enabled {
		errs = append(errs, s.Bio.Disable(user))
	}
	if err := s.Accounts.Remove(user); err != nil && !errors.Is(err, account.ErrUnknownAccount) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
