// Package account keeps the local registry of logged-in accounts and their
// per-user KDF configuration.
package account

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/vaultlock/internal/kdf"
	"github.com/Hussein-Mazeh/vaultlock/internal/state"
)

var (
	// ErrUnknownAccount is returned for ids with no local account.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrNoActiveAccount is returned when nobody is logged in.
	ErrNoActiveAccount = errors.New("no active account")
	// ErrNoKdfConfig is returned when a user has no stored KDF configuration.
	ErrNoKdfConfig = errors.New("no kdf config stored for account")
)

var (
	accountsDef = state.Define("account.accounts", state.Disk, 0)
	activeDef   = state.Define("account.active", state.Disk, 0)
	kdfDef      = state.Define("account.kdfConfig", state.Disk, state.ClearOnLogout)
)

// Account is a locally known user.
type Account struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name,omitempty"`
}

// Service manages accounts in the state provider.
type Service struct {
	state *state.Provider
	log   zerolog.Logger
}

// NewService returns a Service backed by p.
func NewService(p *state.Provider, log zerolog.Logger) *Service {
	return &Service{state: p, log: log}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) all() (map[uuid.UUID]Account, error) {
	m, _, err := state.Get[map[uuid.UUID]Account](s.state, uuid.Nil, accountsDef)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = map[uuid.UUID]Account{}
	}
	return m, nil
}

// Add registers an account. An existing account with the same normalized
// email is returned unchanged.
func (s *Service) Add(id uuid.UUID, email, name string) (Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return Account{}, errors.New("email is required")
	}
	m, err := s.all()
	if err != nil {
		return Account{}, err
	}
	for _, a := range m {
		if a.Email == email {
			return a, nil
		}
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	a := Account{ID: id, Email: email, Name: strings.TrimSpace(name)}
	m[id] = a
	if err := state.Set(s.state, uuid.Nil, accountsDef, m); err != nil {
		return Account{}, fmt.Errorf("save accounts: %w", err)
	}
	s.log.Info().Str("user", id.String()).Msg("account added")
	return a, nil
}

// Get returns the account for id.
func (s *Service) Get(id uuid.UUID) (Account, error) {
	m, err := s.all()
	if err != nil {
		return Account{}, err
	}
	a, ok := m[id]
	if !ok {
		return Account{}, ErrUnknownAccount
	}
	return a, nil
}

// FindByEmail looks an account up by email.
func (s *Service) FindByEmail(email string) (Account, error) {
	m, err := s.all()
	if err != nil {
		return Account{}, err
	}
	email = NormalizeEmail(email)
	for _, a := range m {
		if a.Email == email {
			return a, nil
		}
	}
	return Account{}, ErrUnknownAccount
}

// Remove forgets an account and clears it as active if needed.
func (s *Service) Remove(id uuid.UUID) error {
	m, err := s.all()
	if err != nil {
		return err
	}
	if _, ok := m[id]; !ok {
		return ErrUnknownAccount
	}
	delete(m, id)
	if err := state.Set(s.state, uuid.Nil, accountsDef, m); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	active, _, err := state.Get[uuid.UUID](s.state, uuid.Nil, activeDef)
	if err != nil {
		return err
	}
	if active == id {
		return s.state.Remove(uuid.Nil, activeDef)
	}
	return nil
}

// SetActive marks id as the current account.
func (s *Service) SetActive(id uuid.UUID) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return state.Set(s.state, uuid.Nil, activeDef, id)
}

// Active returns the current account.
func (s *Service) Active() (Account, error) {
	id, ok, err := state.Get[uuid.UUID](s.state, uuid.Nil, activeDef)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		return Account{}, ErrNoActiveAccount
	}
	return s.Get(id)
}

// KdfConfig returns the stored KDF configuration for id.
func (s *Service) KdfConfig(id uuid.UUID) (kdf.Config, error) {
	raw, err := s.state.GetRaw(id, kdfDef)
	if errors.Is(err, state.ErrNotFound) {
		return nil, ErrNoKdfConfig
	}
	if err != nil {
		return nil, err
	}
	return kdf.ParseJSON(raw)
}

// SetKdfConfig stores cfg for id after validating it.
func (s *Service) SetKdfConfig(id uuid.UUID, cfg kdf.Config) error {
	if cfg == nil {
		return &kdf.ValidationError{Reason: "kdf config is required"}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := kdf.MarshalConfig(cfg)
	if err != nil {
		return fmt.Errorf("encode kdf config: %w", err)
	}
	return s.state.SetRaw(id, kdfDef, raw)
}
