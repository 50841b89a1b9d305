// Package unlock drives a user session from Locked to Unlocked with one of
// the available credentials and runs the post-unlock hooks.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/vaultlock/auth"
	"github.com/Hussein-Mazeh/vaultlock/internal/api"
	"github.com/Hussein-Mazeh/vaultlock/internal/bio"
	"github.com/Hussein-Mazeh/vaultlock/internal/decryption"
	"github.com/Hussein-Mazeh/vaultlock/internal/keys"
	"github.com/Hussein-Mazeh/vaultlock/internal/masterpassword"
	"github.com/Hussein-Mazeh/vaultlock/internal/pin"
	"github.com/Hussein-Mazeh/vaultlock/internal/state"
)

// MasterPasswordVerifier checks a master password and releases the user key.
type MasterPasswordVerifier interface {
	Unlock(ctx context.Context, user uuid.UUID, password string) (masterpassword.Result, error)
	SetForceSetPasswordReason(user uuid.UUID, r masterpassword.ForceSetPasswordReason) error
}

// PinVerifier checks a PIN and releases the user key.
type PinVerifier interface {
	DecryptUserKeyWithPin(ctx context.Context, user uuid.UUID, pin string) (keys.UserKey, error)
	ReestablishEphemeral(user uuid.UUID, userKey keys.UserKey) error
}

// BiometricVerifier releases the user key after a platform prompt.
type BiometricVerifier interface {
	Unlock(ctx context.Context, user uuid.UUID) (keys.UserKey, error)
	ResetPromptCancelled(user uuid.UUID) error
}

// DeviceTruster establishes device trust when the user asked for it.
type DeviceTruster interface {
	TrustDeviceIfRequired(ctx context.Context, user uuid.UUID, userKey keys.UserKey) (bool, error)
}

// PolicyEvaluator stores and evaluates master-password policies.
type PolicyEvaluator interface {
	SetMasterPasswordPolicyOptions(user uuid.UUID, opts *auth.PolicyOptions) error
	EvaluateMasterPassword(score int, pw string, opts *auth.PolicyOptions) bool
}

// OptionsComputer reports which unlock methods are currently offered.
type OptionsComputer interface {
	ComputeAvailableUnlockOptions(ctx context.Context, user uuid.UUID) (decryption.UnlockOptions, error)
}

// Deps are the collaborators a Machine verifies credentials with. Devices,
// Policy and OnLogout may be nil.
type Deps struct {
	State          *state.Provider
	Options        OptionsComputer
	MasterPassword MasterPasswordVerifier
	Pin            PinVerifier
	Biometrics     BiometricVerifier
	Devices        DeviceTruster
	Policy         PolicyEvaluator
	// OnLogout runs on every logout, explicit or forced by the PIN lockout,
	// before the user's state is cleared.
	OnLogout func(user uuid.UUID) error
}

// Machine is the unlock state machine for one session. Submissions are
// serialized.
type Machine struct {
	mu   sync.Mutex
	sess *Session
	deps Deps
	log  zerolog.Logger

	// strength scores a password for policy evaluation.
	strength func(pw, email string) int
}

// New returns a Machine over sess.
func New(sess *Session, deps Deps, log zerolog.Logger) *Machine {
	return &Machine{
		sess:     sess,
		deps:     deps,
		log:      log.With().Str("user", sess.User.String()).Logger(),
		strength: auth.Strength,
	}
}

// Session returns the machine's session.
func (m *Machine) Session() *Session { return m.sess }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.state
}

// PinFailures returns the consecutive PIN failures in this locked period.
func (m *Machine) PinFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.pinFailures
}

// Options returns the unlock methods currently offered.
func (m *Machine) Options(ctx context.Context) (decryption.UnlockOptions, error) {
	return m.deps.Options.ComputeAvailableUnlockOptions(ctx, m.sess.User)
}

// EverUnlocked reports whether the session has been unlocked since login.
func (m *Machine) EverUnlocked() (bool, error) {
	v, _, err := state.Get[bool](m.deps.State, m.sess.User, everUnlockedDef)
	return v, err
}

func (m *Machine) transition(to State) {
	m.log.Debug().Stringer("from", m.sess.state).Stringer("to", to).Msg("unlock transition")
	m.sess.state = to
}

// Submit verifies c and, on success, installs the user key and runs the
// post-unlock hooks. It returns the resulting state. Failed verifications
// return a *Failure.
func (m *Machine) Submit(ctx context.Context, c Credential) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.sess.state {
	case Locked:
	case LoggedOut:
		return m.sess.state, ErrLoggedOut
	default:
		return m.sess.state, ErrNotLocked
	}

	opts, err := m.deps.Options.ComputeAvailableUnlockOptions(ctx, m.sess.User)
	if err != nil {
		m.log.Error().Err(err).Msg("compute unlock options")
		return m.sess.state, &Failure{Kind: Internal, Method: c.Method()}
	}
	if !offered(opts, c.Method()) {
		return m.sess.state, &Failure{Kind: MethodUnavailable, Method: c.Method()}
	}

	m.transition(Verifying)
	var (
		uk     keys.UserKey
		mpRes  *masterpassword.Result
		mpText string
	)
	switch cred := c.(type) {
	case MasterPassword:
		var res masterpassword.Result
		res, err = m.deps.MasterPassword.Unlock(ctx, m.sess.User, cred.Password)
		uk = res.UserKey
		mpRes, mpText = &res, cred.Password
	case PIN:
		uk, err = m.deps.Pin.DecryptUserKeyWithPin(ctx, m.sess.User, cred.Pin)
	case Biometrics:
		uk, err = m.deps.Biometrics.Unlock(ctx, m.sess.User)
	default:
		panic(fmt.Sprintf("unlock: unhandled credential %T", c))
	}
	if err != nil {
		return m.fail(c.Method(), err)
	}
	defer uk.Wipe()
	if mpRes != nil {
		defer mpRes.MasterKey.Wipe()
	}

	if err := m.sess.Key.Set(uk); err != nil {
		m.log.Error().Err(err).Msg("install user key")
		m.transition(Locked)
		return m.sess.state, &Failure{Kind: Internal, Method: c.Method()}
	}
	m.sess.pinFailures = 0
	m.transition(Unlocked)

	m.afterUnlock(ctx, uk)
	if mpRes != nil && mpRes.VerifiedOnline {
		m.evaluatePolicy(mpRes.Policy, mpText)
	}
	m.log.Info().Stringer("method", c.Method()).Stringer("state", m.sess.state).Msg("vault unlocked")
	return m.sess.state, nil
}

func offered(o decryption.UnlockOptions, method Method) bool {
	switch method {
	case MethodMasterPassword:
		return o.MasterPassword.Enabled
	case MethodPIN:
		return o.PIN.Enabled
	case MethodBiometrics:
		return o.Biometrics.Enabled
	default:
		panic(fmt.Sprintf("unlock: unknown method %d", int(method)))
	}
}

// fail maps a verification error to a Failure and applies the PIN lockout.
func (m *Machine) fail(method Method, err error) (State, error) {
	m.transition(Locked)
	m.log.Warn().Err(err).Stringer("method", method).Msg("unlock failed")

	switch {
	case errors.Is(err, masterpassword.ErrInvalidMasterPassword),
		errors.Is(err, keys.ErrUnwrap),
		errors.Is(err, bio.ErrFailed):
		return m.sess.state, &Failure{Kind: InvalidCredential, Method: method}
	case errors.Is(err, pin.ErrInvalidPin):
		m.sess.pinFailures++
		if m.sess.pinFailures >= MaxPinAttempts {
			m.logout()
			return m.sess.state, &Failure{Kind: TooManyAttempts, Method: method}
		}
		return m.sess.state, &Failure{Kind: InvalidCredential, Method: method, Remaining: MaxPinAttempts - m.sess.pinFailures}
	case errors.Is(err, masterpassword.ErrNoMasterPassword),
		errors.Is(err, pin.ErrPinDisabled),
		errors.Is(err, pin.ErrPinUnavailable),
		errors.Is(err, bio.ErrNotEnabled):
		return m.sess.state, &Failure{Kind: MethodUnavailable, Method: method}
	case api.IsNetworkError(err):
		return m.sess.state, &Failure{Kind: NetworkUnavailable, Method: method}
	default:
		return m.sess.state, &Failure{Kind: Internal, Method: method}
	}
}

// afterUnlock runs the hooks every successful unlock triggers. None of them
// can undo the unlock.
func (m *Machine) afterUnlock(ctx context.Context, uk keys.UserKey) {
	user := m.sess.User
	if m.deps.Biometrics != nil {
		if err := m.deps.Biometrics.ResetPromptCancelled(user); err != nil {
			m.log.Warn().Err(err).Msg("reset biometric prompt state")
		}
	}
	if m.deps.Pin != nil {
		if err := m.deps.Pin.ReestablishEphemeral(user, uk); err != nil {
			m.log.Warn().Err(err).Msg("re-establish ephemeral pin")
		}
	}

	if m.deps.Devices != nil {
		if _, err := m.deps.Devices.TrustDeviceIfRequired(ctx, user, uk); err != nil {
			m.log.Error().Err(err).Msg("device trust")
		}
	}
	if err := state.Set(m.deps.State, user, everUnlockedDef, true); err != nil {
		m.log.Warn().Err(err).Msg("mark session unlocked")
	}
}

// evaluatePolicy forces a password change when an enforced policy rejects
// the password just verified online. Errors are logged and ignored.
func (m *Machine) evaluatePolicy(policy *auth.PolicyOptions, password string) {
	if m.deps.Policy == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("evaluate master password policy")
		}
	}()

	// The server's answer replaces the stored policy; no policy clears it.
	user := m.sess.User
	if err := m.deps.Policy.SetMasterPasswordPolicyOptions(user, policy); err != nil {
		m.log.Error().Err(err).Msg("store master password policy")
	}
	if policy == nil || !policy.EnforceOnLogin {
		return
	}

	score := m.strength(password, m.sess.Email)
	if m.deps.Policy.EvaluateMasterPassword(score, password, policy) {
		return
	}
	if err := m.deps.MasterPassword.SetForceSetPasswordReason(user, masterpassword.ReasonWeakMasterPassword); err != nil {
		m.log.Error().Err(err).Msg("record weak master password")
		return
	}
	m.transition(PasswordChangeRequired)
}

// PasswordChanged completes a forced password change.
func (m *Machine) PasswordChanged() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.state != PasswordChangeRequired {
		return fmt.Errorf("no password change pending (state %s)", m.sess.state)
	}
	if err := m.deps.MasterPassword.SetForceSetPasswordReason(m.sess.User, masterpassword.ReasonNone); err != nil {
		return err
	}
	m.transition(Unlocked)
	return nil
}

// UserKey returns the installed user key.
func (m *Machine) UserKey() (keys.UserKey, error) {
	return m.sess.Key.UserKey()
}

// Lock drops the user key and in-memory lock-scoped state. A new locked
// period starts with a fresh PIN counter.
func (m *Machine) Lock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.sess.state {
	case LoggedOut:
		return ErrLoggedOut
	case Locked:
		return nil
	}
	m.sess.Key.Clear()
	m.sess.pinFailures = 0
	m.transition(Locked)
	return m.deps.State.ClearOn(m.sess.User, state.ClearOnLock)
}

// Logout drops the user key and clears all of the user's logout-scoped state.
func (m *Machine) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.state == LoggedOut {
		return nil
	}
	return m.logout()
}

func (m *Machine) logout() error {
	m.sess.Key.Clear()
	m.sess.pinFailures = 0
	m.transition(LoggedOut)

	var errs []error
	if m.deps.OnLogout != nil {
		if err := m.deps.OnLogout(m.sess.User); err != nil {
			m.log.Error().Err(err).Msg("logout cleanup")
			errs = append(errs, err)
		}
	}
	if err := m.deps.State.ClearOn(m.sess.User, state.ClearOnLock|state.ClearOnLogout); err != nil {
		m.log.Error().Err(err).Msg("clear user state")
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	m.log.Info().Msg("logged out")
	return nil
}
