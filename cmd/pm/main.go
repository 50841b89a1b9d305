package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/Hussein-Mazeh/vaultlock/auth"
	"github.com/Hussein-Mazeh/vaultlock/internal/account"
	"github.com/Hussein-Mazeh/vaultlock/internal/api"
	"github.com/Hussein-Mazeh/vaultlock/internal/config"
	"github.com/Hussein-Mazeh/vaultlock/internal/kdf"
	"github.com/Hussein-Mazeh/vaultlock/internal/masterpassword"
	"github.com/Hussein-Mazeh/vaultlock/internal/service"
	"github.com/Hussein-Mazeh/vaultlock/internal/unlock"
)

const cliVersion = "0.2.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Println(cliVersion)
	case "login":
		err = runLogin(os.Args[2:])
	case "session":
		err = runSession(os.Args[2:])
	case "options":
		err = runOptions(os.Args[2:])
	case "kdf":
		err = runKdf(os.Args[2:])
	case "bio":
		err = runBio(os.Args[2:])
	case "logout":
		err = runLogout(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		handleError(err)
	}
}

func handleError(err error) {
	if err == nil {
		return
	}

	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		memguard.SafeExit(1)
	}
	var f *unlock.Failure
	if errors.As(err, &f) {
		fmt.Fprintln(os.Stderr, f.Error())
		memguard.SafeExit(1)
	}

	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	memguard.SafeExit(2)
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	envFile string
	dir     string
	verbose bool
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	c := &commonFlags{}
	fs.StringVar(&c.envFile, "env", "", "path to a .env file")
	fs.StringVar(&c.dir, "dir", "", "vault directory (overrides "+config.EnvVaultDir+")")
	fs.BoolVar(&c.verbose, "v", false, "debug logging")
	return fs, c
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}
	return nil
}

func openService(c *commonFlags) (*service.Service, error) {
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return nil, userError{msg: err.Error()}
	}
	if c.dir != "" {
		cfg.VaultDir = c.dir
	}
	log := cfg.Logger(os.Stderr)
	if c.verbose {
		log = log.Level(zerolog.DebugLevel)
	}
	svc, err := service.New(cfg, service.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func activeSession(svc *service.Service) (*unlock.Machine, error) {
	m, err := svc.ActiveSession()
	if errors.Is(err, account.ErrNoActiveAccount) {
		return nil, userError{msg: "not logged in; run pm login first"}
	}
	return m, err
}

func runLogin(args []string) error {
	fs, common := newFlagSet("login")
	var email string
	var trust bool
	fs.StringVar(&email, "email", "", "account email")
	fs.BoolVar(&trust, "trust-device", false, "trust this device after unlocking")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if email == "" {
		return userError{msg: "missing required flag: --email"}
	}

	svc, err := openService(common)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	acct, err := svc.Login(ctx, email, trust)
	if err != nil {
		switch {
		case kdf.IsValidationError(err):
			return userError{msg: "server returned an invalid kdf configuration"}
		case api.IsNetworkError(err):
			return userError{msg: "could not reach the server"}
		case errors.Is(err, api.ErrNoToken), errors.Is(err, api.ErrUnauthorized):
			return userError{msg: "missing or rejected access token (" + config.EnvAccessToken + ")"}
		}
		return err
	}

	m := svc.Session(acct)
	next := func() (unlock.Credential, error) { return readCredential("password") }
	if err := submitUntilDone(ctx, m, next, handleSessionError); err != nil {
		return err
	}
	fmt.Printf("logged in as %s\n", acct.Email)
	return resolvePasswordChange(ctx, svc, m)
}

// readCredential prompts for the secret of method.
func readCredential(method string) (unlock.Credential, error) {
	switch method {
	case "password":
		pw, err := promptPassword("Master password: ")
		if err != nil {
			return nil, fmt.Errorf("read master password: %w", err)
		}
		defer zeroBytes(pw)
		return unlock.MasterPassword{Password: string(pw)}, nil
	case "pin":
		p, err := promptPassword("PIN: ")
		if err != nil {
			return nil, fmt.Errorf("read pin: %w", err)
		}
		defer zeroBytes(p)
		return unlock.PIN{Pin: string(p)}, nil
	case "bio":
		return unlock.Biometrics{}, nil
	default:
		return nil, userError{msg: "unknown unlock method: " + method}
	}
}

// submitUntilDone submits credentials from next on the same machine until
// one is accepted. An invalid credential that leaves the machine locked is
// reported and retried, so the PIN attempt counter carries across tries.
// Lockout and every other failure end the loop.
func submitUntilDone(ctx context.Context, m *unlock.Machine, next func() (unlock.Credential, error), report func(error)) error {
	for {
		c, err := next()
		if err != nil {
			return err
		}
		_, err = m.Submit(ctx, c)
		if !unlock.IsFailure(err, unlock.InvalidCredential) || m.State() != unlock.Locked {
			return err
		}
		report(err)
	}
}

func resolvePasswordChange(ctx context.Context, svc *service.Service, m *unlock.Machine) error {
	if m.State() != unlock.PasswordChangeRequired {
		return nil
	}
	fmt.Fprintln(os.Stderr, "Your master password does not meet your organization's policy and must be changed.")
	return changeMaster(ctx, svc, m)
}

func changeMaster(ctx context.Context, svc *service.Service, m *unlock.Machine) error {
	current, err := promptPassword("Current master password: ")
	if err != nil {
		return fmt.Errorf("read current master password: %w", err)
	}
	defer zeroBytes(current)
	newPw, err := promptPassword("New master password: ")
	if err != nil {
		return fmt.Errorf("read new master password: %w", err)
	}
	defer zeroBytes(newPw)
	confirm, err := promptPassword("Confirm new master password: ")
	if err != nil {
		return fmt.Errorf("read confirmation password: %w", err)
	}
	defer zeroBytes(confirm)
	if !bytes.Equal(newPw, confirm) {
		return userError{msg: "passwords do not match"}
	}

	policy, err := svc.Policy.MasterPasswordPolicyOptions(m.Session().User)
	if err != nil {
		return err
	}
	req := masterpassword.ChangeRequest{Current: string(current), New: string(newPw)}
	req.Validate.MinZXCVBNScore = 3
	req.Validate.EnableHIBP = true
	req.Validate.Policy = policy

	err = svc.ChangeMasterPassword(ctx, m, req)
	switch {
	case err == nil:
		fmt.Println("master password changed")
		return nil
	case errors.Is(err, masterpassword.ErrInvalidMasterPassword):
		return userError{msg: "Invalid master password."}
	case errors.Is(err, service.ErrVaultLocked):
		return userError{msg: "unlock the vault first"}
	case errors.Is(err, auth.ErrPolicyViolation):
		return userError{msg: "password does not meet policy requirements: " + err.Error()}
	}
	return err
}

func runOptions(args []string) error {
	fs, common := newFlagSet("options")
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
	opts, err := m.Options(context.Background())
	if err != nil {
		return fmt.Errorf("compute unlock options: %w", err)
	}
	printOptions(opts.MasterPassword.Enabled, opts.PIN.Enabled, opts.Biometrics.Enabled, opts.Biometrics.DisableReason.String())
	return nil
}

func printOptions(mp, pin, bio bool, bioReason string) {
	fmt.Printf("master password: %s\n", onOff(mp))
	fmt.Printf("pin:             %s\n", onOff(pin))
	if bio {
		fmt.Println("biometrics:      available")
	} else {
		fmt.Printf("biometrics:      unavailable (%s)\n", bioReason)
	}
}

func onOff(b bool) string {
	if b {
		return "available"
	}
	return "unavailable"
}

func runKdf(args []string) error {
	if len(args) == 0 || args[0] != "show" {
		return userError{msg: "usage: pm kdf show"}
	}
	fs, common := newFlagSet("kdf show")
	if err := parseFlags(fs, args[1:]); err != nil {
		return err
	}
	svc, err := openService(common)
	if err != nil {
		return err
	}
	defer svc.Close()
	acct, err := svc.Accounts.Active()
	if errors.Is(err, account.ErrNoActiveAccount) {
		return userError{msg: "not logged in; run pm login first"}
	}
	if err != nil {
		return err
	}
	cfg, err := svc.Accounts.KdfConfig(acct.ID)
	if err != nil {
		return err
	}
	p := cfg.DerivationParameters()
	fmt.Printf("algorithm:   %s\n", p.Algorithm)
	fmt.Printf("iterations:  %d\n", p.Iterations)
	if p.Algorithm == kdf.Argon2id {
		fmt.Printf("memory:      %d MiB\n", p.MemoryMiB)
		fmt.Printf("parallelism: %d\n", p.Parallelism)
	}
	return nil
}

func runLogout(args []string) error {
	fs, common := newFlagSet("logout")
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
	email := m.Session().Email
	if err := svc.Logout(m); err != nil {
		return err
	}
	fmt.Printf("logged out %s\n", email)
	return nil
}

func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	memguard.WipeBytes(b)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: pm <command> [--env <file>] [--dir <vault-dir>] [-v]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  version")
	fmt.Fprintln(os.Stderr, "  login --email <email> [--trust-device]")
	fmt.Fprintln(os.Stderr, "  session [--pin | --bio]")
	fmt.Fprintln(os.Stderr, "  options")
	fmt.Fprintln(os.Stderr, "  kdf show")
	fmt.Fprintln(os.Stderr, "  bio status")
	fmt.Fprintln(os.Stderr, "  logout")
}
