package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Hussein-Mazeh/vaultlock/internal/bio/platform"
	"github.com/Hussein-Mazeh/vaultlock/internal/service"
	"github.com/Hussein-Mazeh/vaultlock/internal/unlock"
)

func runSession(args []string) error {
	fs, common := newFlagSet("session")
	var usePin, useBio bool
	fs.BoolVar(&usePin, "pin", false, "unlock with the PIN")
	fs.BoolVar(&useBio, "bio", false, "unlock with biometrics")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if usePin && useBio {
		return userError{msg: "choose one of --pin and --bio"}
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

	ctx := context.Background()
	if err := unlockUntilDone(ctx, svc, m, usePin, useBio); err != nil {
		return err
	}
	if err := resolvePasswordChange(ctx, svc, m); err != nil {
		return err
	}

	fmt.Println("session unlocked; type 'help' for commands")
	return sessionLoop(ctx, svc, m)
}

// unlockUntilDone picks a method and prompts until the machine accepts a
// credential. After a failed biometric prompt the choice falls back to the
// automatic one, which skips a cancelled prompt.
func unlockUntilDone(ctx context.Context, svc *service.Service, m *unlock.Machine, usePin, useBio bool) error {
	next := func() (unlock.Credential, error) {
		method, err := pickMethod(ctx, svc, m, usePin, useBio)
		if err != nil {
			return nil, err
		}
		if method == "bio" {
			useBio = false
		}
		return readCredential(method)
	}
	return submitUntilDone(ctx, m, next, handleSessionError)
}

// pickMethod prefers an explicit flag, then an automatic biometric prompt
// unless the user dismissed the last one, then the master password.
func pickMethod(ctx context.Context, svc *service.Service, m *unlock.Machine, usePin, useBio bool) (string, error) {
	switch {
	case usePin:
		return "pin", nil
	case useBio:
		return "bio", nil
	}
	opts, err := m.Options(ctx)
	if err != nil {
		return "", fmt.Errorf("compute unlock options: %w", err)
	}
	if opts.Biometrics.Enabled {
		cancelled, err := svc.Bio.PromptCancelled(m.Session().User)
		if err != nil {
			return "", err
		}
		if !cancelled {
			return "bio", nil
		}
	}
	if !opts.MasterPassword.Enabled && opts.PIN.Enabled {
		return "pin", nil
	}
	return "password", nil
}

func sessionLoop(ctx context.Context, svc *service.Service, m *unlock.Machine) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("pm> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Println()
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		var err error
		switch cmd {
		case "help":
			printSessionHelp()
		case "status":
			fmt.Printf("%s (%s)\n", m.State(), m.Session().Email)
		case "options":
			err = sessionOptions(ctx, m)
		case "lock":
			if err = m.Lock(); err == nil {
				fmt.Println("locked")
			}
		case "unlock":
			err = sessionUnlock(ctx, svc, m, args)
		case "pin":
			err = sessionPin(svc, m, args)
		case "bio":
			err = sessionBio(ctx, svc, m, args)
		case "master":
			if len(args) != 1 || args[0] != "change" {
				err = userError{msg: "usage: master change"}
				break
			}
			err = changeMaster(ctx, svc, m)
		case "logout":
			if err = svc.Logout(m); err == nil {
				fmt.Println("logged out")
				return nil
			}
		case "exit", "quit":
			return nil
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		}
		if err != nil {
			handleSessionError(err)
		}
		if m.State() == unlock.LoggedOut {
			return nil
		}
	}
}

func sessionOptions(ctx context.Context, m *unlock.Machine) error {
	opts, err := m.Options(ctx)
	if err != nil {
		return err
	}
	printOptions(opts.MasterPassword.Enabled, opts.PIN.Enabled, opts.Biometrics.Enabled, opts.Biometrics.DisableReason.String())
	return nil
}

func sessionUnlock(ctx context.Context, svc *service.Service, m *unlock.Machine, args []string) error {
	fs := flag.NewFlagSet("unlock", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var usePin, useBio bool
	fs.BoolVar(&usePin, "pin", false, "unlock with the PIN")
	fs.BoolVar(&useBio, "bio", false, "unlock with biometrics")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := unlockUntilDone(ctx, svc, m, usePin, useBio); err != nil {
		return err
	}
	fmt.Println(m.State())
	return resolvePasswordChange(ctx, svc, m)
}

func sessionPin(svc *service.Service, m *unlock.Machine, args []string) error {
	if len(args) == 0 {
		return userError{msg: "usage: pin <set [--ephemeral] | clear>"}
	}
	switch args[0] {
	case "set":
		fs := flag.NewFlagSet("pin set", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var ephemeral bool
		fs.BoolVar(&ephemeral, "ephemeral", false, "require the master password after a restart")
		if err := parseFlags(fs, args[1:]); err != nil {
			return err
		}
		p, err := promptPassword("New PIN: ")
		if err != nil {
			return fmt.Errorf("read pin: %w", err)
		}
		defer zeroBytes(p)
		if len(p) == 0 {
			return userError{msg: "pin cannot be empty"}
		}
		if err := svc.SetPin(m, string(p), ephemeral); err != nil {
			if errors.Is(err, service.ErrVaultLocked) {
				return userError{msg: "unlock the vault first"}
			}
			return err
		}
		fmt.Println("pin set")
		return nil
	case "clear":
		if err := svc.Pin.ClearPin(m.Session().User); err != nil {
			return err
		}
		fmt.Println("pin cleared")
		return nil
	default:
		return userError{msg: "unknown pin subcommand"}
	}
}

func sessionBio(ctx context.Context, svc *service.Service, m *unlock.Machine, args []string) error {
	if len(args) != 1 {
		return userError{msg: "usage: bio <enable | disable | status>"}
	}
	user := m.Session().User
	switch args[0] {
	case "enable":
		err := svc.EnableBiometrics(ctx, m)
		switch {
		case err == nil:
			fmt.Println("biometric unlock enabled")
			return nil
		case errors.Is(err, platform.ErrUnsupported):
			return userError{msg: "biometric unlock is only supported on macOS"}
		case errors.Is(err, service.ErrVaultLocked):
			return userError{msg: "unlock the vault first"}
		}
		return err
	case "disable":
		if err := svc.Bio.Disable(user); err != nil {
			return err
		}
		fmt.Println("biometric unlock disabled")
		return nil
	case "status":
		return printBioStatus(ctx, svc.Bio, user)
	default:
		return userError{msg: "unknown bio subcommand"}
	}
}

func handleSessionError(err error) {
	if err == nil {
		return
	}

	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		return
	}
	var f *unlock.Failure
	if errors.As(err, &f) {
		msg := f.Error()
		if f.Kind == unlock.InvalidCredential && f.Method == unlock.MethodPIN {
			msg = fmt.Sprintf("%s %d attempts remaining.", msg, f.Remaining)
		}
		fmt.Fprintln(os.Stderr, msg)
		return
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)
}

func printSessionHelp() {
	fmt.Println("Commands:")
	fmt.Println("  status | options")
	fmt.Println("  lock | unlock [--pin | --bio]")
	fmt.Println("  pin set [--ephemeral] | pin clear")
	fmt.Println("  bio enable | bio disable | bio status")
	fmt.Println("  master change")
	fmt.Println("  logout")
	fmt.Println("  exit | quit")
}
