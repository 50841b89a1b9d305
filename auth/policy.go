package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/Hussein-Mazeh/vaultlock/internal/api"
)

const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_{|}~`"

// ErrPolicyViolation is wrapped by every policy failure returned from
// ValidateMasterPasswordAdvanced.
var ErrPolicyViolation = errors.New("master password does not meet policy")

// PolicyOptions is an enforced master-password policy.
type PolicyOptions struct {
	MinComplexity  int
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireNumbers bool
	RequireSpecial bool
	EnforceOnLogin bool
}

// PolicyFromResponse converts the server policy. A nil response yields nil.
func PolicyFromResponse(r *api.MasterPasswordPolicyResponse) *PolicyOptions {
	if r == nil {
		return nil
	}
	return &PolicyOptions{
		MinComplexity:  r.MinComplexity,
		MinLength:      r.MinLength,
		RequireUpper:   r.RequireUpper,
		RequireLower:   r.RequireLower,
		RequireNumbers: r.RequireNumbers,
		RequireSpecial: r.RequireSpecial,
		EnforceOnLogin: r.EnforceOnLogin,
	}
}

// InEffect reports whether o imposes any requirement.
func (o *PolicyOptions) InEffect() bool {
	if o == nil {
		return false
	}
	return o.MinComplexity > 0 || o.MinLength > 0 ||
		o.RequireUpper || o.RequireLower || o.RequireNumbers || o.RequireSpecial
}

// Strength returns the zxcvbn score (0..4) of pw. The email's local part and
// domain words are passed as user inputs so that passwords built from them
// score low.
func Strength(pw, email string) int {
	return zxcvbn.PasswordStrength(pw, userInputs(email)).Score
}

func userInputs(email string) []string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	var out []string
	local, domain, _ := strings.Cut(email, "@")
	out = append(out, strings.FieldsFunc(local, isSeparator)...)
	out = append(out, strings.FieldsFunc(domain, isSeparator)...)
	return out
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// EvaluateMasterPassword reports whether pw with zxcvbn score satisfies opts.
// A nil policy is always satisfied.
func EvaluateMasterPassword(score int, pw string, opts *PolicyOptions) bool {
	return policyError(score, pw, opts) == nil
}

func policyError(score int, pw string, opts *PolicyOptions) error {
	if opts == nil {
		return nil
	}
	if opts.MinComplexity > 0 && score < opts.MinComplexity {
		return fmt.Errorf("%w: password strength %d is below %d", ErrPolicyViolation, score, opts.MinComplexity)
	}
	if opts.MinLength > 0 && len([]rune(pw)) < opts.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters long", ErrPolicyViolation, opts.MinLength)
	}
	if opts.RequireUpper && !hasUpper(pw) {
		return fmt.Errorf("%w: password must include an uppercase letter", ErrPolicyViolation)
	}
	if opts.RequireLower && !hasLower(pw) {
		return fmt.Errorf("%w: password must include a lowercase letter", ErrPolicyViolation)
	}
	if opts.RequireNumbers && !hasDigit(pw) {
		return fmt.Errorf("%w: password must include a digit", ErrPolicyViolation)
	}
	if opts.RequireSpecial && !hasSpecial(pw) {
		return fmt.Errorf("%w: password must include a special character", ErrPolicyViolation)
	}
	return nil
}

// ValidateMasterPassword applies the baseline master password requirements
// used when choosing a new password.
func ValidateMasterPassword(pw string) error {
	if len(pw) < 12 {
		return errors.New("password must be at least 12 characters long")
	}
	if !hasUpper(pw) {
		return errors.New("password must include an uppercase letter")
	}
	if !hasDigit(pw) {
		return errors.New("password must include a digit")
	}
	if !hasSpecial(pw) {
		return errors.New("password must include a special character")
	}
	return nil
}

// ValidateOptions tunes ValidateMasterPasswordAdvanced.
type ValidateOptions struct {
	// MinZXCVBNScore rejects passwords scoring below it (0 disables).
	MinZXCVBNScore int
	// EnableHIBP checks the password against the breach corpus.
	EnableHIBP bool
	// HIBP overrides the breach lookup client.
	HIBP *HIBPClient
	// Email feeds the strength estimator.
	Email string
	// Policy is an enforced organization policy, if any.
	Policy *PolicyOptions
}

// DefaultValidateOptions returns the baseline options: strength 3, no HIBP.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{MinZXCVBNScore: 3}
}

// ValidateMasterPasswordAdvanced runs the baseline checks, the optional
// policy, a zxcvbn score floor and an optional HIBP lookup. HIBP transport
// failures are returned wrapped; callers decide whether to fail open.
func ValidateMasterPasswordAdvanced(ctx context.Context, pw string, opts ValidateOptions) error {
	if err := ValidateMasterPassword(pw); err != nil {
		return fmt.Errorf("%w: %v", ErrPolicyViolation, err)
	}
	score := Strength(pw, opts.Email)
	if err := policyError(score, pw, opts.Policy); err != nil {
		return err
	}
	if opts.MinZXCVBNScore > 0 && score < opts.MinZXCVBNScore {
		return fmt.Errorf("%w: password is too easy to guess", ErrPolicyViolation)
	}
	if opts.EnableHIBP {
		client := opts.HIBP
		if client == nil {
			client = DefaultHIBPClient
		}
		res, err := client.Check(ctx, pw)
		if err != nil {
			return err
		}
		if res.Found {
			return fmt.Errorf("%w: password appears in %d known breaches", ErrPolicyViolation, res.Count)
		}
	}
	return nil
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func hasLower(s string) bool {
	for _, r := range s {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func hasSpecial(s string) bool {
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) {
			return true
		}
	}
	return false
}
