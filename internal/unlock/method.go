package unlock

import "fmt"

// Method identifies an unlock path.
type Method int

const (
	MethodMasterPassword Method = iota + 1
	MethodPIN
	MethodBiometrics
)

func (m Method) String() string {
	switch m {
	case MethodMasterPassword:
		return "master-password"
	case MethodPIN:
		return "pin"
	case MethodBiometrics:
		return "biometrics"
	default:
		panic(fmt.Sprintf("unlock: unknown method %d", int(m)))
	}
}

// Credential is what the user submits to unlock. The set of implementations
// is closed: MasterPassword, PIN and Biometrics.
type Credential interface {
	Method() Method
	sealed()
}

// MasterPassword unlocks with the account's master password.
type MasterPassword struct{ Password string }

// PIN unlocks with the PIN set on this device.
type PIN struct{ Pin string }

// Biometrics unlocks through the platform biometric prompt.
type Biometrics struct{}

func (MasterPassword) Method() Method { return MethodMasterPassword }
func (PIN) Method() Method            { return MethodPIN }
func (Biometrics) Method() Method     { return MethodBiometrics }

func (MasterPassword) sealed() {}
func (PIN) sealed()            {}
func (Biometrics) sealed()     {}
