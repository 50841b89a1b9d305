package api

import "github.com/Hussein-Mazeh/vaultlock/internal/kdf"

// PreloginRequest asks for the KDF settings of an email before login.
type PreloginRequest struct {
	Email string `json:"email"`
}

// SecretVerificationRequest proves knowledge of the master password.
type SecretVerificationRequest struct {
	MasterPasswordHash string `json:"masterPasswordHash"`
}

// MasterPasswordPolicyResponse is the enforced master-password policy, if any.
type MasterPasswordPolicyResponse struct {
	MinComplexity  int  `json:"minComplexity"`
	MinLength      int  `json:"minLength"`
	RequireUpper   bool `json:"requireUpper"`
	RequireLower   bool `json:"requireLower"`
	RequireNumbers bool `json:"requireNumbers"`
	RequireSpecial bool `json:"requireSpecial"`
	EnforceOnLogin bool `json:"enforceOnLogin"`
}

// UserDecryptionOptionsResponse describes how an account's user key can be
// obtained. Absent options are nil.
type UserDecryptionOptionsResponse struct {
	HasMasterPassword    bool                          `json:"hasMasterPassword"`
	MasterPasswordUnlock *MasterPasswordUnlockResponse `json:"masterPasswordUnlock,omitempty"`
	TrustedDeviceOption  *TrustedDeviceOptionResponse  `json:"trustedDeviceOption,omitempty"`
	KeyConnectorOption   *KeyConnectorOptionResponse   `json:"keyConnectorOption,omitempty"`
	WebAuthnPrfOption    *WebAuthnPrfOptionResponse    `json:"webAuthnPrfOption,omitempty"`
}

// MasterPasswordUnlockResponse carries what is needed to unlock with the
// master password.
type MasterPasswordUnlockResponse struct {
	Salt                      string   `json:"salt"`
	Kdf                       kdf.Wire `json:"kdf"`
	MasterKeyEncryptedUserKey string   `json:"masterKeyEncryptedUserKey"`
}

// TrustedDeviceOptionResponse is present for accounts using device trust.
type TrustedDeviceOptionResponse struct {
	HasAdminApproval                 bool   `json:"hasAdminApproval"`
	HasLoginApprovingDevice          bool   `json:"hasLoginApprovingDevice"`
	HasManageResetPasswordPermission bool   `json:"hasManageResetPasswordPermission"`
	IsTdeOffboarding                 bool   `json:"isTdeOffboarding"`
	EncryptedPrivateKey              string `json:"encryptedPrivateKey,omitempty"`
	EncryptedUserKey                 string `json:"encryptedUserKey,omitempty"`
}

// KeyConnectorOptionResponse is present for key-connector accounts.
type KeyConnectorOptionResponse struct {
	KeyConnectorURL string `json:"keyConnectorUrl"`
}

// WebAuthnPrfOptionResponse is present when a passkey can unlock the account.
type WebAuthnPrfOptionResponse struct {
	EncryptedPrivateKey string `json:"encryptedPrivateKey,omitempty"`
	EncryptedUserKey    string `json:"encryptedUserKey,omitempty"`
}

// PasswordRequest changes the master password.
type PasswordRequest struct {
	MasterPasswordHash    string `json:"masterPasswordHash"`
	NewMasterPasswordHash string `json:"newMasterPasswordHash"`
	MasterPasswordHint    string `json:"masterPasswordHint,omitempty"`
	Key                   string `json:"key"`
}

// TrustedDeviceKeysRequest uploads the keys that let a trusted device
// decrypt the user key.
type TrustedDeviceKeysRequest struct {
	EncryptedUserKey    string `json:"encryptedUserKey"`
	EncryptedPublicKey  string `json:"encryptedPublicKey"`
	EncryptedPrivateKey string `json:"encryptedPrivateKey"`
}

// DeviceResponse is the server view of a device after a key update.
type DeviceResponse struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	IsTrusted  bool   `json:"isTrusted"`
}
