//go:build darwin

// Biometric keys live in the macOS Keychain as generic passwords, one item
// per user id, device-local and readable only while the device is unlocked.

package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	keychain "github.com/keybase/go-keychain"
)

const keychainLabel = "vaultlock biometric key"

// SupportsBiometric reports true: macOS ships LocalAuthentication.
func (n *Native) SupportsBiometric(context.Context) (bool, error) { return true, nil }

// SupportsSecureStorage reports true: keys are kept in the Keychain.
func (n *Native) SupportsSecureStorage() bool { return true }

// IsReady reports whether biometrics are enrolled and usable right now.
func (n *Native) IsReady(context.Context) (bool, error) { return canEvaluate(), nil }

// Authenticate shows the Touch ID prompt.
func (n *Native) Authenticate(_ context.Context, reason string) error {
	return prompt(reason)
}

// SetKey stores key for user, replacing any previous item.
func (n *Native) SetKey(user uuid.UUID, key []byte) error {
	item := keychain.NewGenericPassword(n.service, user.String(), keychainLabel, key, "")
	item.SetSynchronizable(keychain.SynchronizableNo)
	item.SetAccessible(keychain.AccessibleWhenUnlockedThisDeviceOnly)

	if err := keychain.AddItem(item); err != nil {
		if errors.Is(err, keychain.ErrorDuplicateItem) {
			query := keychain.NewGenericPassword(n.service, user.String(), "", nil, "")
			update := keychain.NewItem()
			update.SetData(key)
			if err := keychain.UpdateItem(query, update); err != nil {
				return fmt.Errorf("update biometric key: %w", err)
			}
			return nil
		}
		return fmt.Errorf("add biometric key to keychain: %w", err)
	}
	return nil
}

// GetKey reads the key stored for user.
func (n *Native) GetKey(user uuid.UUID) ([]byte, error) {
	data, err := keychain.GetGenericPassword(n.service, user.String(), "", "")
	if err != nil {
		return nil, fmt.Errorf("read biometric key: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

// HasKey reports whether a key is stored for user.
func (n *Native) HasKey(user uuid.UUID) (bool, error) {
	_, err := n.GetKey(user)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// DeleteKey removes the key for user. Missing items are not an error.
func (n *Native) DeleteKey(user uuid.UUID) error {
	query := keychain.NewGenericPassword(n.service, user.String(), "", nil, "")
	if err := keychain.DeleteItem(query); err != nil && !errors.Is(err, keychain.ErrorItemNotFound) {
		return fmt.Errorf("remove biometric key from keychain: %w", err)
	}
	return nil
}
