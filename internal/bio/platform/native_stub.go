//go:build !darwin

package platform

import (
	"context"

	"github.com/google/uuid"
)

// SupportsBiometric reports false on non-macOS platforms.
func (n *Native) SupportsBiometric(context.Context) (bool, error) { return false, nil }

// SupportsSecureStorage reports false on non-macOS platforms.
func (n *Native) SupportsSecureStorage() bool { return false }

// IsReady reports false on non-macOS platforms.
func (n *Native) IsReady(context.Context) (bool, error) { return false, nil }

// Authenticate is unavailable on non-macOS platforms.
func (n *Native) Authenticate(context.Context, string) error { return ErrUnsupported }

// GetKey is unavailable on non-macOS platforms.
func (n *Native) GetKey(uuid.UUID) ([]byte, error) { return nil, ErrUnsupported }

// SetKey is unavailable on non-macOS platforms.
func (n *Native) SetKey(uuid.UUID, []byte) error { return ErrUnsupported }

// DeleteKey is unavailable on non-macOS platforms.
func (n *Native) DeleteKey(uuid.UUID) error { return ErrUnsupported }

// HasKey reports false on non-macOS platforms.
func (n *Native) HasKey(uuid.UUID) (bool, error) { return false, nil }
