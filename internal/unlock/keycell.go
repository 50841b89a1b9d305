package unlock

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/Hussein-Mazeh/vaultlock/internal/keys"
)

// KeyCell holds the session's user key sealed in a memguard enclave. Many
// readers may open it; only the unlock flow writes it and only lock or
// logout clear it.
type KeyCell struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
	nextID  int
	subs    map[int]chan bool
}

// NewKeyCell returns an empty cell.
func NewKeyCell() *KeyCell {
	return &KeyCell{subs: make(map[int]chan bool)}
}

// Set installs uk, replacing any previous key.
func (c *KeyCell) Set(uk keys.UserKey) error {
	if uk.IsZero() {
		return fmt.Errorf("install user key: %w", keys.ErrInvalidKey)
	}
	// NewEnclave wipes its input.
	e := memguard.NewEnclave(uk.Bytes())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.enclave = e
	c.notify(true)
	return nil
}

// UserKey returns a copy of the installed key, or ErrLocked.
func (c *KeyCell) UserKey() (keys.UserKey, error) {
	c.mu.RLock()
	e := c.enclave
	c.mu.RUnlock()
	if e == nil {
		return keys.UserKey{}, ErrLocked
	}

	buf, err := e.Open()
	if err != nil {
		return keys.UserKey{}, fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()
	return keys.UserKeyFromBytes(buf.Bytes())
}

// IsSet reports whether a key is installed.
func (c *KeyCell) IsSet() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enclave != nil
}

// Clear drops the installed key.
func (c *KeyCell) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enclave == nil {
		return
	}
	c.enclave = nil
	c.notify(false)
}

// Subscribe returns a channel receiving true when a key is installed and
// false when it is cleared. Only the latest value is buffered.
func (c *KeyCell) Subscribe() (<-chan bool, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	ch := make(chan bool, 1)
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// notify must be called with mu held.
func (c *KeyCell) notify(unlocked bool) {
	for _, ch := range c.subs {
		select {
		case ch <- unlocked:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- unlocked
		}
	}
}
