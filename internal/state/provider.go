package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const globalScope = "global"

// Provider routes Definitions to their store, encodes values as JSON and
// notifies subscribers on change.
type Provider struct {
	disk   Store
	memory Store
	log    zerolog.Logger

	mu   sync.Mutex
	subs map[string]map[int]chan struct{}
	next int
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger used for state events.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// NewProvider builds a Provider. A nil disk store falls back to memory, which
// is what tests and ephemeral sessions want.
func NewProvider(disk Store, opts ...Option) *Provider {
	p := &Provider{
		disk:   disk,
		memory: NewMemoryStore(),
		log:    zerolog.Nop(),
		subs:   map[string]map[int]chan struct{}{},
	}
	if p.disk == nil {
		p.disk = NewMemoryStore()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func scopeOf(user uuid.UUID) string {
	if user == uuid.Nil {
		return globalScope
	}
	return user.String()
}

func (p *Provider) storeFor(d Definition) Store {
	if d.Location == Disk {
		return p.disk
	}
	return p.memory
}

func subKey(scope, name string) string { return scope + "/" + name }

// GetRaw returns the encoded value or ErrNotFound.
func (p *Provider) GetRaw(user uuid.UUID, d Definition) ([]byte, error) {
	return p.storeFor(d).Get(scopeOf(user), d.Name)
}

// SetRaw stores an encoded value.
func (p *Provider) SetRaw(user uuid.UUID, d Definition, value []byte) error {
	scope := scopeOf(user)
	if err := p.storeFor(d).Put(scope, d.Name, value); err != nil {
		return fmt.Errorf("state: set %s: %w", d.Name, err)
	}
	p.notify(scope, d.Name)
	return nil
}

// Remove deletes a value. Removing a missing value is not an error.
func (p *Provider) Remove(user uuid.UUID, d Definition) error {
	scope := scopeOf(user)
	if err := p.storeFor(d).Delete(scope, d.Name); err != nil {
		return fmt.Errorf("state: remove %s: %w", d.Name, err)
	}
	p.notify(scope, d.Name)
	return nil
}

// Has reports whether a value is stored.
func (p *Provider) Has(user uuid.UUID, d Definition) (bool, error) {
	_, err := p.GetRaw(user, d)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get decodes the value for d into a T. The boolean is false when unset.
func Get[T any](p *Provider, user uuid.UUID, d Definition) (T, bool, error) {
	var out T
	raw, err := p.GetRaw(user, d)
	if errors.Is(err, ErrNotFound) {
		return out, false, nil
	}
	if err != nil {
		return out, false, fmt.Errorf("state: get %s: %w", d.Name, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("state: decode %s: %w", d.Name, err)
	}
	return out, true, nil
}

// Set encodes v and stores it under d.
func Set[T any](p *Provider, user uuid.UUID, d Definition, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", d.Name, err)
	}
	return p.SetRaw(user, d, raw)
}

// Subscribe returns a channel that receives a signal after every change to
// d for user. Signals coalesce; call cancel to release the subscription.
func (p *Provider) Subscribe(user uuid.UUID, d Definition) (<-chan struct{}, func()) {
	key := subKey(scopeOf(user), d.Name)
	ch := make(chan struct{}, 1)

	p.mu.Lock()
	id := p.next
	p.next++
	if p.subs[key] == nil {
		p.subs[key] = map[int]chan struct{}{}
	}
	p.subs[key][id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs[key], id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) notify(scope, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs[subKey(scope, name)] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ClearOn removes every registered value for user whose Definition is
// cleared by ev.
func (p *Provider) ClearOn(user uuid.UUID, ev Clear) error {
	var errs []error
	for _, d := range definitionsClearedBy(ev) {
		if err := p.Remove(user, d); err != nil {
			errs = append(errs, err)
		}
	}
	p.log.Debug().Str("scope", scopeOf(user)).Uint8("event", uint8(ev)).Msg("state cleared")
	return errors.Join(errs...)
}
