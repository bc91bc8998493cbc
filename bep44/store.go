package bep44

import (
	"errors"
	"sync"
	"time"
)

// ErrItemNotFound is returned by Store.Get/Wrapper.Get when no item lives
// at the requested target, or it has expired.
var ErrItemNotFound = errors.New("bep44: item not found")

// ErrCasMismatch is returned when a mutable put's cas argument doesn't
// match the currently stored item's sequence number (krpc error 301).
var ErrCasMismatch = errors.New("bep44: cas mismatch")

// ErrSequenceNumberLessThanCurrent is returned when a mutable put's seq is
// lower than the currently stored item's (krpc error 302).
var ErrSequenceNumberLessThanCurrent = errors.New("bep44: sequence number less than current")

// Store persists BEP-44 items keyed by target id, with no expiry policy of
// its own.
type Store interface {
	Put(Put) error
	Get(target [20]byte) (Put, error)
	Delete(target [20]byte) error
}

type memory struct {
	mu    sync.Mutex
	items map[[20]byte]Put
}

// NewMemory returns a Store backed by an in-memory map, never expiring
// entries on its own.
func NewMemory() Store {
	return &memory{items: make(map[[20]byte]Put)}
}

func (m *memory) Put(p Put) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[p.Target()] = p
	return nil
}

func (m *memory) Get(target [20]byte) (Put, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[target]
	if !ok {
		return Put{}, ErrItemNotFound
	}
	return p, nil
}

func (m *memory) Delete(target [20]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, target)
	return nil
}

type entry struct {
	p       Put
	expires time.Time
}

// Wrapper adds a fixed TTL and BEP-44 CAS/sequence-number enforcement on
// top of an underlying Store.
type Wrapper struct {
	mu      sync.Mutex
	backing Store
	ttl     time.Duration
	expiry  map[[20]byte]time.Time
}

// NewWrapper returns a Wrapper over store, expiring items ttl after their
// most recent put.
func NewWrapper(store Store, ttl time.Duration) *Wrapper {
	return &Wrapper{backing: store, ttl: ttl, expiry: make(map[[20]byte]time.Time)}
}

// Put stores p, enforcing BEP-44 CAS and monotonic-sequence rules for
// mutable items already present.
func (w *Wrapper) Put(p Put) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	target := p.Target()
	if p.Mutable() {
		existing, err := w.backing.Get(target)
		if err == nil {
			// An item already lives at this target. A cas constraint, if
			// the putter supplied one, must match the version it saw;
			// a put with no cas at all is unconditional.
			if p.Cas != nil && *p.Cas != existing.Seq {
				return ErrCasMismatch
			}
			if p.Seq < existing.Seq {
				return ErrSequenceNumberLessThanCurrent
			}
		}
	}
	if err := w.backing.Put(p); err != nil {
		return err
	}
	w.expiry[target] = time.Now().Add(w.ttl)
	return nil
}

// Get returns the item at target, or ErrItemNotFound if absent or expired.
func (w *Wrapper) Get(target [20]byte) (Put, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	exp, ok := w.expiry[target]
	if !ok || time.Now().After(exp) {
		return Put{}, ErrItemNotFound
	}
	return w.backing.Get(target)
}

// Delete removes the item at target from both the expiry index and the
// backing store.
func (w *Wrapper) Delete(target [20]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.expiry, target)
	return w.backing.Delete(target)
}
