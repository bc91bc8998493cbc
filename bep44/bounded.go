package bep44

import "github.com/anacrolix/dht/int160"

// BoundedStore caps the number of items held, evicting the item farthest
// (by XOR distance) from a reference node ID once capacity is exceeded.
// This bounds storage growth from unsolicited puts while preferring to
// keep items this node is itself topologically responsible for.
type BoundedStore struct {
	self     int160.T
	capacity int
	backing  Store
	targets  map[[20]byte]struct{}
}

// NewBounded wraps backing with a capacity limit, evicting by distance
// from self (normally the node's own ID) when full.
func NewBounded(backing Store, self int160.T, capacity int) *BoundedStore {
	return &BoundedStore{self: self, capacity: capacity, backing: backing, targets: make(map[[20]byte]struct{})}
}

// Put stores p, evicting the farthest tracked item if at capacity. An
// update to an already-tracked target never needs eviction. A brand new
// item whose distance exponent from self is no smaller than that of every
// existing entry is dropped silently rather than admitted past the cap.
func (b *BoundedStore) Put(p Put) error {
	target := p.Target()
	if _, exists := b.targets[target]; !exists && len(b.targets) >= b.capacity {
		if !b.makeRoomFor(target) {
			return nil
		}
	}
	if err := b.backing.Put(p); err != nil {
		return err
	}
	b.targets[target] = struct{}{}
	return nil
}

// Get returns ErrItemNotFound for anything not currently tracked, even if
// it still lingers in the backing store (it shouldn't, once evicted, but
// this keeps the two from ever disagreeing).
func (b *BoundedStore) Get(target [20]byte) (Put, error) {
	if _, ok := b.targets[target]; !ok {
		return Put{}, ErrItemNotFound
	}
	return b.backing.Get(target)
}

// Delete untracks target and removes it from the backing store.
func (b *BoundedStore) Delete(target [20]byte) error {
	delete(b.targets, target)
	return b.backing.Delete(target)
}

// makeRoomFor evicts the tracked item with the largest distance exponent
// from self if candidate's exponent is smaller, returning whether room was
// made. Returns false (leaving the store untouched) otherwise, including
// when the exponents are equal.
func (b *BoundedStore) makeRoomFor(candidate [20]byte) bool {
	var farthest [20]byte
	maxExp := -1
	for t := range b.targets {
		exp := b.self.Distance(int160.FromByteArray(t)).BitLen()
		if exp > maxExp {
			maxExp = exp
			farthest = t
		}
	}
	candidateExp := b.self.Distance(int160.FromByteArray(candidate)).BitLen()
	if candidateExp >= maxExp {
		return false
	}
	delete(b.targets, farthest)
	b.backing.Delete(farthest)
	return true
}
