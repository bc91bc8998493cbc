package bep44

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/dht/int160"
)

func TestBoundedStoreEvictsFarthest(t *testing.T) {
	self := int160.FromByteArray([20]byte{})
	b := NewBounded(NewMemory(), self, 2)

	near, err := NewItem([]byte("near"), nil, 0, nil, nil)
	require.NoError(t, err)
	require.NoError(t, b.Put(near))

	far, err := NewItem([]byte("far value that still hashes somewhere"), nil, 0, nil, nil)
	require.NoError(t, err)
	require.NoError(t, b.Put(far))

	assert.Len(t, b.targets, 2)

	// A third distinct item forces an eviction; the store must still be
	// queryable afterwards without error.
	third, err := NewItem([]byte("a third value"), nil, 0, nil, nil)
	require.NoError(t, err)
	require.NoError(t, b.Put(third))
	assert.LessOrEqual(t, len(b.targets), 2)

	// Whichever of the three targets didn't survive eviction must be
	// unreadable, not just untracked: a stale entry left behind in the
	// backing store would otherwise still answer Get forever.
	all := []Put{near, far, third}
	for _, p := range all {
		target := p.Target()
		_, tracked := b.targets[target]
		_, err := b.Get(target)
		if tracked {
			assert.NoError(t, err)
		} else {
			assert.Equal(t, ErrItemNotFound, err)
		}
	}
}
