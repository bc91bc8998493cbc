package bloom

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyFilter(t *testing.T) {
	f := New()
	assert.Equal(t, 0, f.Size())
	assert.Len(t, f.Bytes(), Bytes)
}

func TestAddedAddressTests(t *testing.T) {
	f := New()
	addr := []byte{192, 168, 1, 1, 0x1a, 0xe1}
	f.Add(addr)
	assert.True(t, f.Test(addr))
}

// BEP-33's scrape scenario has 50 seeds and 50 leeches in two separate
// filters, so one filter with 50 unique insertions should produce a
// size() estimate within +/-3 of 50.
func TestSizeEstimateWithinToleranceOfFiftyInsertions(t *testing.T) {
	f := New()
	for i := 0; i < 50; i++ {
		addr := make([]byte, 6)
		_, err := rand.Read(addr)
		require.NoError(t, err)
		f.Add(addr)
	}
	size := f.Size()
	assert.InDelta(t, 50, size, 3)
}

func TestFromBytesRoundTrip(t *testing.T) {
	f := New()
	f.Add([]byte{1, 2, 3, 4, 5, 6})
	f2 := FromBytes(f.Bytes())
	assert.Equal(t, f.Bytes(), f2.Bytes())
}

func TestSaturatedFilterReportsCapacity(t *testing.T) {
	f := New()
	for i := range f.bits {
		f.bits[i] = 0xff
	}
	assert.Equal(t, Bits, f.Size())
}
