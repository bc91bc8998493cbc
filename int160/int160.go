// Package int160 implements the 160-bit node identifiers used by the
// Kademlia routing table, and the XOR distance metric over them.
package int160

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"math"
	"math/big"

	"github.com/anacrolix/dht/bencode"
	"github.com/anacrolix/dht/internal/errorsx"
)

// New derives a 160-bit value by hashing b with SHA1. Useful for deriving
// info-hash-shaped targets from arbitrary byte strings (e.g. immutable item
// values).
func New[Y string | []byte](b Y) (ret T) {
	v := sha1.Sum([]byte(b))
	copy(ret.bits[:], v[:])
	return
}

// RandomPrefixed returns a random ID whose leading bytes are fixed to b,
// useful for generating a target inside a specific routing-table bucket.
func RandomPrefixed(b string) (ret T, err error) {
	var buf [20]byte
	o := copy(buf[:], b)
	if _, err = rand.Read(buf[o:]); err != nil {
		return ret, errorsx.Wrap(err, "generating prefixed int160")
	}
	return FromByteArray(buf), nil
}

// Random returns a uniformly random 160-bit ID.
func Random() (id T) {
	n, err := rand.Read(id.bits[:])
	if err != nil {
		panic(err)
	}
	if n < len(id.bits[:]) {
		panic(io.ErrShortWrite)
	}
	return id
}

// T is an opaque 160-bit identifier, comparable and usable as a map key.
type T struct {
	bits [20]uint8
}

func (me T) String() string {
	return hex.EncodeToString(me.bits[:])
}

func (me T) AsByteArray() [20]byte {
	return me.bits
}

// ByteString returns the raw 20 bytes as a string, for use as a map key or
// wire value.
func (me T) ByteString() string {
	return string(me.bits[:])
}

// BitLen is the number of significant bits: one more than the index of the
// highest set bit, or 0 if the value is zero. Called on a Distance it orders
// IDs by distance exponent; RoutingTable subtracts one to get a bucket index.
func (me T) BitLen() int {
	var a big.Int
	a.SetBytes(me.bits[:])
	return a.BitLen()
}

func (me *T) SetBytes(b []byte) {
	n := copy(me.bits[:], b)
	if n != 20 {
		panic(n)
	}
}

// SetBit sets or clears bit `index` counting from the most significant bit
// of byte 0 (index 0 is the top bit of the ID).
func (me *T) SetBit(index int, val bool) {
	var orVal uint8
	if val {
		orVal = 1 << (7 - index%8)
	}
	var mask uint8 = ^(1 << (7 - index%8))
	me.bits[index/8] = me.bits[index/8]&mask | orVal
}

func (me T) GetBit(index int) bool {
	return me.bits[index/8]>>(7-index%8)&1 == 1
}

func (me T) Bytes() []byte {
	return me.bits[:]
}

// MarshalBencode encodes the ID as a 20-byte bencode string.
func (me T) MarshalBencode() ([]byte, error) {
	return bencode.Marshal(me.bits[:])
}

// UnmarshalBencode decodes a 20-byte bencode string into the ID.
func (me *T) UnmarshalBencode(b []byte) error {
	var s []byte
	err := bencode.Unmarshal(b, &s)
	if err == nil && len(s) != len(me.bits) {
		err = errorsx.Wrap(io.ErrUnexpectedEOF, "int160: id is not 20 bytes")
	}
	copy(me.bits[:], s)
	return err
}

// BytesMut exposes the underlying 20 bytes for in-place mutation. Unlike
// Bytes, this requires a pointer receiver so writes through the returned
// slice are visible to the caller's own T value.
func (me *T) BytesMut() []byte {
	return me.bits[:]
}

// Cmp gives a consistent total order (not a distance), used to break ties
// between two candidates equidistant from a target.
func (l T) Cmp(r T) int {
	return bytes.Compare(l.bits[:], r.bits[:])
}

func (me *T) SetMax() {
	for i := range me.bits {
		me.bits[i] = math.MaxUint8
	}
}

func (me *T) Xor(a, b *T) {
	for i := range me.bits {
		me.bits[i] = a.bits[i] ^ b.bits[i]
	}
}

func (me T) IsZero() bool {
	for _, b := range me.bits {
		if b != 0 {
			return false
		}
	}
	return true
}

func ByteArray(id T) [20]byte {
	return id.bits
}

func FromBytes(b []byte) (ret T) {
	ret.SetBytes(b)
	return
}

func FromByteArray(b [20]byte) (ret T) {
	ret.SetBytes(b[:])
	return
}

func FromByteString(s string) (ret T) {
	ret.SetBytes([]byte(s))
	return
}

// Distance is the XOR metric between two IDs.
func Distance(a, b T) (ret T) {
	ret.Xor(&a, &b)
	return
}

func (a T) Distance(b T) (ret T) {
	ret.Xor(&a, &b)
	return
}

// PrefixMask returns an ID with the top `bits` bits set to one and the rest
// zero, used to derive the boundary of a routing-table bucket.
func PrefixMask(bits int) (ret T) {
	for i := 0; i < bits; i++ {
		ret.SetBit(i, true)
	}
	return
}

// MinDistanceExp returns the minimum distance exponent from target over ids.
// Returns -1 if ids is empty.
func MinDistanceExp(target T, ids []T) int {
	min := -1
	for _, id := range ids {
		exp := target.Distance(id).BitLen()
		if min == -1 || exp < min {
			min = exp
		}
	}
	return min
}
