package bep44

import (
	"encoding/hex"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/stretchr/testify/require"
)

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestVectorMutableWithSalt(t *testing.T) {
	c := qt.New(t)
	salt := []byte("foobar")
	bv := []byte("12:Hello World!")
	var seq int64 = 1
	c.Check(
		bufferToSign(salt, bv, seq),
		qt.DeepEquals,
		[]byte("4:salt6:foobar3:seqi1e1:v12:Hello World!"))

	privKey := mustDecodeHex(
		"e06d3183d14159228433ed599221b80bd0a5ce8352e4bdf0262f76786ef1c74d" +
			"b7e7a9fea2c0eb269d61e3b38e450a22e754941ac78479d6c54e1faf6037881d")
	sig := mustDecodeHex(
		"6834284b6b24c3204eb2fea824d82f88883a3d95e8b4a21b8c0ded553d17d17d" +
			"df9a8a7104b1258f30bed3787e6cb896fca78c58f8e03b5f18f14951a87d9a08")
	pubKey := mustDecodeHex("77ff84905a91936367c01360803104f92432fcd904a43511876df5cdf3e7e548")
	c.Check(
		EdwardsSignSha512(*(*[64]byte)(privKey), pubKey, bufferToSign(salt, bv, seq)),
		qt.DeepEquals,
		sig)

	expectedTarget := mustDecodeHex("411eba73b6f087ca51a3795d9c8c938d365e32c1")
	put := Put{V: "Hello World!", K: (*[32]byte)(pubKey), Salt: salt}
	target := put.Target()
	c.Check(target[:], qt.DeepEquals, expectedTarget)
}

func TestVectorMutableNoSalt(t *testing.T) {
	c := qt.New(t)
	bv := []byte("12:Hello World!")
	var seq int64 = 1
	c.Check(
		bufferToSign(nil, bv, seq),
		qt.DeepEquals,
		[]byte("3:seqi1e1:v12:Hello World!"))

	privKey := mustDecodeHex(
		"e06d3183d14159228433ed599221b80bd0a5ce8352e4bdf0262f76786ef1c74d" +
			"b7e7a9fea2c0eb269d61e3b38e450a22e754941ac78479d6c54e1faf6037881d")
	sig := mustDecodeHex(
		"305ac8aeb6c9c151fa120f120ea2cfb923564e11552d06a5d856091e5e853cff" +
			"1260d3f39e4999684aa92eb73ffd136e6f4f3ecbfda0ce53a1608ecd7ae21f01")
	pubKey := mustDecodeHex("77ff84905a91936367c01360803104f92432fcd904a43511876df5cdf3e7e548")
	c.Check(
		EdwardsSignSha512(*(*[64]byte)(privKey), pubKey, bufferToSign(nil, bv, seq)),
		qt.DeepEquals,
		sig)

	expectedTarget := mustDecodeHex("4a533d47ec9c7d95b1ad75f576cffc641853b750")
	put := Put{V: "Hello World!", K: (*[32]byte)(pubKey)}
	target := put.Target()
	c.Check(target[:], qt.DeepEquals, expectedTarget)
}

func TestImmutableTarget(t *testing.T) {
	c := qt.New(t)
	put := Put{V: []byte("Hello World!")}
	target := put.Target()
	c.Check(hex.EncodeToString(target[:]), qt.Equals, "e5f96f6f38320f0f33959cb4d3d656452117aadb")
}

func TestWrapper(t *testing.T) {
	require := require.New(t)
	w := NewWrapper(NewMemory(), 10*time.Hour)

	i, err := NewItem([]byte("Hello World!"), nil, 0, nil, nil)
	require.NoError(err)

	require.NoError(w.Put(i))

	target := i.Target()
	require.Equal("e5f96f6f38320f0f33959cb4d3d656452117aadb", hex.EncodeToString(target[:]))

	i2, err := w.Get(target)
	require.NoError(err)
	require.Equal(i, i2)
}

func TestWrapperTimeout(t *testing.T) {
	require := require.New(t)
	w := NewWrapper(NewMemory(), 0*time.Second)

	i, err := NewItem([]byte("Hello World!"), nil, 0, nil, nil)
	require.NoError(err)

	require.NoError(w.Put(i))
	_, err = w.Get(i.Target())
	require.Equal(ErrItemNotFound, err)
}

func TestCasPutScenario(t *testing.T) {
	require := require.New(t)
	w := NewWrapper(NewMemory(), time.Hour)

	privKey := [64]byte(mustDecodeHex(
		"e06d3183d14159228433ed599221b80bd0a5ce8352e4bdf0262f76786ef1c74d" +
			"b7e7a9fea2c0eb269d61e3b38e450a22e754941ac78479d6c54e1faf6037881d"))
	pubKey := [32]byte(mustDecodeHex("77ff84905a91936367c01360803104f92432fcd904a43511876df5cdf3e7e548"))

	first, err := NewMutableItem("v1", privKey, pubKey, 1, nil, nil)
	require.NoError(err)
	require.NoError(w.Put(first))

	// Second put explicitly claims it last saw seq 0, but the stored item
	// is already at seq 1: the cas constraint doesn't hold.
	zero := int64(0)
	second, err := NewMutableItem("v2", privKey, pubKey, 1, &zero, nil)
	require.NoError(err)
	err = w.Put(second)
	require.Equal(ErrCasMismatch, err)
}

// TestCasOmittedAllowsUnconditionalPut proves that omitting cas entirely
// (as opposed to supplying it as 0) never triggers a mismatch, even when
// an existing item is already stored at a different seq.
func TestCasOmittedAllowsUnconditionalPut(t *testing.T) {
	require := require.New(t)
	w := NewWrapper(NewMemory(), time.Hour)

	privKey := [64]byte(mustDecodeHex(
		"e06d3183d14159228433ed599221b80bd0a5ce8352e4bdf0262f76786ef1c74d" +
			"b7e7a9fea2c0eb269d61e3b38e450a22e754941ac78479d6c54e1faf6037881d"))
	pubKey := [32]byte(mustDecodeHex("77ff84905a91936367c01360803104f92432fcd904a43511876df5cdf3e7e548"))

	first, err := NewMutableItem("v1", privKey, pubKey, 1, nil, nil)
	require.NoError(err)
	require.NoError(w.Put(first))

	second, err := NewMutableItem("v2", privKey, pubKey, 2, nil, nil)
	require.NoError(err)
	require.NoError(w.Put(second))

	got, err := w.Get(second.Target())
	require.NoError(err)
	require.Equal(int64(2), got.Seq)
}
