package krpc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/dht/bencode"
	"github.com/anacrolix/dht/int160"
)

func TestMsgQueryRoundTrip(t *testing.T) {
	id := int160.Random()
	m := Msg{
		T: "aa",
		Y: "q",
		Q: "ping",
		A: &Args{ID: id},
	}
	b, err := bencode.Marshal(m)
	require.NoError(t, err)

	var out Msg
	require.NoError(t, bencode.Unmarshal(b, &out))
	assert.Equal(t, "q", out.Y)
	assert.Equal(t, "ping", out.Q)
	require.NotNil(t, out.A)
	assert.True(t, out.A.ID.Cmp(id) == 0)
}

func TestErrorRoundTrip(t *testing.T) {
	e := Error{Code: ErrorCodeProtocolError, Msg: "invalid token"}
	b, err := bencode.Marshal(e)
	require.NoError(t, err)

	var out Error
	require.NoError(t, bencode.Unmarshal(b, &out))
	assert.Equal(t, e, out)
}

func TestCompactNodeRoundTrip(t *testing.T) {
	nodes := CompactIPv4NodeInfo{
		{ID: int160.Random(), Addr: NewNodeAddrFromIPPort(net.IPv4(1, 2, 3, 4), 6881)},
		{ID: int160.Random(), Addr: NewNodeAddrFromIPPort(net.IPv4(5, 6, 7, 8), 6882)},
	}
	b, err := nodes.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, b, 2*26)

	var out CompactIPv4NodeInfo
	require.NoError(t, out.UnmarshalBinary(b))
	require.Len(t, out, 2)
	assert.Equal(t, nodes[0].Addr.Port(), out[0].Addr.Port())
}

// A nodes field whose length isn't a multiple of the 26-byte record size
// must decode as carrying zero nodes, not an error.
func TestShortNodesRejected(t *testing.T) {
	var out CompactIPv4NodeInfo
	require.NoError(t, out.UnmarshalBinary(make([]byte, 26*2+3)))
	assert.Len(t, out, 0)
}

func TestWantsFamilyDefaultsToV4(t *testing.T) {
	var a Args
	assert.True(t, a.WantsFamily("n4"))
	assert.False(t, a.WantsFamily("n6"))

	a.Want = []string{"n6"}
	assert.False(t, a.WantsFamily("n4"))
	assert.True(t, a.WantsFamily("n6"))
}
