package dht

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/dht/int160"
	"github.com/anacrolix/dht/krpc"
)

func TestNodeSeenAddsEntry(t *testing.T) {
	self := int160.Random()
	rt := NewRoutingTable(self)
	id := int160.Random()
	addr := krpc.NewNodeAddrFromIPPort(mustParseIP("1.2.3.4"), 6881)

	status := rt.NodeSeen(id, addr, time.Millisecond)
	assert.Equal(t, StatusAdded, status)

	live, _, _ := rt.Size()
	assert.Equal(t, 1, live)
}

func TestNodeSeenUpdatesExisting(t *testing.T) {
	self := int160.Random()
	rt := NewRoutingTable(self)
	id := int160.Random()
	addr := krpc.NewNodeAddrFromIPPort(mustParseIP("1.2.3.4"), 6881)

	rt.NodeSeen(id, addr, time.Millisecond)
	status := rt.NodeSeen(id, addr, 2*time.Millisecond)
	assert.Equal(t, StatusUpdated, status)

	live, _, _ := rt.Size()
	assert.Equal(t, 1, live)
}

func TestNodeSeenRejectsOwnID(t *testing.T) {
	self := int160.Random()
	rt := NewRoutingTable(self)
	addr := krpc.NewNodeAddrFromIPPort(mustParseIP("1.2.3.4"), 6881)

	status := rt.NodeSeen(self, addr, time.Millisecond)
	assert.Equal(t, StatusRejected, status)

	live, _, _ := rt.Size()
	assert.Equal(t, 0, live)
}

func TestNodeFailedEvictsAfterThreshold(t *testing.T) {
	self := int160.Random()
	rt := NewRoutingTable(self)
	id := int160.Random()
	addr := krpc.NewNodeAddrFromIPPort(mustParseIP("1.2.3.4"), 6881)
	rt.NodeSeen(id, addr, time.Millisecond)

	for i := 0; i < maxTimeouts; i++ {
		rt.NodeFailed(id, addr)
	}
	live, _, _ := rt.Size()
	assert.Equal(t, 0, live)
}

func TestFindNodeReturnsClosest(t *testing.T) {
	self := int160.Random()
	rt := NewRoutingTable(self)
	for i := 0; i < 20; i++ {
		id := int160.Random()
		addr := krpc.NewNodeAddrFromIPPort(mustParseIP("10.0.0.1"), 2000+i)
		rt.NodeSeen(id, addr, time.Millisecond)
	}
	target := int160.Random()
	closest := rt.FindNode(target, 8)
	require.LessOrEqual(t, len(closest), 8)
	for i := 1; i < len(closest); i++ {
		d0 := target.Distance(closest[i-1].ID)
		d1 := target.Distance(closest[i].ID)
		assert.LessOrEqual(t, d0.Cmp(d1), 0)
	}
}

func TestRestrictRoutingIPRejectsSameSubnet(t *testing.T) {
	self := int160.Random()
	rt := NewRoutingTable(self)
	rt.RestrictRoutingIP = true

	// Flipping self's top bit puts id1 in the farthest bucket; id2 differs
	// from id1 only in its lowest bit, so it lands in that same bucket.
	id1 := self
	id1.SetBit(0, !self.GetBit(0))
	id2 := id1
	id2.SetBit(159, !id1.GetBit(159))
	addr1 := krpc.NewNodeAddrFromIPPort(mustParseIP("10.0.0.1"), 1)
	addr2 := krpc.NewNodeAddrFromIPPort(mustParseIP("10.0.0.2"), 2)

	assert.True(t, sameSubnet(addr1.IP(), addr2.IP()))
	assert.Equal(t, StatusAdded, rt.NodeSeen(id1, addr1, time.Millisecond))
	assert.Equal(t, StatusRejected, rt.NodeSeen(id2, addr2, time.Millisecond))
}

func TestEnforceNodeIDRejectsInsecureID(t *testing.T) {
	self := int160.Random()
	rt := NewRoutingTable(self)
	rt.EnforceNodeID = true

	id := int160.Random()
	addr := krpc.NewNodeAddrFromIPPort(mustParseIP("124.31.75.21"), 6881)
	status := rt.NodeSeen(id, addr, time.Millisecond)
	assert.Equal(t, StatusRejected, status)
}

func mustParseIP(s string) (ip net.IP) {
	ip = net.ParseIP(s)
	if ip == nil {
		panic(s)
	}
	return ip
}
