package traversal

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/dht/int160"
	"github.com/anacrolix/dht/krpc"
)

func node(id int160.T, port int) krpc.NodeInfo {
	return krpc.NodeInfo{ID: id, Addr: krpc.NewNodeAddrFromIPPort(net.ParseIP("10.0.0.1"), port)}
}

func TestOpConvergesToClosest(t *testing.T) {
	target := int160.Random()
	seed := node(int160.Random(), 1)
	op := NewOp(target, 3, 8, []krpc.NodeInfo{seed})
	require.False(t, op.Done())

	var sent []krpc.NodeAddr
	op.Tick(func(addr krpc.NodeAddr) bool {
		sent = append(sent, addr)
		return true
	})
	assert.Len(t, sent, 1)

	next := node(int160.Random(), 2)
	op.OnReply(seed.Addr, seed.ID, "token", []krpc.NodeInfo{next}, nil)

	op.Tick(func(addr krpc.NodeAddr) bool {
		sent = append(sent, addr)
		return true
	})
	assert.Len(t, sent, 2)

	op.OnReply(next.Addr, next.ID, "token2", nil, nil)
	assert.True(t, op.Done())

	result := op.Result()
	require.Len(t, result, 2)
	gotData := map[interface{}]bool{result[0].Data: true, result[1].Data: true}
	assert.True(t, gotData["token"])
	assert.True(t, gotData["token2"])
}

func TestOpRespectsAlpha(t *testing.T) {
	target := int160.Random()
	var start []krpc.NodeInfo
	for i := 0; i < 10; i++ {
		start = append(start, node(int160.Random(), 100+i))
	}
	op := NewOp(target, 2, 8, start)

	issued := 0
	op.Tick(func(addr krpc.NodeAddr) bool {
		issued++
		return true
	})
	assert.Equal(t, 2, issued)
}

func TestOpDataFilterExcludesUntokenedReplies(t *testing.T) {
	target := int160.Random()
	seed := node(int160.Random(), 1)
	op := NewOp(target, 3, 8, []krpc.NodeInfo{seed})
	op.DataFilter = func(data interface{}) bool {
		_, ok := data.(string)
		return ok
	}
	op.Tick(func(krpc.NodeAddr) bool { return true })
	op.OnReply(seed.Addr, seed.ID, nil, nil, nil)
	assert.Empty(t, op.Result())
}
