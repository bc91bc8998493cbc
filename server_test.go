package dht

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/dht/bencode"
	"github.com/anacrolix/dht/int160"
	"github.com/anacrolix/dht/krpc"
)

type fakeSender struct {
	quota bool
	sent  [][]byte
}

func (f *fakeSender) SendTo(b []byte, addr Addr) error {
	f.sent = append(f.sent, b)
	return nil
}

func (f *fakeSender) HasQuota() bool { return f.quota }

type fakeEvents struct {
	externalAddr net.IP
	externalSrc  Addr
	calls        int
}

func (f *fakeEvents) OnGetPeers(int160.T, Addr)                   {}
func (f *fakeEvents) OnAnnouncePeer(int160.T, net.IP, int, bool) {}
func (f *fakeEvents) OnExternalAddress(addr net.IP, source Addr) {
	f.externalAddr = addr
	f.externalSrc = source
	f.calls++
}

func newTestServer(t *testing.T, sender *fakeSender, events EventSink) *Server {
	cfg := NewDefaultServerConfig()
	cfg.EnforceNodeID = false
	cfg.RestrictRoutingIPs = false
	cfg.PacketSender = sender
	cfg.Events = events
	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s
}

func TestInvokeReturnsErrNoQuotaWhenExhausted(t *testing.T) {
	sender := &fakeSender{quota: false}
	s := newTestServer(t, sender, nil)

	addr := NewAddr(&net.UDPAddr{IP: mustParseIP("1.2.3.4"), Port: 6881})
	err := s.Ping(addr, func(krpc.ID, error) {})
	assert.ErrorIs(t, err, ErrNoQuota)
	assert.Empty(t, sender.sent)
}

func TestReplySendErrorDropWhenNoQuota(t *testing.T) {
	sender := &fakeSender{quota: false}
	s := newTestServer(t, sender, nil)
	addr := NewAddr(&net.UDPAddr{IP: mustParseIP("1.2.3.4"), Port: 6881})

	assert.NoError(t, s.reply(addr, "t1", krpc.Return{}))
	assert.NoError(t, s.sendError(addr, "t1", krpc.Error{Code: krpc.ErrorCodeGenericError, Msg: "boom"}))
	assert.Empty(t, sender.sent)
}

func TestBootstrapLearnsRespondingNode(t *testing.T) {
	sender := &fakeSender{quota: true}
	s := newTestServer(t, sender, nil)

	seedAddr := NewAddr(&net.UDPAddr{IP: mustParseIP("5.6.7.8"), Port: 6881})
	done := false
	s.Bootstrap([]Addr{seedAddr}, func() { done = true })

	s.Tick(time.Now())
	require.Len(t, sender.sent, 1)

	var q krpc.Msg
	require.NoError(t, bencode.Unmarshal(sender.sent[0], &q))
	assert.Equal(t, "find_node", q.Q)

	replyingID := int160.Random()
	r := krpc.Return{ID: replyingID}
	reply := krpc.Msg{T: q.T, Y: "r", R: &r}
	b, err := bencode.Marshal(reply)
	require.NoError(t, err)
	require.NoError(t, s.Incoming(b, seedAddr))

	s.Tick(time.Now())
	assert.True(t, done)

	live, _, _ := s.Table().Size()
	assert.Equal(t, 1, live)
}

func TestExternalAddressVoteTriggersUpdateNodeId(t *testing.T) {
	sender := &fakeSender{quota: true}
	events := &fakeEvents{}
	s := newTestServer(t, sender, events)
	originalID := s.ID()

	candidate := mustParseIP("9.9.9.9")
	for i := 0; i < externalAddrVotes; i++ {
		src := NewAddr(&net.UDPAddr{IP: mustParseIP(fmt.Sprintf("10.0.0.%d", i+1)), Port: 6881})
		s.noteExternalAddr(candidate, src)
	}

	assert.Equal(t, 1, events.calls)
	assert.True(t, candidate.Equal(events.externalAddr))
	assert.NotEqual(t, originalID, s.ID())
	assert.True(t, NodeIdSecure(s.id, candidate))
}

func TestExternalAddressVoteIgnoresDuplicateVoter(t *testing.T) {
	sender := &fakeSender{quota: true}
	events := &fakeEvents{}
	s := newTestServer(t, sender, events)

	candidate := mustParseIP("9.9.9.9")
	src := NewAddr(&net.UDPAddr{IP: mustParseIP("10.0.0.1"), Port: 6881})
	for i := 0; i < externalAddrVotes; i++ {
		s.noteExternalAddr(candidate, src)
	}

	assert.Equal(t, 0, events.calls)
}
