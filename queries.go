package dht

import (
	"github.com/anacrolix/dht/bep44"
	"github.com/anacrolix/dht/bencode"
	"github.com/anacrolix/dht/int160"
	"github.com/anacrolix/dht/krpc"
	"github.com/anacrolix/dht/x/langx"
)

// Each of the methods below sends one query and registers callbacks
// against its reply, error, or timeout; none of them block. The caller
// drives replies in by feeding received packets to Incoming, and drives
// timeouts by calling Tick regularly, per the single-threaded model this
// package is built around.

// Ping sends a ping query to addr.
func (s *Server) Ping(addr Addr, onPong func(id krpc.ID, err error)) error {
	return s.invoke(addr, "ping", &krpc.Args{}, func(msg *krpc.Msg) {
		if msg.R == nil {
			onPong(krpc.ID{}, errNoReplyBody)
			return
		}
		onPong(msg.R.ID, nil)
	}, func(err error) {
		onPong(krpc.ID{}, err)
	}, func() {
		onPong(krpc.ID{}, errQueryTimeout)
	})
}

// FindNode sends a find_node query for a.Target.
func (s *Server) FindNode(addr Addr, a *krpc.Args, onReply func(*krpc.Msg), onError func(error), onTimeout func()) error {
	return s.invoke(addr, "find_node", a, onReply, onError, onTimeout)
}

// GetPeers sends a get_peers query for a.InfoHash.
func (s *Server) GetPeers(addr Addr, a *krpc.Args, onReply func(*krpc.Msg), onError func(error), onTimeout func()) error {
	return s.invoke(addr, "get_peers", a, onReply, onError, onTimeout)
}

// AnnouncePeer sends an announce_peer query, using token as previously
// returned by that same addr's get_peers reply.
func (s *Server) AnnouncePeer(addr Addr, infoHash int160.T, port int, token string, impliedPort bool, onReply func(*krpc.Msg), onError func(error), onTimeout func()) error {
	a := &krpc.Args{InfoHash: &infoHash, Token: token, Port: &port, ImpliedPort: impliedPort}
	return s.invoke(addr, "announce_peer", a, onReply, onError, onTimeout)
}

// Get sends a BEP-44 get query for a.Target.
func (s *Server) Get(addr Addr, a *krpc.Args, onReply func(*krpc.Msg), onError func(error), onTimeout func()) error {
	return s.invoke(addr, "get", a, onReply, onError, onTimeout)
}

// Put sends a BEP-44 put query for item, using token as previously
// returned by that same addr's get reply.
func (s *Server) Put(addr Addr, token string, item bep44.Put, onReply func(*krpc.Msg), onError func(error)) error {
	v, err := bencode.Marshal(item.V)
	if err != nil {
		return err
	}
	a := &krpc.Args{Token: token, V: v}
	if item.Mutable() {
		a.K = langx.Autoptr(*item.K)
		a.Sig = langx.Autoptr(item.Sig)
		a.Seq = langx.Autoptr(item.Seq)
		a.Salt = item.Salt
		a.Cas = item.Cas
	}
	return s.invoke(addr, "put", a, onReply, onError, func() {
		onError(errQueryTimeout)
	})
}
