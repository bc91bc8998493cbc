package dht

import (
	"github.com/anacrolix/dht/bencode"
	"github.com/anacrolix/dht/krpc"
	"github.com/anacrolix/dht/x/langx"
)

// Handler handles one query method, consulting the Server's subsystems and
// emitting a reply (or an error) through it.
type Handler interface {
	Handle(src Addr, srv *Server, msg *krpc.Msg) error
}

// Muxer dispatches an inbound query's "q" field to the Handler registered
// for it, falling back to an unimplemented-method handler.
type Muxer interface {
	Method(name string, fn Handler) Muxer
	Handler(q string) Handler
}

// NewMuxer returns an empty Muxer; register handlers with Method.
func NewMuxer() Muxer {
	return defaultMuxer{
		m:        make(map[string]Handler, 8),
		fallback: UnimplementedHandler{},
	}
}

// DefaultMuxer wires every query method spec.md's dispatch table names.
func DefaultMuxer() Muxer {
	m := NewMuxer()
	m.Method("ping", HandlerPing{})
	m.Method("find_node", HandlerFindNode{})
	m.Method("get_peers", HandlerGetPeers{})
	m.Method("announce_peer", HandlerAnnouncePeer{})
	m.Method("get", HandlerGet{})
	m.Method("put", HandlerPut{})
	return m
}

type defaultMuxer struct {
	m        map[string]Handler
	fallback Handler
}

func (t defaultMuxer) Method(name string, fn Handler) Muxer {
	t.m[name] = fn
	return t
}

func (t defaultMuxer) Handler(q string) Handler {
	if fn, ok := t.m[q]; ok {
		return fn
	}
	return t.fallback
}

// UnimplementedHandler answers any unregistered query method with krpc
// error 204.
type UnimplementedHandler struct{}

func (UnimplementedHandler) Handle(src Addr, srv *Server, msg *krpc.Msg) error {
	return srv.sendError(src, msg.T, krpc.ErrorMethodUnknown)
}

// HandlerPing answers "ping" with just the node's own ID.
type HandlerPing struct{}

func (HandlerPing) Handle(src Addr, srv *Server, msg *krpc.Msg) error {
	return srv.reply(src, msg.T, krpc.Return{})
}

// HandlerFindNode answers "find_node" with the closest known nodes to
// the requested target.
type HandlerFindNode struct{}

func (HandlerFindNode) Handle(src Addr, srv *Server, msg *krpc.Msg) error {
	if msg.A == nil || msg.A.Target == nil {
		return srv.sendError(src, msg.T, krpc.ErrorMissingArgs)
	}
	var r krpc.Return
	srv.setReturnNodes(&r, *msg.A.Target, msg.A, src)
	return srv.reply(src, msg.T, r)
}

// HandlerGetPeers answers "get_peers": peers if known (plus a token and,
// on request, scrape bloom filters), else the closest nodes.
type HandlerGetPeers struct{}

func (HandlerGetPeers) Handle(src Addr, srv *Server, msg *krpc.Msg) error {
	if msg.A == nil || msg.A.InfoHash == nil {
		return srv.sendError(src, msg.T, krpc.ErrorMissingArgs)
	}
	var r krpc.Return
	r.Token = srv.createToken(src)

	if srv.config.PeerStore != nil {
		peers, seeds, downloaders, _ := srv.config.PeerStore.GetPeers(*msg.A.InfoHash, 0, msg.A.Scrape)
		if msg.A.Scrape {
			if seeds != nil {
				r.BFsd = seeds.Bytes()
			}
			if downloaders != nil {
				r.BFpe = downloaders.Bytes()
			}
		}
		if len(peers) > 0 {
			r.Values = make(krpc.CompactIPv4Peers, 0, len(peers))
			for _, p := range peers {
				if p.Addr().Is4() {
					r.Values = append(r.Values, p)
				}
			}
		}
	}

	if srv.config.Events != nil {
		srv.config.Events.OnGetPeers(*msg.A.InfoHash, src)
	}

	if len(r.Values) == 0 {
		srv.setReturnNodes(&r, *msg.A.InfoHash, msg.A, src)
	}
	return srv.reply(src, msg.T, r)
}

// HandlerAnnouncePeer answers "announce_peer": validates the token, then
// records the announcer.
type HandlerAnnouncePeer struct{}

func (HandlerAnnouncePeer) Handle(src Addr, srv *Server, msg *krpc.Msg) error {
	if msg.A == nil || msg.A.InfoHash == nil {
		announceErrors.Add(1)
		return srv.sendError(src, msg.T, krpc.ErrorMissingArgs)
	}
	if !srv.validToken(msg.A.Token, src) {
		announceErrors.Add(1)
		return srv.sendError(src, msg.T, krpc.ErrorInvalidToken)
	}

	port := 0
	if msg.A.Port != nil {
		port = *msg.A.Port
	}
	portOK := msg.A.Port != nil
	if msg.A.ImpliedPort {
		port = src.Port()
		portOK = true
	}

	if srv.config.Events != nil {
		srv.config.Events.OnAnnouncePeer(*msg.A.InfoHash, src.IP(), port, portOK)
	}
	if srv.config.PeerStore != nil && portOK {
		srv.config.PeerStore.AnnouncePeer(*msg.A.InfoHash, src.KRPC().AddrPort, msg.A.Seed, msg.A.Name, srv.config.now())
	}

	return srv.reply(src, msg.T, krpc.Return{})
}

// HandlerGet answers BEP-44 "get": the closest nodes plus, if the target
// is stored, its value (subject to the seq_floor conditional-get rule).
type HandlerGet struct{}

func (HandlerGet) Handle(src Addr, srv *Server, msg *krpc.Msg) error {
	if msg.A == nil || msg.A.Target == nil {
		return srv.sendError(src, msg.T, krpc.ErrorMissingArgs)
	}
	var r krpc.Return
	srv.setReturnNodes(&r, *msg.A.Target, msg.A, src)
	r.Token = srv.createToken(src)

	if srv.config.ItemStore == nil {
		return srv.reply(src, msg.T, r)
	}
	item, err := srv.config.ItemStore.Get(msg.A.Target.AsByteArray())
	if err != nil {
		return srv.reply(src, msg.T, r)
	}
	r.Seq = langx.Autoptr(item.Seq)
	if msg.A.Seq != nil && item.Seq <= *msg.A.Seq {
		// Conditional get: the requester already has this seq.
		return srv.reply(src, msg.T, r)
	}
	v := bencode.MustMarshal(item.V)
	r.V = v
	r.K = item.K
	if item.K != nil {
		sig := item.Sig
		r.Sig = &sig
	}
	return srv.reply(src, msg.T, r)
}

// HandlerPut answers BEP-44 "put": validates the token and, for mutable
// items, the signature and CAS/seq rules, then stores.
type HandlerPut struct{}

func (HandlerPut) Handle(src Addr, srv *Server, msg *krpc.Msg) error {
	if msg.A == nil {
		return srv.sendError(src, msg.T, krpc.ErrorMissingArgs)
	}
	if !srv.validToken(msg.A.Token, src) {
		return srv.sendError(src, msg.T, krpc.ErrorInvalidToken)
	}
	if srv.config.ItemStore == nil {
		return srv.sendError(src, msg.T, krpc.ErrorMethodUnknown)
	}

	var v interface{}
	if err := unmarshalBencodeBytes(msg.A.V, &v); err != nil {
		return srv.sendError(src, msg.T, krpc.ErrorMissingArgs)
	}

	item := putFromArgs(v, msg.A)
	if item.Mutable() && !item.Verify() {
		return srv.sendError(src, msg.T, krpc.ErrorInvalidSig)
	}

	if err := srv.config.ItemStore.Put(item); err != nil {
		return srv.sendError(src, msg.T, putStoreError(err))
	}
	return srv.reply(src, msg.T, krpc.Return{})
}
