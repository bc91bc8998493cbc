package dht

import (
	"net"

	"github.com/anacrolix/dht/bencode"
	"github.com/anacrolix/dht/bep44"
	"github.com/anacrolix/dht/int160"
	"github.com/anacrolix/dht/krpc"
	"github.com/anacrolix/dht/traversal"
)

// This file gives library consumers the same iterative-lookup operations
// the teacher exposes as blocking top-level functions (Announce, Get,
// GetPeers...), but built on traversal.Op and driven non-blockingly by
// Tick, matching the rest of this package's single-threaded model.

// ItemResult is the highest-sequence BEP-44 value GetItem found, if any.
type ItemResult struct {
	V   bencode.Bytes
	Seq *int64
	Sig *[64]byte
	K   *[32]byte
}

func (s *Server) seedClosest(op *traversal.Op, target int160.T) {
	for _, e := range s.table.FindNode(target, bucketCapacity*2) {
		op.AddNodes([]krpc.NodeInfo{{ID: e.ID, Addr: e.Addr}})
	}
}

// Bootstrap performs an iterative self-lookup seeded with seeds, the
// standard way a freshly started node populates its routing table. onDone
// is called once the lookup has nothing left to try.
func (s *Server) Bootstrap(seeds []Addr, onDone func()) {
	op := traversal.NewOp(s.id, s.config.SearchBranching, bucketCapacity, nil)
	for _, seed := range seeds {
		op.AddAddr(seed.KRPC())
	}
	target := s.id
	send := func(addr krpc.NodeAddr) bool {
		a := &krpc.Args{Target: &target}
		err := s.FindNode(NewAddr(addr.UDP()), a, func(msg *krpc.Msg) {
			if msg.R == nil {
				op.OnError(addr, errNoReplyBody)
				return
			}
			op.OnReply(addr, msg.R.ID, nil, []krpc.NodeInfo(msg.R.Nodes), []krpc.NodeInfo(msg.R.Nodes6))
		}, func(err error) {
			op.OnError(addr, err)
		}, func() {
			op.OnTimeout(addr)
		})
		return err == nil
	}
	s.addOp(op, send, onDone)
}

// Announce performs a get_peers lookup for infoHash (optionally requesting
// BEP-33 scrape data), reporting every peer address any queried node
// returns via onPeer, then announces this node (on port) to every node
// that returned a token. onDone fires once the lookup itself is finished;
// announces are fire-and-forget past that point, matching
// get_peers/announce_peer's normal best-effort pairing.
func (s *Server) Announce(infoHash int160.T, port int, impliedPort, scrape bool, onPeer func(Addr), onDone func()) {
	op := traversal.NewOp(infoHash, s.config.SearchBranching, bucketCapacity, nil)
	op.DataFilter = func(data interface{}) bool {
		token, ok := data.(string)
		return ok && token != ""
	}
	s.seedClosest(op, infoHash)
	target := infoHash
	send := func(addr krpc.NodeAddr) bool {
		a := &krpc.Args{InfoHash: &target, Scrape: scrape}
		err := s.GetPeers(NewAddr(addr.UDP()), a, func(msg *krpc.Msg) {
			if msg.R == nil {
				op.OnError(addr, errNoReplyBody)
				return
			}
			if onPeer != nil {
				for _, p := range msg.R.Values {
					onPeer(NewAddr(net.UDPAddrFromAddrPort(p)))
				}
			}
			op.OnReply(addr, msg.R.ID, msg.R.Token, []krpc.NodeInfo(msg.R.Nodes), []krpc.NodeInfo(msg.R.Nodes6))
		}, func(err error) {
			op.OnError(addr, err)
		}, func() {
			op.OnTimeout(addr)
		})
		return err == nil
	}
	s.addOp(op, send, func() {
		for _, e := range op.Result() {
			token, _ := e.Data.(string)
			addr := e.Node.Addr
			s.AnnouncePeer(NewAddr(addr.UDP()), infoHash, port, token, impliedPort,
				func(*krpc.Msg) {}, func(error) {}, func() {})
		}
		if onDone != nil {
			onDone()
		}
	})
}

// GetItem performs a BEP-44 get lookup for target, calling onDone once
// finished with the highest-sequence value found (nil if no node had one)
// and the closest responding nodes, the latter being exactly what a
// follow-up PutItem call needs to write through their tokens.
func (s *Server) GetItem(target int160.T, onDone func(*ItemResult, []traversal.Elem)) {
	op := traversal.NewOp(target, s.config.SearchBranching, bucketCapacity, nil)
	op.DataFilter = func(data interface{}) bool {
		token, ok := data.(string)
		return ok && token != ""
	}
	s.seedClosest(op, target)
	var best *ItemResult
	t := target
	send := func(addr krpc.NodeAddr) bool {
		a := &krpc.Args{Target: &t}
		err := s.Get(NewAddr(addr.UDP()), a, func(msg *krpc.Msg) {
			if msg.R == nil {
				op.OnError(addr, errNoReplyBody)
				return
			}
			if len(msg.R.V) > 0 && (best == nil || best.Seq == nil || (msg.R.Seq != nil && *msg.R.Seq > *best.Seq)) {
				best = &ItemResult{V: msg.R.V, Seq: msg.R.Seq, Sig: msg.R.Sig, K: msg.R.K}
			}
			op.OnReply(addr, msg.R.ID, msg.R.Token, []krpc.NodeInfo(msg.R.Nodes), []krpc.NodeInfo(msg.R.Nodes6))
		}, func(err error) {
			op.OnError(addr, err)
		}, func() {
			op.OnTimeout(addr)
		})
		return err == nil
	}
	s.addOp(op, send, func() {
		if onDone != nil {
			onDone(best, op.Result())
		}
	})
}

// PutItem performs the get-then-put dance BEP-44 writes require: an
// iterative lookup to collect write tokens, followed by a put to every
// node that returned one. onDone reports how many of those puts were
// acknowledged against how many were attempted.
func (s *Server) PutItem(item bep44.Put, onDone func(acked, total int)) {
	targetArr := item.Target()
	target := int160.FromByteArray(targetArr)
	op := traversal.NewOp(target, s.config.SearchBranching, bucketCapacity, nil)
	op.DataFilter = func(data interface{}) bool {
		token, ok := data.(string)
		return ok && token != ""
	}
	s.seedClosest(op, target)
	t := target
	send := func(addr krpc.NodeAddr) bool {
		a := &krpc.Args{Target: &t}
		err := s.Get(NewAddr(addr.UDP()), a, func(msg *krpc.Msg) {
			if msg.R == nil {
				op.OnError(addr, errNoReplyBody)
				return
			}
			op.OnReply(addr, msg.R.ID, msg.R.Token, []krpc.NodeInfo(msg.R.Nodes), []krpc.NodeInfo(msg.R.Nodes6))
		}, func(err error) {
			op.OnError(addr, err)
		}, func() {
			op.OnTimeout(addr)
		})
		return err == nil
	}
	s.addOp(op, send, func() {
		results := op.Result()
		total := len(results)
		if total == 0 {
			if onDone != nil {
				onDone(0, 0)
			}
			return
		}
		acked := 0
		remaining := total
		report := func() {
			remaining--
			if remaining == 0 && onDone != nil {
				onDone(acked, total)
			}
		}
		for _, e := range results {
			token, _ := e.Data.(string)
			addr := e.Node.Addr
			err := s.Put(NewAddr(addr.UDP()), token, item, func(*krpc.Msg) {
				acked++
				report()
			}, func(error) {
				report()
			})
			if err != nil {
				report()
			}
		}
	})
}
