// Package dht implements a single-threaded Kademlia DHT node: BEP-5 peer
// discovery, BEP-33 scrape, BEP-42 secure node IDs, and BEP-44 mutable and
// immutable item storage.
//
// There is no internal locking and no background goroutines. A Server is
// driven entirely by its owner calling Incoming (for every received
// packet) and Tick (on a regular cadence, for rotation/timeout/expiry
// housekeeping and to drive outstanding traversals forward). This is a
// deliberate departure from the teacher's goroutine-per-connection /
// mutex-guarded design, required by spec.md's single-threaded redesign.
package dht

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/anacrolix/dht/bencode"
	"github.com/anacrolix/dht/bep44"
	"github.com/anacrolix/dht/int160"
	"github.com/anacrolix/dht/krpc"
	"github.com/anacrolix/dht/transactions"
	"github.com/anacrolix/dht/traversal"
	"github.com/anacrolix/dht/x/langx"
)

// externalAddrVotes is how many distinct sources must agree on a candidate
// external address before it's adopted and the node ID re-secured, the
// same majority-vote threshold the "ip" extension was designed for.
const externalAddrVotes = 4

// pendingTransaction is the state kept for a query this Server sent,
// until a matching reply, error, or timeout arrives.
type pendingTransaction struct {
	sentAt   time.Time
	to       Addr
	onReply  func(*krpc.Msg)
	onError  func(error)
	onTimeout func()
}

// Server is one DHT node: routing table, token issuer, outstanding
// transaction table, and the query dispatch table, wired to a
// caller-supplied packet transport.
type Server struct {
	id     int160.T
	config ServerConfig

	table  *RoutingTable
	tokens *TokenServer
	txns   transactions.Dispatcher[*pendingTransaction]
	issuer transactions.IdIssuer
	mux    Muxer

	queryTimeout time.Duration

	// externalVote tallies, per candidate external address, the set of
	// distinct remote addresses that reported it to us via the "ip"
	// extension. Once a candidate crosses externalAddrVotes it's adopted.
	externalIP   net.IP
	externalVote map[string]map[string]struct{}

	ops []*activeOp
}

// NewServer builds a Server from cfg. A plain random node ID is generated if
// cfg.NodeId is nil; it is replaced by a BEP-42 secure ID once an external
// address is learned (see UpdateNodeId).
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.PacketSender == nil {
		return nil, errors.New("dht: ServerConfig.PacketSender is required")
	}
	now := cfg.now()

	id := int160.Random()
	if cfg.NodeId != nil {
		id = *cfg.NodeId
	}

	blockTimeout := cfg.BlockTimeout
	if blockTimeout <= 0 {
		blockTimeout = 15 * time.Second
	}

	s := &Server{
		id:           id,
		config:       cfg,
		table:        NewRoutingTable(id),
		tokens:       NewTokenServer(cfg.TokenRotationInterval, now, cryptoRandRead),
		issuer:       &transactions.DefaultIdIssuer,
		mux:          DefaultMuxer(),
		queryTimeout: blockTimeout,
		externalVote: make(map[string]map[string]struct{}),
	}
	s.table.EnforceNodeID = cfg.EnforceNodeID
	s.table.RestrictRoutingIP = cfg.RestrictRoutingIPs
	s.table.Extended = cfg.ExtendedRoutingTable

	if s.config.ItemStore == nil {
		capacity := cfg.MaxDHTItems
		if capacity <= 0 {
			capacity = 1000
		}
		bounded := bep44.NewBounded(bep44.NewMemory(), id, capacity)
		s.config.ItemStore = bep44.NewWrapper(bounded, cfg.ItemLifetime)
	}
	return s, nil
}

func cryptoRandRead(b []byte) {
	// math/rand is sufficient here: token secrets only need to be
	// unpredictable to a remote peer within the rotation window, and the
	// teacher's own token implementation makes the same tradeoff.
	rand.Read(b)
}

// ID returns the server's own node ID.
func (s *Server) ID() krpc.ID {
	return s.id
}

// Table exposes the routing table, e.g. for bootstrap or diagnostics.
func (s *Server) Table() *RoutingTable {
	return s.table
}

// SearchBranching returns the configured traversal concurrency (alpha),
// for callers building a traversal.Op against this Server.
func (s *Server) SearchBranching() int {
	return s.config.SearchBranching
}

// Incoming processes one received packet from src. Malformed packets are
// dropped silently, matching BEP-5's "ignore anything that doesn't parse"
// posture.
func (s *Server) Incoming(b []byte, src Addr) error {
	read.Add(1)
	if s.config.Blocklist != nil && s.config.Blocklist.Blocked(src.IP()) {
		readBlocked.Add(1)
		return nil
	}

	var msg krpc.Msg
	if err := bencode.Unmarshal(b, &msg); err != nil {
		readUnmarshalError.Add(1)
		return nil
	}

	switch msg.Y {
	case "q":
		readQuery.Add(1)
		return s.handleQuery(src, &msg)
	case "r", "e":
		readReply.Add(1)
		return s.handleReply(src, &msg)
	}
	return nil
}

func (s *Server) handleQuery(src Addr, msg *krpc.Msg) error {
	if s.config.ReadOnly {
		return nil
	}
	if msg.A != nil {
		s.table.NodeSeen(msg.A.ID, src.KRPC(), 0)
	}
	h := s.mux.Handler(msg.Q)
	return h.Handle(src, s, msg)
}

func (s *Server) handleReply(src Addr, msg *krpc.Msg) error {
	key := transactions.Key{T: msg.T, RemoteAddr: src.String()}
	if !s.txns.Have(key) {
		return nil
	}
	p := s.txns.Pop(key)

	if msg.Y == "e" {
		if p.onError != nil {
			err := error(nil)
			if msg.E != nil {
				err = *msg.E
			}
			p.onError(err)
		}
		return nil
	}

	if msg.R != nil {
		s.table.NodeSeen(msg.R.ID, src.KRPC(), time.Since(p.sentAt))
	}
	if msg.IP != nil {
		s.noteExternalAddr(msg.IP.IP(), src)
	}
	if p.onReply != nil {
		p.onReply(msg)
	}
	return nil
}

// noteExternalAddr records src's claim that our external address is
// candidate, via the "ip" extension field on its reply. Once enough
// distinct sources agree on the same candidate, it's adopted: the
// EventSink is notified and the node ID is re-secured for it.
func (s *Server) noteExternalAddr(candidate net.IP, src Addr) {
	if candidate == nil || s.externalIP != nil && s.externalIP.Equal(candidate) {
		return
	}
	key := candidate.String()
	voters := s.externalVote[key]
	if voters == nil {
		voters = make(map[string]struct{})
		s.externalVote[key] = voters
	}
	voters[src.IP().String()] = struct{}{}
	if len(voters) < externalAddrVotes {
		return
	}

	s.externalIP = candidate
	s.externalVote = make(map[string]map[string]struct{})
	if s.config.Events != nil {
		s.config.Events.OnExternalAddress(candidate, src)
	}
	s.UpdateNodeId()
}

// UpdateNodeId re-derives the server's own node ID as a fresh BEP-42
// secure ID bound to the last externally observed address (or the
// existing ID, unsecured, if no external address has been learned yet),
// and rebuckets the routing table around it.
func (s *Server) UpdateNodeId() {
	if s.externalIP == nil {
		return
	}
	s.id = GenerateSecureNodeId(s.externalIP)
	s.table.UpdateNodeId(s.id)
}

// Tick drives time-based housekeeping: token rotation, transaction
// timeouts, peerstore expiry and active traversals. Stored items expire
// when they are read, not here. It must be called
// regularly; nothing in this package starts its own timer.
func (s *Server) Tick(now time.Time) {
	s.tokens.Tick(now)
	if s.config.PeerStore != nil {
		s.config.PeerStore.Tick(now)
	}

	var expired []transactions.Key
	s.txns.ForEach(func(k transactions.Key, p *pendingTransaction) {
		if now.Sub(p.sentAt) >= s.queryTimeout {
			expired = append(expired, k)
		}
	})
	for _, k := range expired {
		p := s.txns.Pop(k)
		if p.onTimeout != nil {
			p.onTimeout()
		}
	}

	s.driveOps()
}

// activeOp is one traversal.Op this Server is driving on every Tick, along
// with the per-round send function and a callback fired once.
type activeOp struct {
	op     *traversal.Op
	send   func(addr krpc.NodeAddr) bool
	onDone func()
}

func (s *Server) addOp(op *traversal.Op, send func(addr krpc.NodeAddr) bool, onDone func()) {
	s.ops = append(s.ops, &activeOp{op: op, send: send, onDone: onDone})
}

// driveOps advances every active traversal one round, firing onDone for
// any that just finished and dropping them from the active set.
func (s *Server) driveOps() {
	live := s.ops[:0]
	for _, a := range s.ops {
		a.op.Tick(a.send)
		if a.op.Done() {
			if a.onDone != nil {
				a.onDone()
			}
			continue
		}
		live = append(live, a)
	}
	s.ops = live
}

// invoke sends a query to addr, registering transaction state keyed by a
// freshly issued transaction ID and addr's string form.
func (s *Server) invoke(addr Addr, q string, a *krpc.Args, onReply func(*krpc.Msg), onError func(error), onTimeout func()) error {
	if !s.config.PacketSender.HasQuota() {
		return ErrNoQuota
	}
	t := s.issuer.Issue()
	a.ID = s.id
	msg := krpc.Msg{T: t, Y: "q", Q: q, A: a}
	if s.config.ReadOnly {
		msg.RO = 1
	}
	b, err := bencode.Marshal(msg)
	if err != nil {
		return err
	}
	s.txns.Add(transactions.Key{T: t, RemoteAddr: addr.String()}, &pendingTransaction{
		sentAt: s.config.now(), to: addr, onReply: onReply, onError: onError, onTimeout: onTimeout,
	})
	return s.config.PacketSender.SendTo(b, addr)
}

func (s *Server) reply(addr Addr, t string, r krpc.Return) error {
	if !s.config.PacketSender.HasQuota() {
		return nil
	}
	r.ID = s.id
	ip := addr.KRPC()
	msg := krpc.Msg{T: t, Y: "r", R: &r, IP: &ip}
	b, err := bencode.Marshal(msg)
	if err != nil {
		return err
	}
	return s.config.PacketSender.SendTo(b, addr)
}

func (s *Server) sendError(addr Addr, t string, e krpc.Error) error {
	if !s.config.PacketSender.HasQuota() {
		return nil
	}
	msg := krpc.Msg{T: t, Y: "e", E: &e}
	b, err := bencode.Marshal(msg)
	if err != nil {
		return err
	}
	return s.config.PacketSender.SendTo(b, addr)
}

func (s *Server) createToken(addr Addr) string {
	return s.tokens.CreateToken(addr.IP())
}

func (s *Server) validToken(token string, addr Addr) bool {
	return s.tokens.ValidToken(token, addr.IP())
}

// setReturnNodes populates r.Nodes/r.Nodes6 with the closest nodes this
// server knows to target, honoring the query's want list (defaulting to
// n4 only).
func (s *Server) setReturnNodes(r *krpc.Return, target int160.T, a *krpc.Args, src Addr) {
	want := s.config.SearchBranching
	if want <= 0 {
		want = bucketCapacity
	}
	closest := s.table.FindNode(target, want*2)

	if a.WantsFamily("n4") {
		for _, e := range closest {
			if e.Addr.Addr().Is4() {
				r.Nodes = append(r.Nodes, krpc.NodeInfo{ID: e.ID, Addr: e.Addr})
			}
		}
	}
	if a.WantsFamily("n6") {
		for _, e := range closest {
			if !e.Addr.Addr().Is4() {
				r.Nodes6 = append(r.Nodes6, krpc.NodeInfo{ID: e.ID, Addr: e.Addr})
			}
		}
	}
}

// putFromArgs builds a bep44.Put from a decoded put query, copying the
// signature/key/salt/cas/seq fields a mutable item carries.
func putFromArgs(v interface{}, a *krpc.Args) bep44.Put {
	return bep44.Put{
		V:    v,
		K:    a.K,
		Salt: a.Salt,
		Seq:  langx.Autoderef(a.Seq),
		Cas:  a.Cas,
		Sig:  langx.Autoderef(a.Sig),
	}
}

func unmarshalBencodeBytes(b bencode.Bytes, v interface{}) error {
	if len(b) == 0 {
		return fmt.Errorf("dht: empty value")
	}
	return bencode.Unmarshal(b, v)
}

// putStoreError maps a bep44 store error to the krpc.Error BEP-44 defines
// for it.
func putStoreError(err error) krpc.Error {
	switch {
	case errors.Is(err, bep44.ErrCasMismatch):
		return krpc.ErrorCASMismatch
	case errors.Is(err, bep44.ErrSequenceNumberLessThanCurrent):
		return krpc.ErrorLowSeq
	default:
		return krpc.Error{Code: krpc.ErrorCodeGenericError, Msg: err.Error()}
	}
}
