// Package traversal implements the iterative node lookup that underlies
// every DHT operation that needs more than one peer's answer: bootstrap,
// get_peers/announce, and get/put.
//
// Grounded on the teacher's dht/traversal/operation.go (haveQuery/
// addClosest/startQuery), but redesigned for single-threaded operation: an
// Op owns no goroutines or locks. The owning Server drives it by calling
// Tick whenever it wants more in-flight queries started, and reports
// results back through OnReply/OnTimeout/OnError. This trades the
// teacher's condvar-driven run loop for an explicit pull-based API, the
// same tradeoff routingtable.go makes for bucket state.
package traversal

import (
	"github.com/anacrolix/multiless"

	"github.com/anacrolix/dht/int160"
	"github.com/anacrolix/dht/krpc"
)

// Elem is one entry in an Op's closest-k result set: a responding node
// plus whatever data its reply carried (a get_peers token, a BEP-44 item,
// etc).
type Elem struct {
	Node krpc.NodeInfo
	Data interface{}
}

// candidate is an address queued for querying, not yet confirmed to have
// an ID (bootstrap seeds typically don't).
type candidate struct {
	id    int160.T
	hasID bool
	addr  krpc.NodeAddr
}

// Op is one iterative lookup in progress.
type Op struct {
	target int160.T
	alpha  int
	k      int

	unqueried []candidate
	queried   map[string]struct{}
	closest   []Elem

	outstanding int
	stopped     bool

	// NodeFilter, if set, excludes candidates (e.g. ones a blocklist
	// rejects) from ever being queried.
	NodeFilter func(addr krpc.NodeAddr) bool
	// DataFilter, if set, excludes a responder from the closest-k set
	// based on the data it returned (e.g. get_peers requires a token).
	DataFilter func(data interface{}) bool
}

// NewOp starts a lookup for target, seeded with start (usually the
// caller's routing table's closest known nodes). alpha bounds concurrent
// in-flight queries; k bounds the closest-result set size.
func NewOp(target int160.T, alpha, k int, start []krpc.NodeInfo) *Op {
	if alpha <= 0 {
		alpha = 3
	}
	if k <= 0 {
		k = 8
	}
	op := &Op{
		target:  target,
		alpha:   alpha,
		k:       k,
		queried: make(map[string]struct{}),
	}
	op.AddNodes(start)
	return op
}

// AddNodes offers nodes as unqueried candidates, skipping any already
// queried, already queued, or rejected by NodeFilter.
func (op *Op) AddNodes(nodes []krpc.NodeInfo) int {
	added := 0
	for _, n := range nodes {
		if op.addNode(n.ID, true, n.Addr) {
			added++
		}
	}
	return added
}

// AddAddr offers a bare address (no known ID) as a candidate, for
// bootstrap seeding.
func (op *Op) AddAddr(addr krpc.NodeAddr) bool {
	return op.addNode(int160.T{}, false, addr)
}

func (op *Op) addNode(id int160.T, hasID bool, addr krpc.NodeAddr) bool {
	key := addr.String()
	if _, ok := op.queried[key]; ok {
		return false
	}
	for _, c := range op.unqueried {
		if c.addr.String() == key {
			return false
		}
	}
	if op.NodeFilter != nil && !op.NodeFilter(addr) {
		return false
	}
	op.unqueried = append(op.unqueried, candidate{id: id, hasID: hasID, addr: addr})
	sortCandidates(op.unqueried, op.target)
	return true
}

func sortCandidates(cands []candidate, target int160.T) {
	for i := 1; i < len(cands); i++ {
		j := i
		for j > 0 && candidateLess(cands[j], cands[j-1], target) {
			cands[j], cands[j-1] = cands[j-1], cands[j]
			j--
		}
	}
}

// candidateLess sorts unidentified addresses (bootstrap seeds) first,
// since they can't be distance-ranked; identified candidates are then
// sorted closest-to-target first via the same multiless.New().Cmp chain
// the teacher's k-nearest-nodes package ranks candidates with.
func candidateLess(a, b candidate, target int160.T) bool {
	if a.hasID != b.hasID {
		return !a.hasID
	}
	if !a.hasID {
		return false
	}
	return multiless.New().Cmp(target.Distance(a.id).Cmp(target.Distance(b.id))).Less()
}

// haveQuery reports whether issuing another query could still improve
// the closest-k set: there's an unqueried candidate, and either the
// closest set isn't full yet or that candidate could still be closer
// than the current farthest result.
func (op *Op) haveQuery() bool {
	if len(op.unqueried) == 0 {
		return false
	}
	if len(op.closest) < op.k {
		return true
	}
	next := op.unqueried[0]
	if !next.hasID {
		return true
	}
	farthest := op.closest[len(op.closest)-1]
	return op.target.Distance(next.id).Cmp(op.target.Distance(farthest.Node.ID)) <= 0
}

// Tick calls send for every candidate worth querying right now, up to
// alpha concurrent outstanding queries. send must return true if it
// actually dispatched the query (false rolls the candidate back to
// unqueried, e.g. because a blocklist or send error rejected it).
func (op *Op) Tick(send func(addr krpc.NodeAddr) bool) {
	if op.stopped {
		return
	}
	for op.outstanding < op.alpha && op.haveQuery() {
		c := op.unqueried[0]
		op.unqueried = op.unqueried[1:]
		key := c.addr.String()
		if !send(c.addr) {
			op.unqueried = append([]candidate{c}, op.unqueried...)
			break
		}
		op.queried[key] = struct{}{}
		op.outstanding++
	}
}

// OnReply records a response from addr: its sender ID, any closest-set
// data (a token, an item), and the nodes/nodes6 it returned as further
// candidates.
func (op *Op) OnReply(addr krpc.NodeAddr, from int160.T, data interface{}, nodes, nodes6 []krpc.NodeInfo) {
	op.outstanding--
	if op.DataFilter == nil || op.DataFilter(data) {
		op.addClosest(krpc.NodeInfo{ID: from, Addr: addr}, data)
	}
	op.AddNodes(nodes)
	op.AddNodes(nodes6)
}

// OnTimeout and OnError both just account for the query no longer being
// outstanding; the candidate was already marked queried and is not
// retried.
func (op *Op) OnTimeout(addr krpc.NodeAddr) { op.outstanding-- }
func (op *Op) OnError(addr krpc.NodeAddr, err error) { op.outstanding-- }

func (op *Op) addClosest(node krpc.NodeInfo, data interface{}) {
	for _, e := range op.closest {
		if e.Node.ID.Cmp(node.ID) == 0 {
			return
		}
	}
	op.closest = append(op.closest, Elem{Node: node, Data: data})
	sortElems(op.closest, op.target)
	if len(op.closest) > op.k {
		op.closest = op.closest[:op.k]
	}
}

func sortElems(elems []Elem, target int160.T) {
	for i := 1; i < len(elems); i++ {
		j := i
		for j > 0 && multiless.New().Cmp(target.Distance(elems[j].Node.ID).Cmp(target.Distance(elems[j-1].Node.ID))).Less() {
			elems[j], elems[j-1] = elems[j-1], elems[j]
			j--
		}
	}
}

// Done reports whether the lookup has nothing left to do: no outstanding
// queries and no candidate that could still improve the result.
func (op *Op) Done() bool {
	return op.outstanding == 0 && !op.haveQuery()
}

// Stop marks the operation finished; further Tick calls are no-ops.
func (op *Op) Stop() { op.stopped = true }

// Result returns the closest-k responding nodes found so far, nearest
// first.
func (op *Op) Result() []Elem {
	return op.closest
}
