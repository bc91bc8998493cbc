package dht

import (
	"net"
	"time"

	"github.com/anacrolix/multiless"

	"github.com/anacrolix/dht/int160"
	"github.com/anacrolix/dht/krpc"
)

// NodeEntry is one live or cached routing-table occupant.
type NodeEntry struct {
	ID           int160.T
	Addr         krpc.NodeAddr
	RTT          time.Duration
	TimeoutCount int
	LastSeen     time.Time
	Verified     bool
}

func (e *NodeEntry) hasAddrAndID(addr krpc.NodeAddr, id int160.T) bool {
	return e.Addr.Equal(addr) && e.ID.Cmp(id) == 0
}

// maxTimeouts is the number of consecutive node_failed calls after which a
// live entry is evicted and replaced from the cache.
const maxTimeouts = 3

// bucketCapacity is k, the standard Kademlia bucket size.
const bucketCapacity = 8

// alpha is the default traversal branching factor.
const alpha = 3

// numBuckets covers every possible distance exponent (0..159) plus the
// "identical IDs" exponent of 0.
const numBuckets = 160

type bucket struct {
	live        []*NodeEntry
	replacement []*NodeEntry
	capacity    int
}

// LiveStatus reports the outcome of a node_seen call.
type LiveStatus int

const (
	StatusRejected LiveStatus = iota
	StatusAdded
	StatusUpdated
	StatusReplaced
	StatusCached
)

// RoutingTable is an XOR-bucketed set of known nodes.
//
// The teacher's bucket.go/closest_nodes.go model a binary splitting tree
// of buckets grown lazily as they fill. Since this spec's own NodeEntry
// invariant defines bucket membership directly as "distance_exp(owner,e)
// = i (after split)", a fixed 160-slot array indexed by distance exponent
// is behaviorally equivalent and avoids hand-rolling the split tree: each
// slot IS the fully-split state for that exponent from the start.
type RoutingTable struct {
	self     int160.T
	buckets  [numBuckets]bucket

	EnforceNodeID     bool
	RestrictRoutingIP bool
	Extended          bool
}

// extendedCapacity is the enlarged schedule used when Extended is set for the
// farthest buckets (159, 158, ... 154), to better fill top-of-tree space
// under uneven sampling.
var extendedCapacity = [...]int{128, 64, 32, 16, 8, 8}

// NewRoutingTable returns an empty table owned by self.
func NewRoutingTable(self int160.T) *RoutingTable {
	rt := &RoutingTable{self: self}
	for i := range rt.buckets {
		rt.buckets[i].capacity = bucketCapacity
	}
	return rt
}

func (rt *RoutingTable) bucketCapacity(i int) int {
	// Bucket numBuckets-1 is the farthest one, the top of the tree.
	if j := numBuckets - 1 - i; rt.Extended && j < len(extendedCapacity) {
		return extendedCapacity[j]
	}
	return bucketCapacity
}

func (rt *RoutingTable) bucketIndex(id int160.T) int {
	exp := rt.self.Distance(id).BitLen()
	if exp == 0 {
		return 0
	}
	return exp - 1
}

// sameSubnet reports whether a and b share a /24 (IPv4) or /64 (IPv6)
// prefix.
func sameSubnet(a, b net.IP) bool {
	a4, b4 := a.To4(), b.To4()
	if a4 != nil && b4 != nil {
		return a4[0] == b4[0] && a4[1] == b4[1] && a4[2] == b4[2]
	}
	if a4 != nil || b4 != nil {
		return false
	}
	a16, b16 := a.To16(), b.To16()
	if a16 == nil || b16 == nil {
		return false
	}
	for i := 0; i < 8; i++ {
		if a16[i] != b16[i] {
			return false
		}
	}
	return true
}

func findEntry(entries []*NodeEntry, id int160.T, addr krpc.NodeAddr) (int, *NodeEntry) {
	for i, e := range entries {
		if e.hasAddrAndID(addr, id) {
			return i, e
		}
	}
	return -1, nil
}

func findSubnetClash(entries []*NodeEntry, addr krpc.NodeAddr, exceptID int160.T) bool {
	for _, e := range entries {
		if e.ID.Cmp(exceptID) == 0 {
			continue
		}
		if sameSubnet(e.Addr.IP(), addr.IP()) {
			return true
		}
	}
	return false
}

// NodeSeen records an observation of id at addr, with measured rtt. It may
// add a new live entry, update an existing one, promote a replacement, or
// reject the observation outright (anti-Sybil or secure-ID violation).
func (rt *RoutingTable) NodeSeen(id int160.T, addr krpc.NodeAddr, rtt time.Duration) LiveStatus {
	if id.Cmp(rt.self) == 0 {
		return StatusRejected
	}
	if rt.EnforceNodeID && !NodeIdSecure(id, addr.IP()) {
		return StatusRejected
	}
	b := &rt.buckets[rt.bucketIndex(id)]

	if i, e := findEntry(b.live, id, addr); e != nil {
		e.RTT = rtt
		e.LastSeen = time.Now()
		e.TimeoutCount = 0
		e.Verified = true
		b.live[i] = e
		return StatusUpdated
	}

	if rt.RestrictRoutingIP && findSubnetClash(b.live, addr, id) {
		return StatusRejected
	}

	entry := &NodeEntry{ID: id, Addr: addr, RTT: rtt, LastSeen: time.Now(), Verified: true}

	if len(b.live) < rt.bucketCapacity(rt.bucketIndex(id)) {
		b.live = append(b.live, entry)
		return StatusAdded
	}

	// Bucket full: stash in the replacement cache, evicting the oldest
	// cached candidate if it's also full.
	if ri, _ := findEntry(b.replacement, id, addr); ri >= 0 {
		return StatusCached
	}
	if len(b.replacement) >= rt.bucketCapacity(rt.bucketIndex(id)) {
		rt.evictReplacement(b)
	}
	b.replacement = append(b.replacement, entry)
	return StatusCached
}

func (rt *RoutingTable) evictReplacement(b *bucket) {
	if len(b.replacement) == 0 {
		return
	}
	oldest := 0
	for i, e := range b.replacement {
		if e.LastSeen.Before(b.replacement[oldest].LastSeen) {
			oldest = i
		}
	}
	b.replacement = append(b.replacement[:oldest], b.replacement[oldest+1:]...)
}

// NodeFailed records a timeout for id/addr. Once the entry has failed
// maxTimeouts times in a row, it is evicted and replaced from that bucket's
// cache, if any candidate exists.
func (rt *RoutingTable) NodeFailed(id int160.T, addr krpc.NodeAddr) {
	b := &rt.buckets[rt.bucketIndex(id)]
	i, e := findEntry(b.live, id, addr)
	if e == nil {
		return
	}
	e.TimeoutCount++
	if e.TimeoutCount < maxTimeouts {
		return
	}
	b.live = append(b.live[:i], b.live[i+1:]...)
	if len(b.replacement) > 0 {
		b.live = append(b.live, b.replacement[len(b.replacement)-1])
		b.replacement = b.replacement[:len(b.replacement)-1]
	}
}

// FindNode returns up to want live entries closest to target, ties broken
// by verified-first then lower RTT.
func (rt *RoutingTable) FindNode(target int160.T, want int) []*NodeEntry {
	var all []*NodeEntry
	for i := range rt.buckets {
		all = append(all, rt.buckets[i].live...)
	}
	sortByCloseness(all, target)
	if len(all) > want {
		all = all[:want]
	}
	return all
}

func sortByCloseness(entries []*NodeEntry, target int160.T) {
	// Plain insertion sort; small N per call (bounded by total live
	// entries, typically a few hundred).
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && lessClose(entries[j], entries[j-1], target) {
			entries[j], entries[j-1] = entries[j-1], entries[j]
			j--
		}
	}
}

// lessClose ranks by distance to target first, via a multiless chain
// (the same comparator the teacher's k-nearest-nodes package builds
// candidate orderings with), then by verified-first, then by lower RTT.
func lessClose(a, b *NodeEntry, target int160.T) bool {
	da := target.Distance(a.ID)
	db := target.Distance(b.ID)
	if c := da.Cmp(db); c != 0 {
		return multiless.New().Cmp(c).Less()
	}
	if a.Verified != b.Verified {
		return a.Verified
	}
	return a.RTT < b.RTT
}

// ForEachNode calls liveCb/cacheCb for every live/cached entry. The whole
// iteration stops as soon as either callback returns false.
func (rt *RoutingTable) ForEachNode(liveCb, cacheCb func(*NodeEntry) bool) {
	for i := range rt.buckets {
		for _, e := range rt.buckets[i].live {
			if liveCb != nil && !liveCb(e) {
				return
			}
		}
		for _, e := range rt.buckets[i].replacement {
			if cacheCb != nil && !cacheCb(e) {
				return
			}
		}
	}
}

// Size returns the number of live, cached, and verified-live entries.
func (rt *RoutingTable) Size() (live, replacement, confirmed int) {
	for i := range rt.buckets {
		live += len(rt.buckets[i].live)
		replacement += len(rt.buckets[i].replacement)
		for _, e := range rt.buckets[i].live {
			if e.Verified {
				confirmed++
			}
		}
	}
	return
}

// UpdateNodeId rebuilds the table around a new owner ID, re-bucketing
// every entry still representable (distance exponents shift relative to
// the new self).
func (rt *RoutingTable) UpdateNodeId(newID int160.T) {
	var entries []*NodeEntry
	rt.ForEachNode(func(e *NodeEntry) bool {
		entries = append(entries, e)
		return true
	}, func(e *NodeEntry) bool {
		entries = append(entries, e)
		return true
	})
	rt.self = newID
	for i := range rt.buckets {
		rt.buckets[i].live = nil
		rt.buckets[i].replacement = nil
	}
	for _, e := range entries {
		rt.NodeSeen(e.ID, e.Addr, e.RTT)
	}
}
