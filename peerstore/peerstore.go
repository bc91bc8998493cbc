// Package peerstore implements the DHT's announce_peer / get_peers
// storage: per-info-hash sets of announcing peers, with BEP-33 scrape
// bloom-filter population.
//
// Grounded on the teacher's dht/peer-store/peer-store.go Interface shape
// (AddPeer/GetPeers keyed by info hash), expanded with the seed/name/added
// fields a PeerAnnounce record needs and with scrape support.
package peerstore

import (
	"net/netip"
	"time"

	"github.com/anacrolix/dht/bloom"
	"github.com/anacrolix/dht/int160"
)

// InfoHash identifies a torrent swarm.
type InfoHash = int160.T

// Announce is a single peer's advertisement for an info hash.
type Announce struct {
	Addr  netip.AddrPort
	Seed  bool
	Name  string
	Added time.Time
}

type swarm struct {
	peers map[netip.AddrPort]*Announce
	name  string
}

// Store holds announce_peer state for every info hash currently tracked,
// expiring entries older than ttl on Tick.
type Store struct {
	ttl    time.Duration
	swarms map[InfoHash]*swarm
}

// New returns an empty Store whose entries expire ttl after their most
// recent announce.
func New(ttl time.Duration) *Store {
	return &Store{ttl: ttl, swarms: make(map[InfoHash]*swarm)}
}

// AnnouncePeer inserts or refreshes addr's announcement for infoHash.
func (s *Store) AnnouncePeer(infoHash InfoHash, addr netip.AddrPort, seed bool, name string, now time.Time) {
	sw, ok := s.swarms[infoHash]
	if !ok {
		sw = &swarm{peers: make(map[netip.AddrPort]*Announce)}
		s.swarms[infoHash] = sw
	}
	if name != "" {
		sw.name = name
	}
	sw.peers[addr] = &Announce{Addr: addr, Seed: seed, Name: name, Added: now}
}

// GetPeers returns up to wantN known peers for infoHash (order
// unspecified), this swarm's name if known, and — when scrape is
// requested — two populated bloom filters: seeds and downloaders (leeches).
func (s *Store) GetPeers(infoHash InfoHash, wantN int, scrape bool) (peers []netip.AddrPort, seedsBloom, peersBloom *bloom.Filter, name string) {
	sw, ok := s.swarms[infoHash]
	if !ok {
		if scrape {
			return nil, bloom.New(), bloom.New(), ""
		}
		return nil, nil, nil, ""
	}
	name = sw.name
	if scrape {
		seedsBloom = bloom.New()
		peersBloom = bloom.New()
		for _, a := range sw.peers {
			addrBytes := compactAddrBytes(a.Addr)
			if a.Seed {
				seedsBloom.Add(addrBytes)
			} else {
				peersBloom.Add(addrBytes)
			}
		}
	}
	peers = make([]netip.AddrPort, 0, len(sw.peers))
	for _, a := range sw.peers {
		if wantN > 0 && len(peers) >= wantN {
			break
		}
		peers = append(peers, a.Addr)
	}
	return peers, seedsBloom, peersBloom, name
}

func compactAddrBytes(a netip.AddrPort) []byte {
	ip := a.Addr()
	var b []byte
	if ip.Is4() {
		a4 := ip.As4()
		b = append(b, a4[:]...)
	} else {
		a16 := ip.As16()
		b = append(b, a16[:]...)
	}
	return append(b, byte(a.Port()>>8), byte(a.Port()))
}

// Tick evicts any announcement older than the store's ttl, and drops
// swarms left with no peers.
func (s *Store) Tick(now time.Time) {
	for ih, sw := range s.swarms {
		for addr, a := range sw.peers {
			if now.Sub(a.Added) > s.ttl {
				delete(sw.peers, addr)
			}
		}
		if len(sw.peers) == 0 {
			delete(s.swarms, ih)
		}
	}
}
