package peerstore

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/dht/int160"
)

func TestAnnounceAndGetPeers(t *testing.T) {
	s := New(time.Hour)
	ih := int160.Random()
	now := time.Unix(1700000000, 0)

	addr := netip.MustParseAddrPort("1.2.3.4:6881")
	s.AnnouncePeer(ih, addr, false, "foo", now)

	peers, _, _, name := s.GetPeers(ih, 10, false)
	require.Len(t, peers, 1)
	assert.Equal(t, addr, peers[0])
	assert.Equal(t, "foo", name)
}

func TestGetPeersUnknownInfoHash(t *testing.T) {
	s := New(time.Hour)
	peers, sd, pe, name := s.GetPeers(int160.Random(), 10, false)
	assert.Nil(t, peers)
	assert.Nil(t, sd)
	assert.Nil(t, pe)
	assert.Equal(t, "", name)
}

// 100 unique announcers (50 seeds, 50 leeches) scraped should each
// estimate within +/-3 of 50, per spec.md's scrape scenario.
func TestScrapeBloomEstimate(t *testing.T) {
	s := New(time.Hour)
	ih := int160.Random()
	now := time.Unix(1700000000, 0)

	for i := 0; i < 50; i++ {
		addr := netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 0, byte(i >> 8), byte(i)}), uint16(1000+i))
		s.AnnouncePeer(ih, addr, true, "", now)
	}
	for i := 0; i < 50; i++ {
		addr := netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 1, byte(i >> 8), byte(i)}), uint16(2000+i))
		s.AnnouncePeer(ih, addr, false, "", now)
	}

	_, seeds, peers, _ := s.GetPeers(ih, 0, true)
	require.NotNil(t, seeds)
	require.NotNil(t, peers)
	assert.InDelta(t, 50, seeds.Size(), 3)
	assert.InDelta(t, 50, peers.Size(), 3)
}

func TestTickExpiresStalePeers(t *testing.T) {
	s := New(time.Minute)
	ih := int160.Random()
	now := time.Unix(1700000000, 0)
	s.AnnouncePeer(ih, netip.MustParseAddrPort("1.2.3.4:1"), false, "", now)

	s.Tick(now.Add(2 * time.Minute))
	peers, _, _, _ := s.GetPeers(ih, 10, false)
	assert.Len(t, peers, 0)
}
