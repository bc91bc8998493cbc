package dht

import (
	"net"
	"time"

	"github.com/anacrolix/log"

	"github.com/anacrolix/dht/bep44"
	"github.com/anacrolix/dht/blocklist"
	"github.com/anacrolix/dht/int160"
	"github.com/anacrolix/dht/peerstore"
)

// PacketSender is the external "send a packet" capability a Server is
// driven with. Implementations typically wrap a net.PacketConn, but the
// Server never touches sockets directly so it stays synchronously
// testable.
type PacketSender interface {
	SendTo(b []byte, addr Addr) error
	// HasQuota reports whether the transport has room to send right now.
	// It is checked once before every send; when it returns false the
	// Server drops that send rather than blocking for capacity (the
	// traversal that wanted it will simply try again on a later Tick).
	HasQuota() bool
}

// EventSink is the set of external notifications a Server emits as it
// processes traffic; all are optional.
type EventSink interface {
	OnGetPeers(infoHash int160.T, from Addr)
	OnAnnouncePeer(infoHash int160.T, ip net.IP, port int, portOk bool)
	OnExternalAddress(addr net.IP, source Addr)
}

// ServerConfig collects every tunable the Server needs. Built with plain
// field initialization, matching the teacher's config-struct idiom (no
// functional-options wrapper in this package).
type ServerConfig struct {
	// NodeId sets the server's initial ID; if nil a random one is generated.
	// Either way the ID is replaced by a BEP-42 secure one whenever the
	// external address changes.
	NodeId *int160.T

	PacketSender PacketSender
	Logger       log.Logger
	Events       EventSink

	PeerStore *peerstore.Store
	ItemStore bep44.Store
	Blocklist *blocklist.List

	MaxDHTItems          int
	EnforceNodeID         bool
	RestrictRoutingIPs   bool
	ExtendedRoutingTable bool
	ReadOnly             bool
	SearchBranching      int
	BlockTimeout         time.Duration
	ItemLifetime         time.Duration
	TokenRotationInterval time.Duration

	// Now supplies the current time; defaults to time.Now if nil, but is
	// overridable so tests can drive Tick deterministically.
	Now func() time.Time
}

// NewDefaultServerConfig returns a config with every default spec.md §6
// calls for.
func NewDefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxDHTItems:           1000,
		EnforceNodeID:         true,
		RestrictRoutingIPs:    true,
		SearchBranching:       alpha,
		BlockTimeout:          3 * time.Second,
		ItemLifetime:          2 * time.Hour,
		TokenRotationInterval: DefaultTokenRotationInterval,
		Logger:                log.Default,
	}
}

func (c *ServerConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
