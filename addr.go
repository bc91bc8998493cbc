package dht

import (
	"net"
	"net/netip"

	"github.com/anacrolix/dht/internal/errorsx"
	"github.com/anacrolix/dht/internal/netx"
	"github.com/anacrolix/dht/krpc"
)

// Addr refers to a node's network address. String() is called a lot and
// so is pre-computed; Raw() exposes the underlying net.Addr for handoff
// to OS-level socket calls, but Addr itself deliberately doesn't satisfy
// net.Addr (no Network() method) to stop it being passed somewhere that
// expects one.
type Addr interface {
	Raw() net.Addr
	Port() int
	IP() net.IP
	String() string
	KRPC() krpc.NodeAddr
}

type cachedAddr struct {
	v   netip.AddrPort
	raw net.Addr
	s   string
}

func (ca cachedAddr) String() string {
	return ca.s
}

func (ca cachedAddr) KRPC() krpc.NodeAddr {
	return krpc.NewNodeAddrFromAddrPort(ca.v)
}

func (ca cachedAddr) IP() net.IP {
	return net.IP(ca.v.Addr().AsSlice())
}

func (ca cachedAddr) Port() int {
	return int(ca.v.Port())
}

func (ca cachedAddr) Raw() net.Addr {
	return ca.raw
}

// NewAddr wraps raw, precomputing its string form and netip.AddrPort.
func NewAddr(raw net.Addr) Addr {
	v := errorsx.Zero(netx.AddrPort(raw))
	return cachedAddr{raw: raw, v: v, s: raw.String()}
}
