package krpc

import (
	"bytes"
	"encoding/binary"
	"net"
	"net/netip"

	"github.com/anacrolix/multiless"

	"github.com/anacrolix/dht/bencode"
)

// NodeAddr is a comparable endpoint, encoded on the wire as 6 bytes (IPv4)
// or 18 bytes (IPv6): 4/16 bytes of IP followed by a big-endian port.
type NodeAddr struct {
	netip.AddrPort
}

func NewNodeAddrFromAddrPort(ap netip.AddrPort) NodeAddr {
	return NodeAddr{AddrPort: ap}
}

func NewNodeAddrFromIPPort(ip net.IP, port int) NodeAddr {
	if ip4 := ip.To4(); ip4 != nil {
		return NodeAddr{AddrPort: netip.AddrPortFrom(netip.AddrFrom4([4]byte(ip4)), uint16(port))}
	}
	addr, _ := netip.AddrFromSlice(ip.To16())
	return NodeAddr{AddrPort: netip.AddrPortFrom(addr, uint16(port))}
}

func (me NodeAddr) String() string {
	if me.IsValid() {
		return me.AddrPort.String()
	}
	return ""
}

func (me NodeAddr) IP() net.IP {
	return me.Addr().AsSlice()
}

func (me NodeAddr) Port() int {
	return int(me.AddrPort.Port())
}

func (me NodeAddr) UDP() *net.UDPAddr {
	return &net.UDPAddr{IP: me.IP(), Port: me.Port()}
}

func (me NodeAddr) Compare(r NodeAddr) int {
	return multiless.EagerOrdered(
		multiless.New().Cmp(me.Addr().Compare(r.Addr())),
		me.Port(), r.Port(),
	).OrderingInt()
}

func (me NodeAddr) Equal(r NodeAddr) bool {
	return me.Compare(r) == 0
}

func (me NodeAddr) MarshalBinary() ([]byte, error) {
	var b bytes.Buffer
	b.Write(me.IP())
	binary.Write(&b, binary.BigEndian, uint16(me.Port()))
	return b.Bytes(), nil
}

func (me *NodeAddr) UnmarshalBinary(b []byte) error {
	if len(b) < 3 {
		return errShortCompactAddr
	}
	ip := make(net.IP, len(b)-2)
	copy(ip, b[:len(b)-2])
	port := binary.BigEndian.Uint16(b[len(b)-2:])
	*me = NewNodeAddrFromIPPort(ip, int(port))
	return nil
}

func (me NodeAddr) MarshalBencode() ([]byte, error) {
	b, err := me.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return bencode.Marshal(b)
}

func (me *NodeAddr) UnmarshalBencode(b []byte) error {
	var raw []byte
	if err := bencode.Unmarshal(b, &raw); err != nil {
		return err
	}
	return me.UnmarshalBinary(raw)
}

var errShortCompactAddr = shortError("compact node address too short")

type shortError string

func (e shortError) Error() string { return string(e) }
