package krpc

import (
	"net"
	"net/netip"

	"github.com/anacrolix/dht/bencode"
	"github.com/anacrolix/dht/int160"
)

// NodeInfo is a 160-bit node ID paired with its endpoint, the unit carried
// in "nodes"/"nodes6" compact lists.
type NodeInfo struct {
	ID   ID
	Addr NodeAddr
}

func (ni NodeInfo) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, 20+18)
	b = append(b, ni.ID.Bytes()...)
	addr, err := ni.Addr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(b, addr...), nil
}

func (ni *NodeInfo) UnmarshalBinary(b []byte) error {
	if len(b) < 20 {
		return errShortCompactAddr
	}
	ni.ID = ID(idFromBytes(b[:20]))
	return ni.Addr.UnmarshalBinary(b[20:])
}

// CompactIPv4NodeInfo is the "nodes" key: a concatenation of 26-byte
// (20 B id + 4 B ip + 2 B port) records. Per spec, a string whose length is
// not an exact multiple of the record size decodes as zero nodes rather
// than erroring the whole message.
type CompactIPv4NodeInfo []NodeInfo

func (CompactIPv4NodeInfo) elemSize() int { return 26 }

func (me CompactIPv4NodeInfo) MarshalBinary() ([]byte, error) {
	return marshalCompactNodes(me, 4)
}

func (me CompactIPv4NodeInfo) MarshalBencode() ([]byte, error) {
	b, err := me.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return bencode.Marshal(b)
}

func (me *CompactIPv4NodeInfo) UnmarshalBinary(b []byte) error {
	nodes, _ := unmarshalCompactNodes(b, 26, 4)
	*me = nodes
	return nil
}

func (me *CompactIPv4NodeInfo) UnmarshalBencode(b []byte) error {
	var raw []byte
	if err := bencode.Unmarshal(b, &raw); err != nil {
		return err
	}
	return me.UnmarshalBinary(raw)
}

// CompactIPv6NodeInfo is the "nodes6" key: 38-byte (20 B id + 16 B ip + 2 B
// port) records, subject to the same malformed-length rejection rule.
type CompactIPv6NodeInfo []NodeInfo

func (me CompactIPv6NodeInfo) MarshalBinary() ([]byte, error) {
	return marshalCompactNodes(me, 16)
}

func (me CompactIPv6NodeInfo) MarshalBencode() ([]byte, error) {
	b, err := me.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return bencode.Marshal(b)
}

func (me *CompactIPv6NodeInfo) UnmarshalBinary(b []byte) error {
	nodes, _ := unmarshalCompactNodes(b, 38, 16)
	*me = nodes
	return nil
}

func (me *CompactIPv6NodeInfo) UnmarshalBencode(b []byte) error {
	var raw []byte
	if err := bencode.Unmarshal(b, &raw); err != nil {
		return err
	}
	return me.UnmarshalBinary(raw)
}

func marshalCompactNodes(nodes []NodeInfo, ipLen int) ([]byte, error) {
	out := make([]byte, 0, len(nodes)*(20+ipLen+2))
	for _, n := range nodes {
		b, err := n.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// unmarshalCompactNodes returns an empty, non-error result when the input
// length is not an exact multiple of recSize: per spec this makes the
// owning reply look like it carried zero nodes rather than aborting the
// whole decode.
func unmarshalCompactNodes(b []byte, recSize, ipLen int) ([]NodeInfo, error) {
	if len(b) == 0 || len(b)%recSize != 0 {
		return nil, nil
	}
	n := len(b) / recSize
	out := make([]NodeInfo, n)
	for i := 0; i < n; i++ {
		rec := b[i*recSize : (i+1)*recSize]
		out[i].ID = ID(idFromBytes(rec[:20]))
		ip := make(net.IP, ipLen)
		copy(ip, rec[20:20+ipLen])
		port := int(rec[20+ipLen])<<8 | int(rec[20+ipLen+1])
		out[i].Addr = NewNodeAddrFromIPPort(ip, port)
	}
	return out, nil
}

func idFromBytes(b []byte) ID {
	var a [20]byte
	copy(a[:], b)
	return int160.FromByteArray(a)
}

// CompactIPv4Peers is the "values" key for IPv4 responders: a list of 6-byte
// (4 B ip + 2 B port) byte strings.
type CompactIPv4Peers []netip.AddrPort

func (me CompactIPv4Peers) MarshalBencode() ([]byte, error) {
	list := make([][]byte, len(me))
	for i, p := range me {
		b := make([]byte, 0, 6)
		addr4 := p.Addr().As4()
		b = append(b, addr4[:]...)
		b = append(b, byte(p.Port()>>8), byte(p.Port()))
		list[i] = b
	}
	return bencode.Marshal(list)
}

func (me *CompactIPv4Peers) UnmarshalBencode(b []byte) error {
	var list [][]byte
	if err := bencode.Unmarshal(b, &list); err != nil {
		return err
	}
	out := make([]netip.AddrPort, 0, len(list))
	for _, rec := range list {
		if len(rec) != 6 {
			continue
		}
		addr := netip.AddrFrom4([4]byte(rec[:4]))
		port := uint16(rec[4])<<8 | uint16(rec[5])
		out = append(out, netip.AddrPortFrom(addr, port))
	}
	*me = out
	return nil
}
