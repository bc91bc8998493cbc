package krpc

import (
	"fmt"

	"github.com/anacrolix/dht/bencode"
)

// Msg is the top-level KRPC dictionary exchanged over the wire.
type Msg struct {
	T string  `bencode:"t"`
	Y string  `bencode:"y"`
	Q string  `bencode:"q,omitempty"`
	A *Args   `bencode:"a,omitempty"`
	R *Return `bencode:"r,omitempty"`
	E *Error  `bencode:"e,omitempty"`
	V string  `bencode:"v,omitempty"`
	// IP is the mainline-DHT "ip" extension: a response carries the
	// compact address of whoever it's replying to, letting that node
	// learn its own externally visible address by majority vote across
	// enough distinct repliers.
	IP *NodeAddr `bencode:"ip,omitempty"`
	RO int       `bencode:"ro,omitempty"`
}

func (m Msg) String() string {
	return fmt.Sprintf("%#v", m)
}

// SenderID returns the node ID of whoever produced this message, from
// whichever of A/R carries it.
func (m Msg) SenderID() (id ID, ok bool) {
	switch m.Y {
	case "q":
		if m.A != nil {
			return m.A.ID, true
		}
	case "r":
		if m.R != nil {
			return m.R.ID, true
		}
	}
	return id, false
}

func (m Msg) ReadOnly() bool {
	return m.RO != 0
}

// Args is the `a` dict of a query.
type Args struct {
	ID          ID             `bencode:"id"`
	InfoHash    *ID            `bencode:"info_hash,omitempty"`
	Target      *ID            `bencode:"target,omitempty"`
	Token       string         `bencode:"token,omitempty"`
	Port        *int           `bencode:"port,omitempty"`
	ImpliedPort bool           `bencode:"implied_port,omitempty"`
	Name        string         `bencode:"name,omitempty"`
	Seed        bool           `bencode:"seed,omitempty"`
	Want        []string       `bencode:"want,omitempty"`
	Scrape      bool           `bencode:"scrape,omitempty"`
	Seq         *int64         `bencode:"seq,omitempty"`
	V           bencode.Bytes  `bencode:"v,omitempty"`
	K           *[32]byte      `bencode:"k,omitempty"`
	Sig         *[64]byte      `bencode:"sig,omitempty"`
	Salt        []byte         `bencode:"salt,omitempty"`
	Cas         *int64         `bencode:"cas,omitempty"`
}

// WantsFamily reports whether the query's `want` list requests nodes of the
// given family ("n4" or "n6"). An absent want list implies "n4" only, per
// the transport address family convention most implementations fall back
// to.
func (a *Args) WantsFamily(family string) bool {
	if a == nil || len(a.Want) == 0 {
		return family == "n4"
	}
	for _, w := range a.Want {
		if w == family {
			return true
		}
	}
	return false
}

// Return is the `r` dict of a response.
type Return struct {
	ID     ID                  `bencode:"id"`
	Nodes  CompactIPv4NodeInfo `bencode:"nodes,omitempty"`
	Nodes6 CompactIPv6NodeInfo `bencode:"nodes6,omitempty"`
	Token  string              `bencode:"token,omitempty"`
	Values CompactIPv4Peers    `bencode:"values,omitempty"`
	// BFsd and BFpe are the BEP-33 seed/peer scrape bloom filters.
	BFsd []byte        `bencode:"BFsd,omitempty"`
	BFpe []byte        `bencode:"BFpe,omitempty"`
	V    bencode.Bytes `bencode:"v,omitempty"`
	K    *[32]byte     `bencode:"k,omitempty"`
	Sig  *[64]byte     `bencode:"sig,omitempty"`
	Seq  *int64        `bencode:"seq,omitempty"`
}
