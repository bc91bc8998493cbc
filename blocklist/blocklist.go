// Package blocklist gates DHT traffic by IP range, adapted from the
// teacher's iplist package: sorted, binary-searchable ranges built from
// CIDR or PeerGuardian-format input, now used to reject inbound queries
// and refuse routing-table insertion of matching addresses.
package blocklist

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"regexp"
	"sort"
	"strings"
)

// Range is an inclusive [First, Last] IP range.
type Range struct {
	First, Last net.IP
	Description string
}

func (r *Range) String() string {
	return fmt.Sprintf("%s-%s (%s)", r.First, r.Last, r.Description)
}

// List is a blocklist of non-overlapping IP ranges, sorted by First.
type List struct {
	ranges []Range
}

// New builds a List from ranges, sorting them by First in place.
// Behaviour is undefined if ranges overlap.
func New(ranges []Range) *List {
	sort.Slice(ranges, func(i, j int) bool {
		return bytes.Compare(ranges[i].First, ranges[j].First) < 0
	})
	return &List{ranges: ranges}
}

// Lookup returns the range containing ip, or nil if ip isn't blocked.
func (l *List) Lookup(ip net.IP) *Range {
	if len(l.ranges) == 0 {
		return nil
	}
	i := sort.Search(len(l.ranges), func(i int) bool {
		if i+1 >= len(l.ranges) {
			return true
		}
		return bytes.Compare(ip, l.ranges[i+1].First) < 0
	})
	if i == len(l.ranges) {
		return nil
	}
	r := &l.ranges[i]
	if bytes.Compare(ip, r.First) < 0 || bytes.Compare(ip, r.Last) > 0 {
		return nil
	}
	return r
}

// Blocked reports whether ip falls in any blocked range.
func (l *List) Blocked(ip net.IP) bool {
	return l.Lookup(ip) != nil
}

// ParseCIDRListReader reads one CIDR per line (e.g. "10.0.0.0/8") and
// returns the corresponding ranges.
func ParseCIDRListReader(r io.Reader) (ret []Range, err error) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		_, in, err := net.ParseCIDR(strings.TrimSpace(s.Text()))
		if err != nil {
			return nil, err
		}
		ret = append(ret, Range{First: in.IP, Last: ipNetLast(in)})
	}
	return ret, s.Err()
}

func ipNetLast(in *net.IPNet) net.IP {
	last := make(net.IP, len(in.IP))
	for i := range last {
		last[i] = in.IP[i] | ^in.Mask[i]
	}
	return last
}

var p2pLineRe = regexp.MustCompile(`(.*):([\d.]+)-([\d.]+)`)

// ParseP2PLine parses one line of the PeerGuardian Text Lists (P2P)
// format. ok is false (with no error) for blank or comment lines.
func ParseP2PLine(l string) (r Range, ok bool, err error) {
	l = strings.TrimSpace(l)
	if l == "" || strings.HasPrefix(l, "#") {
		return
	}
	sms := p2pLineRe.FindStringSubmatch(l)
	if sms == nil {
		return r, false, fmt.Errorf("blocklist: error parsing %q", l)
	}
	r.Description = sms[1]
	r.First = net.ParseIP(sms[2])
	r.Last = net.ParseIP(sms[3])
	if r.First == nil || r.Last == nil {
		return Range{}, false, nil
	}
	if f4, l4 := r.First.To4(), r.Last.To4(); f4 != nil && l4 != nil {
		r.First, r.Last = f4, l4
	}
	return r, true, nil
}

// ParseP2PListReader reads a full PeerGuardian-format blocklist.
func ParseP2PListReader(r io.Reader) (ret []Range, err error) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		rg, ok, err := ParseP2PLine(s.Text())
		if err != nil {
			return nil, err
		}
		if ok {
			ret = append(ret, rg)
		}
	}
	return ret, s.Err()
}
