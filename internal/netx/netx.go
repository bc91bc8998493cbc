package netx

import (
	"context"
	"net"
	"net/netip"
	"strconv"

	"github.com/pkg/errors"
)

// ContextDialer missing interface from the net package.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NetPort returns the port of the network address,
func NetPort(addr net.Addr) (port int, err error) {
	switch raw := addr.(type) {
	case *net.UDPAddr:
		return raw.Port, nil
	case *net.TCPAddr:
		return raw.Port, nil
	default:
		var (
			sport string
			i64   int64
		)

		if _, sport, err = net.SplitHostPort(addr.String()); err != nil {
			return -1, err
		}

		if i64, err = strconv.ParseInt(sport, 0, 0); err != nil {
			return -1, err
		}

		return int(i64), nil
	}
}

// NetIP returns the IP address of the network address.
func NetIP(addr net.Addr) (ip net.IP, err error) {
	switch raw := addr.(type) {
	case *net.UDPAddr:
		return raw.IP, nil
	case *net.TCPAddr:
		return raw.IP, nil
	default:
		var (
			host string
		)

		if host, _, err = net.SplitHostPort(addr.String()); err != nil {
			return nil, err
		}

		if ip = net.ParseIP(host); ip == nil {
			return nil, errors.Errorf("invalid IP: %s", host)
		}

		return ip, nil
	}
}

// NetIPPort returns the IP and Port of the network address
func NetIPPort(addr net.Addr) (ip net.IP, port int, err error) {
	switch raw := addr.(type) {
	case *net.UDPAddr:
		return raw.IP, raw.Port, nil
	case *net.TCPAddr:
		return raw.IP, raw.Port, nil
	default:
		var (
			host  string
			sport string
			i64   int64
		)

		if host, sport, err = net.SplitHostPort(addr.String()); err != nil {
			return nil, -1, err
		}

		if ip = net.ParseIP(host); ip == nil {
			return nil, -1, errors.Errorf("invalid IP: %s", host)
		}

		if i64, err = strconv.ParseInt(sport, 0, 0); err != nil {
			return nil, -1, err
		}

		return ip, int(i64), nil
	}
}

// AddrPort converts a net.Addr into a netip.AddrPort, for callers that
// need a comparable address value (e.g. as a map key).
func AddrPort(addr net.Addr) (netip.AddrPort, error) {
	ip, port, err := NetIPPort(addr)
	if err != nil {
		return netip.AddrPort{}, err
	}
	nip, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.AddrPort{}, errors.Errorf("invalid IP: %s", ip)
	}
	return netip.AddrPortFrom(nip.Unmap(), uint16(port)), nil
}
