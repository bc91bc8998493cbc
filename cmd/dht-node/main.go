// Command dht-node runs a single-threaded Kademlia DHT node and drives a
// handful of one-shot operations against it: ping, bootstrap, get-peers,
// get and put. Grounded on the teacher's cmd/torrent-create and
// cmd/tracker-announce for tagflag usage; the DHT-specific subcommand
// split is this module's own, since dht/cmd/dht's args-package dispatch
// isn't in this module's dependency set.
package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/anacrolix/tagflag"
	"golang.org/x/time/rate"

	"github.com/anacrolix/dht"
	"github.com/anacrolix/dht/bep44"
	"github.com/anacrolix/dht/int160"
	"github.com/anacrolix/dht/krpc"
	"github.com/anacrolix/dht/peerstore"
	"github.com/anacrolix/dht/traversal"
)

var defaultBootstrap = []string{
	"router.bittorrent.com:6881",
	"dht.transmissionbt.com:6881",
	"router.utorrent.com:6881",
}

func main() {
	log.SetFlags(log.Flags() | log.Lshortfile)
	if len(os.Args) < 2 {
		usageAndExit()
	}
	cmd := os.Args[1]
	os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

	switch cmd {
	case "ping":
		runPing()
	case "bootstrap":
		runBootstrap()
	case "get-peers":
		runGetPeers()
	case "get":
		runGet()
	case "put":
		runPut()
	default:
		usageAndExit()
	}
}

func usageAndExit() {
	fmt.Fprintln(os.Stderr, "usage: dht-node <ping|bootstrap|get-peers|get|put> ...")
	os.Exit(2)
}

// udpPacketSender adapts a net.PacketConn to dht.PacketSender, gating
// sends with a token-bucket limiter the same way the teacher's
// writeToNode gates writes through its sendLimit.
type udpPacketSender struct {
	conn  net.PacketConn
	limit *rate.Limiter
}

func newUDPPacketSender(conn net.PacketConn) udpPacketSender {
	return udpPacketSender{conn: conn, limit: rate.NewLimiter(rate.Limit(100), 100)}
}

func (u udpPacketSender) SendTo(b []byte, addr dht.Addr) error {
	_, err := u.conn.WriteTo(b, addr.Raw())
	return err
}

func (u udpPacketSender) HasQuota() bool {
	return u.limit.Allow()
}

// newNode opens a UDP socket and builds a Server bound to it, returning
// both plus the conn for the caller's event loop.
func newNode() (*dht.Server, net.PacketConn) {
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		log.Fatal(err)
	}
	cfg := dht.NewDefaultServerConfig()
	cfg.PacketSender = newUDPPacketSender(conn)
	cfg.PeerStore = peerstore.New(30 * time.Minute)
	s, err := dht.NewServer(cfg)
	if err != nil {
		log.Fatal(err)
	}
	return s, conn
}

// runLoop alternates between reading one packet (up to tick) and firing
// Tick, keeping the Server's entire lifecycle on this one goroutine.
func runLoop(s *dht.Server, conn net.PacketConn, tick time.Duration, done func() bool) {
	buf := make([]byte, 8192)
	for !done() {
		conn.SetReadDeadline(time.Now().Add(tick))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			s.Tick(time.Now())
			continue
		}
		s.Incoming(buf[:n], dht.NewAddr(addr))
	}
}

func runPing() {
	var args struct {
		tagflag.StartPos
		Addr    string
		Timeout time.Duration `help:"how long to wait for a reply"`
	}
	args.Timeout = 5 * time.Second
	tagflag.Parse(&args)

	raddr, err := net.ResolveUDPAddr("udp", args.Addr)
	if err != nil {
		log.Fatal(err)
	}
	s, conn := newNode()
	defer conn.Close()

	replied := false
	deadline := time.Now().Add(args.Timeout)
	s.Ping(dht.NewAddr(raddr), func(id krpc.ID, err error) {
		replied = true
		if err != nil {
			fmt.Println("ping failed:", err)
		} else {
			fmt.Printf("pong from %x\n", id.Bytes())
		}
	})
	runLoop(s, conn, 200*time.Millisecond, func() bool {
		return replied || time.Now().After(deadline)
	})
}

func runBootstrap() {
	var args struct {
		tagflag.StartPos
		Addrs []string
	}
	tagflag.Parse(&args)
	if len(args.Addrs) == 0 {
		args.Addrs = defaultBootstrap
	}

	s, conn := newNode()
	defer conn.Close()

	var seeds []dht.Addr
	for _, a := range args.Addrs {
		raddr, err := net.ResolveUDPAddr("udp", a)
		if err != nil {
			log.Println("resolve:", err)
			continue
		}
		seeds = append(seeds, dht.NewAddr(raddr))
	}

	done := false
	s.Bootstrap(seeds, func() {
		done = true
		live, _, _ := s.Table().Size()
		fmt.Printf("bootstrap complete: %d live nodes\n", live)
	})

	deadline := time.Now().Add(30 * time.Second)
	runLoop(s, conn, 200*time.Millisecond, func() bool {
		return done || time.Now().After(deadline)
	})
}

func runGetPeers() {
	var args struct {
		tagflag.StartPos
		InfoHash     string
		Scrape       bool
		AnnouncePort int `help:"port to announce ourselves on to every node that answers; 0 announces with implied_port"`
	}
	tagflag.Parse(&args)

	ihBytes, err := hex.DecodeString(args.InfoHash)
	if err != nil || len(ihBytes) != 20 {
		log.Fatal("info hash must be 40 hex characters")
	}
	var ihArr [20]byte
	copy(ihArr[:], ihBytes)
	target := int160.FromByteArray(ihArr)

	s, conn := newNode()
	defer conn.Close()

	done := false
	s.Announce(target, args.AnnouncePort, args.AnnouncePort == 0, args.Scrape, func(peer dht.Addr) {
		fmt.Printf("peer %s\n", peer)
	}, func() {
		done = true
	})

	deadline := time.Now().Add(15 * time.Second)
	runLoop(s, conn, 200*time.Millisecond, func() bool {
		return done || time.Now().After(deadline)
	})
}

func runGet() {
	var args struct {
		tagflag.StartPos
		Target string
	}
	tagflag.Parse(&args)

	tBytes, err := hex.DecodeString(args.Target)
	if err != nil || len(tBytes) != 20 {
		log.Fatal("target must be 40 hex characters")
	}
	var tArr [20]byte
	copy(tArr[:], tBytes)
	target := int160.FromByteArray(tArr)

	s, conn := newNode()
	defer conn.Close()

	done := false
	s.GetItem(target, func(item *dht.ItemResult, _ []traversal.Elem) {
		done = true
		if item != nil {
			fmt.Printf("value: %s\n", item.V)
		} else {
			fmt.Println("no value found")
		}
	})

	deadline := time.Now().Add(15 * time.Second)
	runLoop(s, conn, 200*time.Millisecond, func() bool {
		return done || time.Now().After(deadline)
	})
}

func runPut() {
	var args struct {
		tagflag.StartPos
		Value string
	}
	tagflag.Parse(&args)

	item, err := bep44.NewItem(args.Value, nil, 0, nil, nil)
	if err != nil {
		log.Fatal(err)
	}

	s, conn := newNode()
	defer conn.Close()

	done := false
	s.PutItem(item, func(acked, total int) {
		done = true
		fmt.Printf("put acked by %d/%d nodes\n", acked, total)
	})

	deadline := time.Now().Add(15 * time.Second)
	runLoop(s, conn, 200*time.Millisecond, func() bool {
		return done || time.Now().After(deadline)
	})
}
