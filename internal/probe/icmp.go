package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// EchoTimeout is how long a single echo waits for its reply.
const EchoTimeout = time.Second

const (
	protoICMP   = 1
	protoICMPv6 = 58
)

var (
	// ErrNoReply means no matching echo reply arrived before the deadline.
	ErrNoReply = errors.New("no echo reply")
	// ErrSocket means an ICMP socket could not be opened in the configured mode.
	ErrSocket = errors.New("icmp socket unavailable")
)

var echoPayload = []byte("homewatch")

// ICMPProbe sends one echo request per Ping call on a fresh socket.
//
// In the default mode it uses unprivileged datagram sockets ("udp4"/"udp6"),
// for which the kernel rewrites the echo identifier; replies are then matched
// on sequence and peer only. Privileged mode uses raw sockets and also
// matches the identifier.
type ICMPProbe struct {
	Privileged bool
	Timeout    time.Duration
	ID         int
}

func NewICMPProbe(privileged bool) *ICMPProbe {
	return &ICMPProbe{
		Privileged: privileged,
		Timeout:    EchoTimeout,
		ID:         os.Getpid() & 0xffff,
	}
}

type endpoint struct {
	network string
	listen  string
	proto   int
	request icmp.Type
	reply   icmp.Type
}

func (p *ICMPProbe) endpoint(ip netip.Addr) endpoint {
	if ip.Is4() || ip.Is4In6() {
		e := endpoint{network: "udp4", listen: "0.0.0.0", proto: protoICMP,
			request: ipv4.ICMPTypeEcho, reply: ipv4.ICMPTypeEchoReply}
		if p.Privileged {
			e.network = "ip4:icmp"
		}
		return e
	}
	e := endpoint{network: "udp6", listen: "::", proto: protoICMPv6,
		request: ipv6.ICMPTypeEchoRequest, reply: ipv6.ICMPTypeEchoReply}
	if p.Privileged {
		e.network = "ip6:ipv6-icmp"
	}
	return e
}

func (p *ICMPProbe) peer(ip netip.Addr) net.Addr {
	ip = ip.Unmap()
	if p.Privileged {
		return &net.IPAddr{IP: ip.AsSlice(), Zone: ip.Zone()}
	}
	return &net.UDPAddr{IP: ip.AsSlice(), Zone: ip.Zone()}
}

// Ping sends a single echo to ip and waits up to the probe timeout (or the
// context deadline, whichever is first) for the matching reply. There are
// no retries.
func (p *ICMPProbe) Ping(ctx context.Context, ip netip.Addr, seq uint16) (time.Duration, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = EchoTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ep := p.endpoint(ip)
	conn, err := icmp.ListenPacket(ep.network, ep.listen)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrSocket, ep.network, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, fmt.Errorf("set deadline: %w", err)
	}
	// wake a blocked read on parent cancellation
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	msg := icmp.Message{
		Type: ep.request,
		Code: 0,
		Body: &icmp.Echo{ID: p.ID, Seq: int(seq), Data: echoPayload},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("marshal echo: %w", err)
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, p.peer(ip)); err != nil {
		return 0, fmt.Errorf("send echo: %w", err)
	}

	rb := make([]byte, 1500)
	for {
		n, from, err := conn.ReadFrom(rb)
		if err != nil {
			var ne net.Error
			if ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
				return 0, ErrNoReply
			}
			return 0, fmt.Errorf("read reply: %w", err)
		}
		rtt := time.Since(start)
		if isReply(ep, rb[:n], from, ip, p.ID, seq, p.Privileged) {
			return rtt, nil
		}
	}
}

// isReply reports whether b is the echo reply for (ip, id, seq). Our own
// request echoed back on a raw socket, replies for other loops and unrelated
// ICMP traffic are all rejected.
func isReply(ep endpoint, b []byte, from net.Addr, ip netip.Addr, id int, seq uint16, checkID bool) bool {
	m, err := icmp.ParseMessage(ep.proto, b)
	if err != nil || m.Type != ep.reply {
		return false
	}
	echo, ok := m.Body.(*icmp.Echo)
	if !ok || echo.Seq != int(seq) {
		return false
	}
	if checkID && echo.ID != id {
		return false
	}
	src, ok := peerAddr(from)
	return ok && src == ip.Unmap().WithZone("")
}

func peerAddr(a net.Addr) (netip.Addr, bool) {
	var raw net.IP
	switch v := a.(type) {
	case *net.IPAddr:
		raw = v.IP
	case *net.UDPAddr:
		raw = v.IP
	default:
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(raw)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// CanListen reports whether an ICMP socket for the given family can be
// opened in the configured mode.
func (p *ICMPProbe) CanListen(ipv6Family bool) error {
	ip := netip.IPv4Unspecified()
	if ipv6Family {
		ip = netip.IPv6Unspecified()
	}
	ep := p.endpoint(ip)
	conn, err := icmp.ListenPacket(ep.network, ep.listen)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSocket, ep.network, err)
	}
	return conn.Close()
}
