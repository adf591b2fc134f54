package web

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/netutil"
)

// NetworkAddr is the address a listener binds to.
type NetworkAddr struct {
	Host netip.Addr
	Port uint16
}

// ParseNetworkAddr validates host as an IP address.
func ParseNetworkAddr(host string, port uint16) (NetworkAddr, error) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return NetworkAddr{}, fmt.Errorf("invalid bind host %q: %w", host, err)
	}
	return NetworkAddr{Host: addr, Port: port}, nil
}

func (a NetworkAddr) String() string {
	return netip.AddrPortFrom(a.Host, a.Port).String()
}

// Listen opens a TCP listener on addr. When maxConns is positive the
// listener accepts at most that many simultaneous connections.
func Listen(ctx context.Context, addr NetworkAddr, maxConns int) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}
