// Package security guards outbound HTTP.
//
// The weather API base URL comes from configuration, so outside local
// development the HTTP client refuses to dial loopback, link-local (which
// covers the instance metadata endpoint 169.254.169.254) and private ranges.
// Every resolved address is checked before any connection is made, and
// redirects are re-checked.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"
)

// dnsTimeout bounds a single lookup made on behalf of a dial or redirect.
const dnsTimeout = 500 * time.Millisecond

// DefaultMaxRedirects is used by NewOutboundClient.
const DefaultMaxRedirects = 3

var (
	// ErrBlocked is returned when a request targets a blocked range.
	ErrBlocked = errors.New("egress: destination is in a blocked range")
	// ErrDNSTimeout is returned when resolution exceeds dnsTimeout.
	ErrDNSTimeout = errors.New("egress: DNS resolution timeout")
	// ErrDNSFailed is returned when resolution fails or yields nothing.
	ErrDNSFailed = errors.New("egress: DNS resolution failed")
	// ErrTooManyRedirects is returned when the redirect limit is exceeded.
	ErrTooManyRedirects = errors.New("egress: too many redirects")
)

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// IsBlocked reports whether addr falls in a blocked range. IPv4-mapped IPv6
// addresses are checked as IPv4.
func IsBlocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() || addr.IsUnspecified() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution for testability.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Guard validates destinations and dials only addresses it has checked.
type Guard struct {
	Resolver Resolver
	Dial     DialFunc
}

// NewGuard returns a Guard over the system resolver and a plain dialer.
func NewGuard() *Guard {
	return &Guard{
		Resolver: net.DefaultResolver,
		Dial:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
	}
}

// resolve returns the addresses for host, failing if any of them is
// blocked. A single bad address rejects the whole set so a rebinding answer
// cannot smuggle a private address past the check.
func (g *Guard) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		if IsBlocked(addr) {
			return nil, fmt.Errorf("%w: %s", ErrBlocked, addr)
		}
		return []netip.Addr{addr}, nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := g.Resolver.LookupIPAddr(dnsCtx, host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return nil, fmt.Errorf("%w: host %q", ErrDNSTimeout, host)
		}
		return nil, fmt.Errorf("%w: host %q: %v", ErrDNSFailed, host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: host %q resolved to no addresses", ErrDNSFailed, host)
	}

	addrs := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip.IP)
		if !ok || IsBlocked(addr) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrBlocked, ip.IP, host)
		}
		addrs = append(addrs, addr.Unmap())
	}
	return addrs, nil
}

// DialContext resolves and checks addr, then dials the first resolved
// address rather than letting the dialer resolve the name again.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("egress: invalid address %q: %w", addr, err)
	}
	addrs, err := g.resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	return g.Dial(ctx, network, net.JoinHostPort(addrs[0].String(), port))
}

// CheckRedirect returns an http.Client CheckRedirect hook enforcing
// maxRedirects and the blocklist on every hop.
func (g *Guard) CheckRedirect(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrTooManyRedirects, maxRedirects)
		}
		host := req.URL.Hostname()
		if host == "" {
			return fmt.Errorf("%w: redirect URL has no host", ErrBlocked)
		}
		_, err := g.resolve(req.Context(), host)
		return err
	}
}

// Client returns an http.Client whose connections go through g.
func (g *Guard) Client(timeout time.Duration, maxRedirects int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = g.DialContext
	return &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: g.CheckRedirect(maxRedirects),
	}
}

// NewOutboundClient returns the HTTP client for third-party APIs. In the
// local environment the client is unguarded so a stub server on localhost
// can stand in for the real API.
func NewOutboundClient(environment string, timeout time.Duration) *http.Client {
	if environment == "local" {
		return &http.Client{Timeout: timeout}
	}
	return NewGuard().Client(timeout, DefaultMaxRedirects)
}
