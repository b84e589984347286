// Package conn provides endpoint addresses and batch raw IP socket I/O.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

var errZeroEndpoint = errors.New("zero endpoint")

// Endpoint is an SCTP endpoint address:
// a port number combined with either an IP address or a domain name.
type Endpoint struct {
	ip     netip.Addr
	domain string
	port   uint16
}

// EndpointFromAddrPort returns an endpoint from the provided netip.AddrPort.
func EndpointFromAddrPort(addrPort netip.AddrPort) Endpoint {
	return Endpoint{ip: addrPort.Addr(), port: addrPort.Port()}
}

// EndpointFromHostPort returns an endpoint from the provided host string and port number.
// The host string may be a string representation of an IP address or a domain name.
func EndpointFromHostPort(host string, port uint16) (Endpoint, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return Endpoint{ip: ip, port: port}, nil
	}
	if len(host) == 0 || len(host) > 255 {
		return Endpoint{}, fmt.Errorf("length of domain %q out of range [1, 255]", host)
	}
	return Endpoint{domain: host, port: port}, nil
}

// ParseEndpoint parses a "host:port" string.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portString, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, err
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to parse port string: %w", err)
	}
	return EndpointFromHostPort(host, uint16(port))
}

// IsValid returns whether the endpoint is not the zero value.
func (e Endpoint) IsValid() bool {
	return e.ip.IsValid() || e.domain != ""
}

// IsIP returns whether the endpoint holds an IP address.
func (e Endpoint) IsIP() bool {
	return e.ip.IsValid()
}

// Port returns the port number.
func (e Endpoint) Port() uint16 {
	return e.port
}

// IPPort returns the IP address and port. It panics if the endpoint is not an IP address.
func (e Endpoint) IPPort() netip.AddrPort {
	if !e.ip.IsValid() {
		panic("IPPort() called on non-IP endpoint")
	}
	return netip.AddrPortFrom(e.ip, e.port)
}

// ResolveIP resolves a domain name into an IP address.
//
// The first address returned by the resolver is used,
// as the resolver sorts addresses by family preference.
func ResolveIP(ctx context.Context, host string) (netip.Addr, error) {
	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, err
	}
	return ips[0].Unmap(), nil
}

// ResolveIPPort returns the endpoint's IP address, resolving its domain name if needed,
// and the port number.
func (e Endpoint) ResolveIPPort(ctx context.Context) (netip.AddrPort, error) {
	switch {
	case e.ip.IsValid():
		return netip.AddrPortFrom(e.ip, e.port), nil
	case e.domain != "":
		ip, err := ResolveIP(ctx, e.domain)
		if err != nil {
			return netip.AddrPort{}, err
		}
		return netip.AddrPortFrom(ip, e.port), nil
	default:
		return netip.AddrPort{}, errZeroEndpoint
	}
}

// String returns the "host:port" form of the endpoint,
// or an empty string for the zero value.
func (e Endpoint) String() string {
	switch {
	case e.ip.IsValid():
		return netip.AddrPortFrom(e.ip, e.port).String()
	case e.domain != "":
		return net.JoinHostPort(e.domain, strconv.FormatUint(uint64(e.port), 10))
	default:
		return ""
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (e Endpoint) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (e *Endpoint) UnmarshalText(text []byte) error {
	ep, err := ParseEndpoint(string(text))
	if err != nil {
		return err
	}
	*e = ep
	return nil
}
