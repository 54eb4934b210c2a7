// Package httpclient builds the outbound HTTP clients shared by the provider
// invoker, the reference-image fetcher and the callback notifier.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrBlockedAddress is returned when a guarded dialer refuses to connect to a
// loopback, private or link-local address.
var ErrBlockedAddress = errors.New("destination address not allowed")

// Options sizes the transport. Zero pool sizes fall back to DefaultOptions.
type Options struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	// ResponseHeaderTimeout and Timeout are applied as given; zero leaves the
	// request unbounded so that the caller's context is the only deadline.
	ResponseHeaderTimeout time.Duration
	Timeout               time.Duration
	// DNSServer, when set, sends all lookups to this host:port.
	DNSServer string
	// BlockPrivate refuses connections to non-public addresses at dial time.
	BlockPrivate bool
}

// DefaultOptions returns the pool sizing used for provider traffic.
func DefaultOptions() Options {
	return Options{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 100,
	}
}

// New returns an *http.Client configured from opts.
func New(opts Options) *http.Client {
	defaults := DefaultOptions()
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = defaults.MaxIdleConns
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = defaults.MaxIdleConnsPerHost
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Resolver:  NewResolver(opts.DNSServer),
	}
	if opts.BlockPrivate {
		dialer.Control = blockPrivateControl
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          opts.MaxIdleConns,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}
}

// NewResolver returns a pure-Go resolver that sends every query to server.
// It returns nil, meaning the system resolver, when server is empty.
func NewResolver(server string) *net.Resolver {
	if server == "" {
		return nil
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: 5 * time.Second}
			return d.DialContext(ctx, network, server)
		},
	}
}

// blockPrivateControl runs after name resolution, so it sees the address that
// is actually dialed and cannot be bypassed by a rebinding DNS answer.
func blockPrivateControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || !IsPublicIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

// IsPublicIP reports whether ip is a globally routable unicast address.
func IsPublicIP(ip net.IP) bool {
	return !(ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified())
}
