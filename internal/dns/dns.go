// Package dns resolves relay hostnames for the chat client, falling back to
// public resolvers when the system resolver cannot answer.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrNoAddress is returned when a resolver answers without any address.
	ErrNoAddress = errors.New("no addresses found")

	localTimeout  = 1 * time.Second
	publicTimeout = 2 * time.Second
)

// publicResolvers are raced when the local lookup fails.
var publicResolvers = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.222.222",         // Cisco OpenDNS
	"208.67.220.220",         // Cisco OpenDNS
}

// Lookup resolves host to one IP address, preferring IPv4. IP literals are
// returned unchanged.
func Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	lctx, cancel := context.WithTimeout(ctx, localTimeout)
	ip, err := resolve(lctx, &net.Resolver{}, host)
	cancel()
	if err == nil {
		return ip, nil
	}

	return raceResolvers(ctx, host, publicResolvers)
}

// DialContext dials addr after resolving its host with Lookup. It fits
// websocket.Dialer.NetDialContext.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

// raceResolvers queries every server at once and returns the first answer.
func raceResolvers(ctx context.Context, host string, servers []string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, publicTimeout)
	defer cancel()

	results := make(chan result, len(servers))
	for _, server := range servers {
		go func(server string) {
			ip, err := resolve(ctx, pinnedResolver(server), host)
			results <- result{ip: ip, err: err}
		}(server)
	}

	for range servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolving %s: public resolvers timed out", host)
		}
	}

	return "", fmt.Errorf("resolving %s: all %d public resolvers failed", host, len(servers))
}

// pinnedResolver sends every query to server on port 53.
func pinnedResolver(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
}

func resolve(ctx context.Context, r *net.Resolver, host string) (string, error) {
	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return pickAddress(ips)
}

func pickAddress(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", ErrNoAddress
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
