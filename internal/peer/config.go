package peer

import (
	"net"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/huddle/internal/config"
)

// NewConfiguration builds the ICE setup for every peer connection from the
// client config. Relay-only transport is used when forced, or when the host
// looks like it sits behind a VPN or carrier-grade NAT, but only if a TURN
// server is available.
func NewConfiguration(cfg *config.Client) webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || behindTunnel(localInterfaces())) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

type iface struct {
	name  string
	addrs []net.IP
}

var tunnelMarkers = []string{"tun", "tap", "wg", "ppp", "warp"}

// cgnat is 100.64.0.0/10, used by Tailscale, WARP and carrier NATs.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// behindTunnel reports whether direct peer-to-peer is likely to fail.
func behindTunnel(ifaces []iface) bool {
	for _, i := range ifaces {
		name := strings.ToLower(i.name)
		for _, marker := range tunnelMarkers {
			if strings.Contains(name, marker) {
				return true
			}
		}
		for _, ip := range i.addrs {
			if cgnat.Contains(ip) {
				return true
			}
		}
	}
	return false
}

// localInterfaces lists up, non-loopback interfaces with their addresses.
func localInterfaces() []iface {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var out []iface
	for _, ni := range ifaces {
		if ni.Flags&net.FlagUp == 0 || ni.Flags&net.FlagLoopback != 0 {
			continue
		}
		entry := iface{name: ni.Name}
		addrs, err := ni.Addrs()
		if err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					entry.addrs = append(entry.addrs, v.IP)
				case *net.IPAddr:
					entry.addrs = append(entry.addrs, v.IP)
				}
			}
		}
		out = append(out, entry)
	}
	return out
}
