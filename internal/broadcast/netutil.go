package broadcast

import (
	"fmt"
	"net"
)

// outboundSentinel is never actually contacted: opening a UDP "connection"
// to it just makes the OS pick a local route, which is enough to read the
// primary outbound IP off the socket's local address.
const outboundSentinel = "203.0.113.1:80"

// LocalOutboundIP discovers the primary outbound IP address by opening a
// UDP socket toward a public sentinel and reading its local endpoint,
// used when no static IP is configured (spec.md §4.G).
func LocalOutboundIP() (string, error) {
	conn, err := net.Dial("udp", outboundSentinel)
	if err != nil {
		return "", fmt.Errorf("broadcast: discover outbound ip: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("broadcast: unexpected local addr type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
