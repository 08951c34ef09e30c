// Package netaddr discovers the address the actuator reports to the coordinator.
package netaddr

import (
	"errors"
	"fmt"
	"net"
)

// ErrNoLocalAddress is returned when no usable IPv4 address can be found.
var ErrNoLocalAddress = errors.New("netaddr: no local address")

// routeTarget is only used to ask the kernel which source address it would
// route from. UDP "dial" sends no packets.
const routeTarget = "192.0.2.1:9"

// Resolve returns configured if it is a valid IP, otherwise the primary
// local IPv4 address.
func Resolve(configured string) (net.IP, error) {
	if configured != "" {
		ip := net.ParseIP(configured)
		if ip == nil {
			return nil, fmt.Errorf("%w: invalid configured address %q", ErrNoLocalAddress, configured)
		}
		return ip, nil
	}
	return Discover()
}

// Discover returns the IPv4 address of the default route, falling back to
// the first non-loopback interface address.
func Discover() (net.IP, error) {
	if ip := routeAddress(); ip != nil {
		return ip, nil
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoLocalAddress, err)
	}
	if ip := firstUsable(addrs); ip != nil {
		return ip, nil
	}
	return nil, ErrNoLocalAddress
}

func routeAddress() net.IP {
	conn, err := net.Dial("udp4", routeTarget)
	if err != nil {
		return nil
	}
	defer conn.Close() //nolint:errcheck // Nothing was sent

	udp, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || udp.IP.IsUnspecified() || udp.IP.IsLoopback() {
		return nil
	}
	return udp.IP.To4()
}

func firstUsable(addrs []net.Addr) net.IP {
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			continue
		}
		return ip
	}
	return nil
}
