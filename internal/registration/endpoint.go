package registration

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// DefaultCoAPPort is used when the coordinator URL has no port.
const DefaultCoAPPort = 5683

// Endpoint is a coordinator resource split into transport address and path.
type Endpoint struct {
	// Addr is host:port.
	Addr string

	// Path is the resource path, always starting with "/".
	Path string
}

// String returns the coap:// URL form.
func (e Endpoint) String() string {
	return "coap://" + e.Addr + e.Path
}

// ParseEndpoint splits a coap://host[:port]/path URL.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "coap" {
		return Endpoint{}, fmt.Errorf("%w: scheme must be coap, got %q", ErrInvalidEndpoint, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: missing host in %q", ErrInvalidEndpoint, raw)
	}

	port := DefaultCoAPPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Endpoint{}, fmt.Errorf("%w: invalid port %q", ErrInvalidEndpoint, p)
		}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	return Endpoint{
		Addr: net.JoinHostPort(host, strconv.Itoa(port)),
		Path: path,
	}, nil
}
