// Package transport provides network transport abstractions for the DNS
// proxy. Transports move raw packets between clients and the service
// layer; all parsing and mutation happens behind the PacketHandler, so a
// transport never inspects message contents.
package transport

import (
	"context"

	"github.com/haukened/rr-proxy/internal/dns/services/proxy"
)

// ServerTransport defines the interface for DNS server transport
// implementations. Different transport types (UDP, DoH, DoT, DoQ) can
// implement this interface while providing the same request handling
// contract to the service layer.
type ServerTransport interface {
	// Start begins listening for packets and handling them via the
	// provided handler.
	Start(ctx context.Context, handler proxy.PacketResponder) error

	// Stop gracefully shuts down the transport, closing connections and
	// cleaning up resources.
	Stop() error

	// Address returns the network address the transport is bound to.
	Address() string
}

// TransportType represents the different types of DNS transport protocols supported.
type TransportType string

const (
	// TransportUDP represents standard DNS over UDP (RFC 1035)
	TransportUDP TransportType = "udp"

	// TransportDoH represents DNS over HTTPS (RFC 8484) - future implementation
	TransportDoH TransportType = "doh"

	// TransportDoT represents DNS over TLS (RFC 7858) - future implementation
	TransportDoT TransportType = "dot"

	// TransportDoQ represents DNS over QUIC (RFC 9250) - future implementation
	TransportDoQ TransportType = "doq"
)
