package transport

import (
	"fmt"

	"github.com/haukened/rr-proxy/internal/dns/common/log"
)

// NewTransport creates a new transport instance based on the specified type.
// This factory function allows for easy extension to support additional transport
// protocols in the future while maintaining a consistent interface.
func NewTransport(transportType TransportType, addr string, logger log.Logger) (ServerTransport, error) {
	switch transportType {
	case TransportUDP:
		return NewUDPTransport(addr, logger), nil

	case TransportDoH:
		return nil, fmt.Errorf("DNS over HTTPS transport not yet implemented")

	case TransportDoT:
		return nil, fmt.Errorf("DNS over TLS transport not yet implemented")

	case TransportDoQ:
		return nil, fmt.Errorf("DNS over QUIC transport not yet implemented")

	default:
		return nil, fmt.Errorf("unsupported transport type: %s", transportType)
	}
}

// GetSupportedTransports returns a list of currently supported transport types.
func GetSupportedTransports() []TransportType {
	return []TransportType{
		TransportUDP,
		// Future implementations will be added here:
		// TransportDoH,
		// TransportDoT,
		// TransportDoQ,
	}
}

// IsTransportSupported checks if a given transport type is currently supported.
func IsTransportSupported(transportType TransportType) bool {
	supported := GetSupportedTransports()
	for _, t := range supported {
		if t == transportType {
			return true
		}
	}
	return false
}
